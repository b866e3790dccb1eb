package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/capture"
	"github.com/haivivi/speakerid/pkg/capture/mic"
	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/flow"
	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
)

var recognizeCmd = &cobra.Command{
	Use:     "recognize",
	Aliases: []string{"predict"},
	Short:   "Record a test clip and identify the speaker",
	Long: `Record a clip of at least 3 seconds and ask the backend who is speaking.

Modes:
  (default)          report the best match
  --user NAME        check the clip against one enrolled user
  --check-enrolled   only accept a prediction naming an enrolled user

Examples:
  speakerid recognize
  speakerid recognize -i test.wav --user john
  speakerid recognize -i test.wav --json --query .prediction.prediction`,
	RunE: runRecognize,
}

func init() {
	recognizeCmd.Flags().StringP("user", "u", "", "verify against this enrolled user")
	recognizeCmd.Flags().Bool("check-enrolled", false, "cross-check the prediction against the enrolled users")
	recognizeCmd.Flags().StringP("input", "i", "", "WAV file to use instead of the microphone")
	recognizeCmd.Flags().String("archive", "", "archive the test clip to a directory, s3:// or gs:// URI")
	recognizeCmd.MarkFlagsMutuallyExclusive("user", "check-enrolled")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	user, _ := cmd.Flags().GetString("user")
	checkEnrolled, _ := cmd.Flags().GetBool("check-enrolled")
	input, _ := cmd.Flags().GetString("input")
	archiveURI, _ := cmd.Flags().GetString("archive")

	req := recognition.Request{Mode: recognition.FreeMatch}
	switch {
	case user != "":
		req = recognition.Request{Mode: recognition.NamedUserCheck, Username: user}
	case checkEnrolled:
		req.Mode = recognition.EnrollmentCrossCheck
	}

	c, err := getContext()
	if err != nil {
		return err
	}
	hist, closeHistory, err := openHistory(c)
	if err != nil {
		return err
	}
	defer closeHistory()
	archive, err := openArchive(ctx, archiveURI, c)
	if err != nil {
		return err
	}

	var (
		src   recording.Capture
		enter lineReader
	)
	if input != "" {
		src = capture.NewFile(input)
	} else {
		m := mic.New()
		m.Logger = slog.Default()
		src = m
		enter = readLines(os.Stdin)
	}

	recog := recognition.New(newClient(c),
		recognition.WithLogger(slog.Default()),
		recognition.WithHistory(hist))
	ts := flow.NewTesting(ctx, src, recog,
		flow.WithLogger(slog.Default()),
		flow.WithArchive(archive),
		flow.WithObserver(func(ev flow.Event) {
			if ev.Kind == flow.EventError {
				slog.Warn("recognize", "error", ev.Error)
			}
		}))
	defer ts.Close()

	if err := ts.SetRequest(req); err != nil {
		return err
	}
	if err := ts.Start(ctx); err != nil {
		return err
	}
	if enter != nil {
		promptRecording("test clip", ts.Session().Config())
	}
	if err := awaitRecording(ctx, ts.Session(), enter); err != nil {
		return err
	}
	if err := ts.Wait(ctx); err != nil {
		return err
	}

	res := recog.Current()
	if res == nil {
		return fmt.Errorf("recording shorter than %s was discarded",
			cli.FormatDuration(ts.Session().Config().MinDuration))
	}
	if structured() {
		return outputResult(res)
	}
	if res.Status == recognition.StatusError {
		return errors.New(res.Message)
	}
	fmt.Println(renderResult(res))
	return nil
}

func renderResult(res *recognition.Result) string {
	s := cli.NewStyles(cli.DefaultTheme)
	p := res.Prediction

	sections := []cli.Section{{
		Label: "Prediction",
		Lines: []string{
			"Speaker:    " + p.PredictedUser,
			"Confidence: " + recognition.FormatConfidence(p.Confidence),
			"Threshold:  " + recognition.FormatConfidence(p.Threshold),
		},
	}}
	if rows := recognition.Rows(p); len(rows) > 0 {
		lines := make([]cli.MatchLine, len(rows))
		for i, r := range rows {
			lines[i] = cli.MatchLine{Rank: r.Rank, Name: r.Username, Score: r.Similarity, Highlight: r.AboveThreshold}
		}
		sections = append(sections, cli.Section{Label: "Top matches", Lines: cli.MatchTable(s, lines)})
	}

	panel := cli.Panel{
		Styles:   s,
		Title:    "Speaker recognition",
		Status:   res.Mode.String(),
		Sections: sections,
	}.Render(64)

	return panel + "\n" + cli.Banner(s, res.Matched(), verdict(res))
}

func verdict(res *recognition.Result) string {
	if res.Matched() {
		if res.Mode == recognition.NamedUserCheck {
			return "Verified as " + res.Prediction.PredictedUser
		}
		return "Identified as " + res.Prediction.PredictedUser
	}
	if res.Message != "" {
		return res.Message
	}
	return "Speaker not recognized"
}
