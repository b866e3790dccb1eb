package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/capture"
	"github.com/haivivi/speakerid/pkg/capture/mic"
	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/clipstore"
	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/flow"
	"github.com/haivivi/speakerid/pkg/recording"
)

// enrollManifest is the --manifest file format.
//
//	user: john
//	archive: s3://clips/dev
//	clips:
//	  - clips/john_1.wav
//	  - clips/john_2.wav
//
// Relative clip paths are resolved against the manifest's directory.
type enrollManifest struct {
	User    string   `yaml:"user" json:"user"`
	Archive string   `yaml:"archive" json:"archive"`
	Clips   []string `yaml:"clips" json:"clips"`
}

// enrollSummary is the structured result of an enroll run.
type enrollSummary struct {
	Username string               `json:"username" yaml:"username"`
	Clips    int                  `json:"clips" yaml:"clips"`
	Required int                  `json:"required" yaml:"required"`
	Complete bool                 `json:"complete" yaml:"complete"`
	Attempts []enrollment.Attempt `json:"attempts" yaml:"attempts"`
	Archived []string             `json:"archived,omitempty" yaml:"archived,omitempty"`
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Record and enroll training clips for a user",
	Long: `Record four clips of at least 5 seconds each and enroll them with the
backend under one username.

Without --input the default microphone is used: press Enter to end a clip,
or let it stop by itself after 10 seconds. With --input, each WAV file is
played back as one clip.

Examples:
  speakerid enroll --user john
  speakerid enroll --user john -i a.wav -i b.wav -i c.wav -i d.wav
  speakerid enroll --manifest john.yaml --archive ./clips`,
	RunE: runEnroll,
}

func init() {
	enrollCmd.Flags().StringP("user", "u", "", "username to enroll")
	enrollCmd.Flags().StringArrayP("input", "i", nil, "WAV file to use as a clip (repeatable)")
	enrollCmd.Flags().String("manifest", "", "YAML or JSON manifest listing the user and clips")
	enrollCmd.Flags().String("archive", "", "archive accepted clips to a directory, s3:// or gs:// URI")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	user, _ := cmd.Flags().GetString("user")
	inputs, _ := cmd.Flags().GetStringArray("input")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	archiveURI, _ := cmd.Flags().GetString("archive")

	if manifestPath != "" {
		var m enrollManifest
		if err := cli.LoadRequest(manifestPath, &m); err != nil {
			return err
		}
		if user == "" {
			user = m.User
		}
		if archiveURI == "" {
			archiveURI = m.Archive
		}
		base := filepath.Dir(manifestPath)
		for _, c := range m.Clips {
			if !filepath.IsAbs(c) {
				c = filepath.Join(base, c)
			}
			inputs = append(inputs, c)
		}
	}
	if len(inputs) > clipstore.RequiredClipCount {
		return fmt.Errorf("at most %d clips can be enrolled, got %d", clipstore.RequiredClipCount, len(inputs))
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

	orch := enrollment.New(newClient(c), clipstore.New(),
		enrollment.WithLogger(slog.Default()),
		enrollment.WithHistory(hist))
	if err := orch.SetUsername(user); err != nil {
		return err
	}

	var (
		src      recording.Capture
		playlist *capture.Playlist
		enter    lineReader
	)
	if len(inputs) > 0 {
		playlist = capture.NewPlaylist(inputs)
		src = playlist
	} else {
		m := mic.New()
		m.Logger = slog.Default()
		src = m
		enter = readLines(os.Stdin)
	}

	var (
		mu       sync.Mutex
		summary  = enrollSummary{Username: orch.Username(), Required: clipstore.RequiredClipCount}
		surfaced int
	)
	observe := func(ev flow.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case flow.EventClipReady:
			surfaced++
			if !structured() {
				cli.PrintInfo("Clip ready: %s, %s", cli.FormatDuration(ev.Duration), cli.FormatBytes(int64(ev.Bytes)))
			}
		case flow.EventEnrollment:
			if ev.Attempt.Status == enrollment.StatusUploading {
				return
			}
			summary.Attempts = append(summary.Attempts, *ev.Attempt)
			if structured() {
				return
			}
			if ev.Attempt.Status == enrollment.StatusSuccess {
				cli.PrintSuccess("Clip %d enrolled (%s)", ev.Attempt.ClipIndex, cli.FormatDuration(ev.Attempt.Duration))
			} else {
				cli.PrintWarning("Clip %d failed: %s", ev.Attempt.ClipIndex, ev.Attempt.Message)
			}
		case flow.EventArchived:
			summary.Archived = append(summary.Archived, ev.Path)
		case flow.EventError:
			slog.Warn("enroll", "flow", ev.Flow, "error", ev.Error)
		}
	}

	tr := flow.NewTraining(ctx, src, orch,
		flow.WithLogger(slog.Default()),
		flow.WithObserver(observe),
		flow.WithArchive(archive))
	defer tr.Close()

	for {
		if orch.Store().TrainingComplete() || (playlist != nil && playlist.Remaining() == 0) {
			break
		}
		mu.Lock()
		before := surfaced
		mu.Unlock()

		if err := tr.Start(ctx); err != nil {
			return err
		}
		if enter != nil {
			promptRecording(fmt.Sprintf("clip %d/%d", orch.Store().NextIndex(), clipstore.RequiredClipCount),
				tr.Session().Config())
		} else {
			slog.Debug("enroll: replaying", "file", inputs[len(inputs)-playlist.Remaining()-1])
		}
		if err := awaitRecording(ctx, tr.Session(), enter); err != nil {
			return err
		}
		if err := tr.Wait(ctx); err != nil {
			return err
		}

		mu.Lock()
		short := surfaced == before
		mu.Unlock()
		if short && !structured() {
			cli.PrintWarning("Recording shorter than %s was discarded",
				cli.FormatDuration(tr.Session().Config().MinDuration))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	summary.Clips = orch.Store().Len()
	summary.Complete = orch.Store().TrainingComplete()
	if structured() {
		return outputResult(summary)
	}
	if summary.Complete {
		cli.PrintSuccess("Training complete for %s", summary.Username)
	} else {
		cli.PrintInfo("%s: %d/%d clips enrolled", summary.Username, summary.Clips, summary.Required)
	}
	return nil
}
