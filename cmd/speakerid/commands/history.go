package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/recognition"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent enrollment and recognition attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		wipe, _ := cmd.Flags().GetBool("clear")

		c, err := getContext()
		if err != nil {
			return err
		}
		hist, closeHistory, err := openHistory(c)
		if err != nil {
			return err
		}
		defer closeHistory()

		if wipe {
			if err := hist.Clear(cmd.Context()); err != nil {
				return err
			}
			cli.PrintSuccess("History cleared")
			return nil
		}

		entries, err := hist.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if structured() {
			return outputResult(map[string]any{"entries": entries})
		}
		if len(entries) == 0 {
			fmt.Println("No attempts recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tKIND\tUSER\tRESULT\tLENGTH")
		for _, e := range entries {
			length := "-"
			if e.DurationMS > 0 {
				length = cli.FormatDuration(msDuration(e.DurationMS))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Time().Format("2006-01-02 15:04:05"),
				e.Kind, e.Username, describe(e), length)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of attempts to show")
	historyCmd.Flags().Bool("clear", false, "delete all recorded attempts")
}

func describe(e history.Entry) string {
	switch {
	case e.Kind == history.KindEnrollment && e.Status == "success":
		return fmt.Sprintf("clip %d enrolled", e.ClipIndex)
	case e.Kind == history.KindEnrollment:
		return fmt.Sprintf("clip %d %s: %s", e.ClipIndex, e.Status, e.Message)
	case e.Outcome != "":
		return fmt.Sprintf("%s %s (%s)", e.Outcome, e.PredictedUser, recognition.FormatConfidence(e.Confidence))
	default:
		return e.Status + ": " + e.Message
	}
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
