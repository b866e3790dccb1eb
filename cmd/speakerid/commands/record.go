package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/recording"
)

// lineReader delivers lines typed on stdin. One reader serves a whole
// command so no keypress is lost between recordings.
type lineReader chan struct{}

func readLines(r io.Reader) lineReader {
	ch := make(lineReader)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- struct{}{}
		}
	}()
	return ch
}

// awaitRecording blocks until the session's recording is finalized. When
// enter is non-nil, a line on stdin stops the recording early.
func awaitRecording(ctx context.Context, s *recording.Session, enter lineReader) error {
	done := s.Done()
	for {
		select {
		case <-done:
			return nil
		case _, ok := <-enter:
			if !ok {
				enter = nil
				continue
			}
			s.Stop()
		case <-ctx.Done():
			s.Stop()
			return ctx.Err()
		}
	}
}

func promptRecording(what string, cfg recording.Config) {
	fmt.Fprintf(os.Stderr, "● Recording %s. Speak now, press Enter to stop (at least %s, auto-stops at %s)\n",
		what, cli.FormatDuration(cfg.MinDuration), cli.FormatDuration(cfg.MaxDuration))
}
