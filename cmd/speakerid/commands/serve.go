package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/capture"
	"github.com/haivivi/speakerid/pkg/capture/mic"
	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/clipstore"
	"github.com/haivivi/speakerid/pkg/enrollment"
	"github.com/haivivi/speakerid/pkg/flow"
	"github.com/haivivi/speakerid/pkg/recognition"
	"github.com/haivivi/speakerid/pkg/recording"
	"github.com/haivivi/speakerid/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the training and testing control server",
	Long: `Serve the training and testing flows over HTTP.

A browser page connects to /ws/capture to provide microphone audio and to
/ws/events to follow progress; the /api routes drive the flows. With
--mic the server records from the local microphone instead.

Example:
  speakerid serve --addr :8080 --archive ./clips`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Bool("mic", false, "record from the local microphone instead of the browser")
	serveCmd.Flags().String("archive", "", "archive clips to a directory, s3:// or gs:// URI")
	serveCmd.Flags().Int("backlog", 128, "number of recent events replayed to new /ws/events clients")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr, _ := cmd.Flags().GetString("addr")
	useMic, _ := cmd.Flags().GetBool("mic")
	archiveURI, _ := cmd.Flags().GetString("archive")
	backlog, _ := cmd.Flags().GetInt("backlog")

	c, err := getContext()
	if err != nil {
		return err
	}
	client := newClient(c)
	hist, closeHistory, err := openHistory(c)
	if err != nil {
		return err
	}
	defer closeHistory()
	archive, err := openArchive(ctx, archiveURI, c)
	if err != nil {
		return err
	}

	logger := slog.Default()
	var (
		src    recording.Capture
		bridge http.Handler
	)
	if useMic {
		m := mic.New()
		m.Logger = logger
		src = m
	} else {
		b := capture.NewBridge(capture.WithBridgeLogger(logger))
		src, bridge = b, b
	}

	hub := server.NewHub(backlog)
	opts := []flow.Option{
		flow.WithLogger(logger),
		flow.WithArchive(archive),
		flow.WithObserver(hub.Publish),
	}
	training := flow.NewTraining(ctx, src,
		enrollment.New(client, clipstore.New(), enrollment.WithLogger(logger), enrollment.WithHistory(hist)),
		opts...)
	defer training.Close()
	testing := flow.NewTesting(ctx, src,
		recognition.New(client, recognition.WithLogger(logger), recognition.WithHistory(hist)),
		opts...)
	defer testing.Close()

	srv := server.New(server.Config{
		Training: training,
		Testing:  testing,
		Backend:  client,
		Events:   hub,
		History:  hist,
		Bridge:   bridge,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	cli.PrintInfo("Listening on %s (backend %s)", addr, client.BaseURL())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
