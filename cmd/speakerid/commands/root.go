package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/clog"
	"github.com/spf13/cobra"

	"github.com/haivivi/speakerid/pkg/cli"
	"github.com/haivivi/speakerid/pkg/history"
	"github.com/haivivi/speakerid/pkg/kv"
	"github.com/haivivi/speakerid/pkg/speakerapi"
	"github.com/haivivi/speakerid/pkg/storage"
)

const appName = "speakerid"

var (
	// Global flags
	cfgFile     string
	contextName string
	baseURL     string
	outputFile  string
	outputJSON  bool
	query       string
	verbose     bool

	// Global configuration
	globalConfig *cli.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speakerid",
	Short: "Speaker identification CLI",
	Long: `speakerid - enroll speakers and identify them by voice.

Training records four clips of at least 5 seconds per user and enrolls
them with the recognition backend. Testing records a clip of at least
3 seconds and asks the backend who is speaking.

Configuration is stored in ~/.giztoy/speakerid/ and supports multiple
contexts, similar to kubectl's context management.

Examples:
  # Point a context at a backend
  speakerid config add-context local --base-url http://localhost:5000
  speakerid config use-context local

  # Enroll from four WAV files
  speakerid enroll --user john -i a.wav -i b.wav -i c.wav -i d.wav

  # Identify the speaker in a file
  speakerid recognize -i test.wav --json | jq .prediction
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.giztoy/speakerid/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "backend base URL (overrides context and $"+speakerapi.EnvBaseURL+")")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().StringVar(&query, "query", "", "jq expression applied to the output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(recognizeCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(clog.New(
		clog.WithWriter(os.Stderr),
		clog.WithLevel(level),
		clog.WithTimeFmt("15:04:05"),
		clog.WithSource(false),
	)))

	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getConfig returns the global configuration
func getConfig() *cli.Config {
	return globalConfig
}

// getContext returns the context to use. Without -c and without a current
// context, an empty context is returned so the defaults apply.
func getContext() (*cli.Context, error) {
	cfg := getConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return cfg.ResolveContext(contextName)
}

// newClient builds the backend client for c. The --base-url flag wins over
// the context, which wins over $SPEAKERID_BASE_URL.
func newClient(c *cli.Context) *speakerapi.Client {
	opts := []speakerapi.Option{speakerapi.WithLogger(slog.Default())}
	if c.BaseURL != "" {
		opts = append(opts, speakerapi.WithBaseURL(c.BaseURL))
	}
	if baseURL != "" {
		opts = append(opts, speakerapi.WithBaseURL(baseURL))
	}
	if c.Timeout > 0 {
		opts = append(opts, speakerapi.WithTimeout(time.Duration(c.Timeout)*time.Second))
	}
	return speakerapi.NewClient(opts...)
}

// openHistory opens the attempt history of c. The returned close function
// releases the database.
func openHistory(c *cli.Context) (*history.Log, func(), error) {
	dir := c.HistoryDir
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, nil, err
		}
		if err := paths.EnsureDataDir(); err != nil {
			return nil, nil, err
		}
		dir = paths.DataPath("history")
	}
	store, err := kv.NewBadger(kv.BadgerOptions{Dir: dir, Logger: slog.Default()})
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	return history.New(store, kv.Key{"speakerid"}), func() { store.Close() }, nil
}

// openArchive opens the archive named by the --archive flag or the context.
// It returns nil when neither is set.
func openArchive(ctx context.Context, flag string, c *cli.Context) (storage.FileStore, error) {
	uri := flag
	if uri == "" {
		uri = c.Archive
	}
	if uri == "" {
		return nil, nil
	}
	fs, err := storage.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	slog.Debug("archive opened", "uri", uri)
	return fs, nil
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
		Query:  query,
	})
}

// structured reports whether results should be written as data rather than
// rendered for the terminal.
func structured() bool {
	return outputJSON || query != "" || outputFile != ""
}
