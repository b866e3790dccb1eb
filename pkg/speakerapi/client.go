package speakerapi

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultBaseURL is the backend address used when nothing else is configured.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// EnvBaseURL names the environment variable that overrides DefaultBaseURL.
	EnvBaseURL = "SPEAKERID_BASE_URL"
)

// Client is the speaker-recognition backend client.
type Client struct {
	config *clientConfig
	http   *httpClient
}

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// Option is a function that configures the client.
type Option func(*clientConfig)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the request timeout. Ignored when WithHTTPClient is used.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// NewClient creates a backend client. The base URL is DefaultBaseURL,
// overridden by $SPEAKERID_BASE_URL, overridden by WithBaseURL.
func NewClient(opts ...Option) *Client {
	cfg := &clientConfig{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.baseURL = v
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{
			Timeout: cfg.timeout,
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Client{
		config: cfg,
		http:   newHTTPClient(cfg),
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.baseURL
}
