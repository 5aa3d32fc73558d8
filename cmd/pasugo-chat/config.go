package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	pasugo "github.com/pasugo/pasugo-chat-go"
	"github.com/pasugo/pasugo-chat-go/auth"
)

// cliConfig is read from the environment.
type cliConfig struct {
	Endpoint    string `env:"PASUGO_ENDPOINT" envDefault:"ws://localhost:8000"`
	APIEndpoint string `env:"PASUGO_API_ENDPOINT"`
	Token       string `env:"PASUGO_TOKEN"`
	SessionFile string `env:"PASUGO_SESSION_FILE"`
	LogLevel    string `env:"PASUGO_LOG_LEVEL" envDefault:"warn"`
	MetricsAddr string `env:"PASUGO_METRICS_ADDR"`

	Heartbeat      time.Duration `env:"PASUGO_HEARTBEAT_INTERVAL" envDefault:"30s"`
	PongTimeout    time.Duration `env:"PASUGO_PONG_TIMEOUT" envDefault:"0s"`
	ReconnectDelay time.Duration `env:"PASUGO_RECONNECT_DELAY" envDefault:"2s"`
	MaxReconnects  int           `env:"PASUGO_MAX_RECONNECTS" envDefault:"5"`
	PollInterval   time.Duration `env:"PASUGO_POLL_INTERVAL" envDefault:"8s"`
	RequestTimeout time.Duration `env:"PASUGO_REQUEST_TIMEOUT" envDefault:"10s"`
}

// loadConfig parses the environment.
func loadConfig() (*cliConfig, error) {
	cfg := &cliConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("PASUGO_ENDPOINT is required")
	}
	if cfg.MaxReconnects < 1 {
		return nil, fmt.Errorf("PASUGO_MAX_RECONNECTS must be positive, got %d", cfg.MaxReconnects)
	}
	if cfg.Token == "" && cfg.SessionFile == "" {
		cfg.SessionFile = defaultSessionFile()
	}
	return cfg, nil
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.yaml"
	}
	return filepath.Join(home, ".pasugo", "session.yaml")
}

// loadEnvFiles applies .env from the working directory when present.
// Values already set in the environment win.
func loadEnvFiles() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
}

// tokens returns the provider and, for session files, the stored identity.
func (c *cliConfig) tokens() (auth.TokenProvider, auth.Identity, error) {
	if c.Token != "" {
		return auth.Static(c.Token), auth.Identity{}, nil
	}
	f := auth.SessionFile{Path: c.SessionFile}
	id, err := f.Identity()
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return nil, auth.Identity{}, fmt.Errorf("no session at %s: log in with the Pasugo app or set PASUGO_TOKEN", c.SessionFile)
		}
		return nil, auth.Identity{}, err
	}
	return f, id, nil
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		With().
		Timestamp().
		Logger().
		Level(parseLevel(level))
}

func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || raw == "" {
		return zerolog.WarnLevel
	}
	return level
}

// newClient builds a chat client for the configured session. The returned
// stop func disposes the client and shuts the metrics listener down.
func newClient(cfg *cliConfig, r pasugo.Renderer, logOut io.Writer) (*pasugo.Client, func(), error) {
	tokens, identity, err := cfg.tokens()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(logOut, cfg.LogLevel)

	var (
		metrics *pasugo.Metrics
		srv     *http.Server
	)
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = pasugo.NewMetrics(reg)
		srv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics listener stopped")
			}
		}()
	}

	client, err := pasugo.New(pasugo.Config{
		Endpoint:             cfg.Endpoint,
		APIEndpoint:          cfg.APIEndpoint,
		Tokens:               tokens,
		Identity:             identity,
		HeartbeatInterval:    cfg.Heartbeat,
		PongTimeout:          cfg.PongTimeout,
		ReconnectBaseDelay:   cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnects,
		PollInterval:         cfg.PollInterval,
		RequestTimeout:       cfg.RequestTimeout,
		Logger:               &logger,
		Metrics:              metrics,
	}, r)
	if err != nil {
		if srv != nil {
			_ = srv.Close()
		}
		return nil, nil, err
	}

	stop := func() {
		client.Dispose()
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}
	}
	return client, stop, nil
}
