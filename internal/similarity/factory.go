package similarity

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	ProviderLocal     = "local"
	ProviderHTTP      = "http"
	ProviderAnthropic = "anthropic"
)

// Config selects and tunes a scorer.
type Config struct {
	Provider    string
	URL         string
	Token       string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Deadline    time.Duration
	BatchSize   int
	Concurrency int
}

// New builds the scorer named by cfg.Provider. An empty provider is local.
func New(cfg Config, logger *slog.Logger) (Scorer, error) {
	opts := RemoteOptions{Timeout: cfg.Timeout, Deadline: cfg.Deadline, BatchSize: cfg.BatchSize, Concurrency: cfg.Concurrency}

	switch cfg.Provider {
	case "", ProviderLocal:
		return Lexical{}, nil
	case ProviderHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("similarity provider %q requires a url", cfg.Provider)
		}
		return NewRemote(NewHTTPOracle(cfg.URL, cfg.Token, &http.Client{}), opts, logger), nil
	case ProviderAnthropic:
		oracle, err := NewClaudeOracle(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewRemote(oracle, opts, logger), nil
	}
	return nil, fmt.Errorf("unknown similarity provider %q", cfg.Provider)
}
