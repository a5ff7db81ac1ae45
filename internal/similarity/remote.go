package similarity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 10 * time.Second
	DefaultDeadline    = 30 * time.Second
	DefaultBatchSize   = 20
	DefaultConcurrency = 4
)

// Oracle scores pairs remotely. It returns exactly one score per pair.
type Oracle interface {
	CompareBatch(ctx context.Context, pairs []Pair) ([]float64, error)
}

// RemoteOptions tunes how requests are split and bounded. Timeout bounds
// one batch; Deadline bounds a whole ScoreBatch call.
type RemoteOptions struct {
	Timeout     time.Duration
	Deadline    time.Duration
	BatchSize   int
	Concurrency int
}

// Remote delegates scoring to an Oracle and falls back to Lexical when any
// batch fails.
type Remote struct {
	oracle   Oracle
	fallback Lexical
	opts     RemoteOptions
	logger   *slog.Logger
}

// NewRemote creates a remote scorer. Zero options take the defaults.
func NewRemote(oracle Oracle, opts RemoteOptions, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Remote{oracle: oracle, opts: opts, logger: logger}
}

func (r *Remote) Score(ctx context.Context, a, b string) float64 {
	return r.ScoreBatch(ctx, []Pair{{A: a, B: b}})[0]
}

func (r *Remote) ScoreBatch(ctx context.Context, pairs []Pair) []float64 {
	if len(pairs) == 0 {
		return []float64{}
	}
	scores, err := r.remoteScores(ctx, pairs)
	if err != nil {
		r.logger.Warn("similarity oracle failed, using lexical scores", "pairs", len(pairs), "error", err)
		return r.fallback.ScoreBatch(ctx, pairs)
	}
	return scores
}

func (r *Remote) remoteScores(ctx context.Context, pairs []Pair) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Deadline)
	defer cancel()

	out := make([]float64, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for start := 0; start < len(pairs); start += r.opts.BatchSize {
		end := min(start+r.opts.BatchSize, len(pairs))
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, r.opts.Timeout)
			defer cancel()

			scores, err := r.oracle.CompareBatch(cctx, pairs[start:end])
			if err != nil {
				return fmt.Errorf("%w: batch %d-%d: %w", ErrExternalService, start, end, err)
			}
			if len(scores) != end-start {
				return fmt.Errorf("%w: expected %d scores, got %d", ErrExternalService, end-start, len(scores))
			}
			for i, s := range scores {
				if math.IsNaN(s) || s < 0 || s > 1 {
					return fmt.Errorf("%w: score %v out of range", ErrExternalService, s)
				}
				out[start+i] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
