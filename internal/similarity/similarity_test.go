package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "fix the bug", Normalize("  Fix\tthe \n BUG "))
	require.Equal(t, "", Normalize("   "))
}

func TestLexical(t *testing.T) {
	ctx := context.Background()
	var l Lexical

	require.Equal(t, 1.0, l.Score(ctx, "Fix bug desc", "Fix   bug desc"))
	require.Equal(t, 1.0, l.Score(ctx, "FIX Bug", "fix bug"))
	require.Equal(t, 1.0, l.Score(ctx, "", " "))
	require.Equal(t, 0.0, l.Score(ctx, "", "something"))
	require.InDelta(t, 0.5, l.Score(ctx, "add login form", "add login page"), 1e-9)
	require.Equal(t, []float64{1, 0}, l.ScoreBatch(ctx, []Pair{{A: "a", B: "a"}, {A: "a", B: "b"}}))
}

type fakeOracle struct {
	mu      sync.Mutex
	calls   int
	batches [][]Pair
	fn      func(ctx context.Context, pairs []Pair) ([]float64, error)
}

func (f *fakeOracle) CompareBatch(ctx context.Context, pairs []Pair) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	f.batches = append(f.batches, pairs)
	f.mu.Unlock()
	return f.fn(ctx, pairs)
}

func constantScores(v float64) func(context.Context, []Pair) ([]float64, error) {
	return func(_ context.Context, pairs []Pair) ([]float64, error) {
		out := make([]float64, len(pairs))
		for i := range out {
			out[i] = v
		}
		return out, nil
	}
}

func TestRemote_BatchesAndPreservesOrder(t *testing.T) {
	oracle := &fakeOracle{fn: func(_ context.Context, pairs []Pair) ([]float64, error) {
		out := make([]float64, len(pairs))
		for i, p := range pairs {
			if p.A == p.B {
				out[i] = 0.9
			} else {
				out[i] = 0.1
			}
		}
		return out, nil
	}}
	r := NewRemote(oracle, RemoteOptions{BatchSize: 2, Concurrency: 2}, nil)

	pairs := []Pair{{"a", "a"}, {"a", "b"}, {"c", "c"}, {"d", "e"}, {"f", "f"}}
	scores := r.ScoreBatch(context.Background(), pairs)
	require.Equal(t, []float64{0.9, 0.1, 0.9, 0.1, 0.9}, scores)
	require.Equal(t, 3, oracle.calls)
}

func TestRemote_FallsBackToLexical(t *testing.T) {
	pairs := []Pair{{"fix bug", "Fix   bug"}, {"one", "two"}}
	want := []float64{1, 0}

	cases := map[string]func(context.Context, []Pair) ([]float64, error){
		"transport error": func(context.Context, []Pair) ([]float64, error) {
			return nil, errors.New("connection refused")
		},
		"wrong count": func(context.Context, []Pair) ([]float64, error) {
			return []float64{0.5}, nil
		},
		"out of range": constantScores(1.5),
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			r := NewRemote(&fakeOracle{fn: fn}, RemoteOptions{}, nil)
			require.Equal(t, want, r.ScoreBatch(context.Background(), pairs))
		})
	}
}

func TestRemote_TimeoutFallsBack(t *testing.T) {
	oracle := &fakeOracle{fn: func(ctx context.Context, pairs []Pair) ([]float64, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := NewRemote(oracle, RemoteOptions{Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	score := r.Score(context.Background(), "same words", "same words")
	require.Equal(t, 1.0, score)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRemote_DeadlineBoundsWholeRequest(t *testing.T) {
	// Each batch finishes within its own timeout, but together they do not.
	oracle := &fakeOracle{fn: func(ctx context.Context, pairs []Pair) ([]float64, error) {
		select {
		case <-time.After(30 * time.Millisecond):
			return constantScores(0.5)(ctx, pairs)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	r := NewRemote(oracle, RemoteOptions{
		Timeout:     time.Second,
		Deadline:    80 * time.Millisecond,
		BatchSize:   1,
		Concurrency: 1,
	}, nil)

	pairs := make([]Pair, 20)
	for i := range pairs {
		pairs[i] = Pair{A: "same words", B: "same words"}
	}
	start := time.Now()
	scores := r.ScoreBatch(context.Background(), pairs)
	require.Less(t, time.Since(start), 400*time.Millisecond)
	require.Len(t, scores, 20)
	require.Equal(t, 1.0, scores[0])
}

func TestRemote_EmptyInput(t *testing.T) {
	oracle := &fakeOracle{fn: constantScores(0.3)}
	r := NewRemote(oracle, RemoteOptions{}, nil)
	require.Empty(t, r.ScoreBatch(context.Background(), nil))
	require.Equal(t, 0, oracle.calls)
}

func TestHTTPOracle(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req oracleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		scores := make([]float64, len(req.Pairs))
		for i, p := range req.Pairs {
			if p.A == p.B {
				scores[i] = 1
			}
		}
		_ = json.NewEncoder(w).Encode(oracleResponse{Scores: scores})
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "secret", srv.Client())
	scores, err := o.CompareBatch(context.Background(), []Pair{{"x", "x"}, {"x", "y"}})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0}, scores)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPOracle_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	o := NewHTTPOracle(srv.URL, "", nil)
	_, err := o.CompareBatch(context.Background(), []Pair{{"x", "y"}})
	require.ErrorContains(t, err, "overloaded")

	// Through Remote the failure is absorbed.
	r := NewRemote(o, RemoteOptions{}, nil)
	require.Equal(t, []float64{0}, r.ScoreBatch(context.Background(), []Pair{{"x", "y"}}))
}

func TestParseScores(t *testing.T) {
	scores, err := parseScores("Here you go:\n[0.95, 0.1]\n", 2)
	require.NoError(t, err)
	require.Equal(t, []float64{0.95, 0.1}, scores)

	_, err = parseScores("no idea", 1)
	require.Error(t, err)

	_, err = parseScores("[0.5]", 2)
	require.Error(t, err)
}

func TestClaudeOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "[0.92, 0.05]"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	o, err := NewClaudeOracle("test-key", "", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	scores, err := o.CompareBatch(context.Background(), []Pair{{"a", "a"}, {"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, []float64{0.92, 0.05}, scores)
}

func TestNewClaudeOracleRequiresKey(t *testing.T) {
	_, err := NewClaudeOracle("", "")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(Config{}, nil)
	require.NoError(t, err)
	require.IsType(t, Lexical{}, s)

	s, err = New(Config{Provider: ProviderHTTP, URL: "http://localhost:1"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Remote{}, s)

	_, err = New(Config{Provider: ProviderHTTP}, nil)
	require.Error(t, err)

	s, err = New(Config{Provider: ProviderAnthropic, APIKey: "k"}, nil)
	require.NoError(t, err)
	require.IsType(t, &Remote{}, s)

	_, err = New(Config{Provider: "magic"}, nil)
	require.Error(t, err)
}
