// Package similarity scores how likely two task texts describe the same work.
package similarity

import (
	"context"
	"errors"
	"strings"
)

// ErrExternalService marks a failed or malformed oracle response. Scorers
// recover from it locally; it only appears in logs.
var ErrExternalService = errors.New("external similarity service failed")

// Pair is two texts to compare.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Scorer returns similarity scores in [0, 1]. Scoring never fails; remote
// implementations fall back to a local algorithm.
type Scorer interface {
	Score(ctx context.Context, a, b string) float64
	ScoreBatch(ctx context.Context, pairs []Pair) []float64
}

// Normalize lower-cases text and folds runs of whitespace to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Lexical is the Jaccard similarity of the word sets of the normalized texts.
type Lexical struct{}

func (Lexical) Score(_ context.Context, a, b string) float64 {
	return jaccard(wordSet(a), wordSet(b))
}

func (l Lexical) ScoreBatch(ctx context.Context, pairs []Pair) []float64 {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = l.Score(ctx, p.A, p.B)
	}
	return out
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(Normalize(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
