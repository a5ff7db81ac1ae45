package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeSystemPrompt = `You compare software task descriptions for a task tracker.
For each numbered pair, estimate the probability that both texts describe the same piece of work.
Respond with only a JSON array of numbers between 0 and 1, one per pair, in order.`

// ClaudeOracle asks a Claude model to score pairs.
type ClaudeOracle struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeOracle creates an oracle. An empty model selects Claude Sonnet 4.
func NewClaudeOracle(apiKey, model string, opts ...option.RequestOption) (*ClaudeOracle, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is not set")
	}
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeOracle{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}, nil
}

func (o *ClaudeOracle) CompareBatch(ctx context.Context, pairs []Pair) ([]float64, error) {
	resp, err := o.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     o.model,
		MaxTokens: int64(64 + 16*len(pairs)),
		System: []anthropic.TextBlockParam{
			{Text: claudeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(pairs))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	return parseScores(text.String(), len(pairs))
}

func buildPrompt(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "Pair %d:\nA: %s\nB: %s\n\n", i+1, p.A, p.B)
	}
	return b.String()
}

// parseScores extracts the JSON array from a model answer.
func parseScores(text string, want int) ([]float64, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array in response: %q", text)
	}
	var scores []float64
	if err := json.Unmarshal([]byte(text[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	if len(scores) != want {
		return nil, fmt.Errorf("expected %d scores, got %d", want, len(scores))
	}
	return scores, nil
}
