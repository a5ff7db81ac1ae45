package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPOracle posts {"pairs":[{"a":..,"b":..}]} and expects {"scores":[..]}.
type HTTPOracle struct {
	url    string
	token  string
	client *http.Client
}

type oracleRequest struct {
	Pairs []Pair `json:"pairs"`
}

type oracleResponse struct {
	Scores []float64 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewHTTPOracle creates a client for url. token, when set, is sent as a
// bearer token.
func NewHTTPOracle(url, token string, client *http.Client) *HTTPOracle {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPOracle{url: url, token: token, client: client}
}

func (o *HTTPOracle) CompareBatch(ctx context.Context, pairs []Pair) ([]float64, error) {
	body, err := json.Marshal(oracleRequest{Pairs: pairs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var decoded oracleResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(respBody, &decoded) == nil && decoded.Error != "" {
			return nil, fmt.Errorf("oracle error (%d): %s", resp.StatusCode, decoded.Error)
		}
		return nil, fmt.Errorf("oracle error (%d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return decoded.Scores, nil
}
