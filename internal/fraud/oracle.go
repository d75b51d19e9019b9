package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wakala/payouts/internal/domain"
)

// OracleClient posts score requests to an HTTP fraud oracle.
type OracleClient struct {
	url        string
	httpClient *http.Client
}

// NewOracleClient targets the oracle endpoint at url. The per-request
// deadline comes from the Evaluator; timeout caps the transport.
func NewOracleClient(url string, timeout time.Duration) *OracleClient {
	return &OracleClient{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *OracleClient) Score(ctx context.Context, in ScoreRequest) (ScoreResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("%w: build request: %v", domain.ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ScoreResponse{}, fmt.Errorf("%w: oracle returned status %d", domain.ErrOracleUnavailable, resp.StatusCode)
	}

	var out ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ScoreResponse{}, fmt.Errorf("%w: decode response: %v", domain.ErrOracleUnavailable, err)
	}
	return out, nil
}

// DisabledScorer is used when no oracle is configured. It clears everything.
type DisabledScorer struct{}

func (DisabledScorer) Score(context.Context, ScoreRequest) (ScoreResponse, error) {
	return ScoreResponse{}, nil
}

// NewScorer returns an OracleClient for url, or DisabledScorer when url is
// empty.
func NewScorer(url string, timeout time.Duration) Scorer {
	if strings.TrimSpace(url) == "" {
		return DisabledScorer{}
	}
	return NewOracleClient(url, timeout)
}
