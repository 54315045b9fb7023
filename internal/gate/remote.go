package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UnavailableError marks a scorer transport or availability failure.
// The gate maps it to the configured fail mode instead of propagating.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("risk scorer unavailable (%s): %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// RemoteScorerConfig holds parameters for an external scoring service.
type RemoteScorerConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// RemoteScorer posts extracted features to an external service and
// reads back a score with signals. Every failure, transport, HTTP
// status, or malformed body, surfaces as *UnavailableError.
type RemoteScorer struct {
	cfg    RemoteScorerConfig
	client *http.Client
}

func NewRemoteScorer(cfg RemoteScorerConfig) *RemoteScorer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RemoteScorer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *RemoteScorer) Name() string { return "remote" }

func (s *RemoteScorer) Fingerprint() string {
	return s.cfg.Endpoint + "|" + s.cfg.Model
}

func (s *RemoteScorer) Score(ctx context.Context, f *Features) (*Assessment, error) {
	body, err := json.Marshal(map[string]any{
		"model":    s.cfg.Model,
		"features": f,
	})
	if err != nil {
		return nil, &UnavailableError{Endpoint: s.cfg.Endpoint, Err: fmt.Errorf("marshal features: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &UnavailableError{Endpoint: s.cfg.Endpoint, Err: fmt.Errorf("create request: %w", err)}
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Endpoint: s.cfg.Endpoint, Err: fmt.Errorf("score request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, &UnavailableError{
			Endpoint: s.cfg.Endpoint,
			Err:      fmt.Errorf("score HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var a Assessment
	if err := json.Unmarshal(respBody, &a); err != nil {
		return nil, &UnavailableError{Endpoint: s.cfg.Endpoint, Err: fmt.Errorf("parse score response: %w", err)}
	}
	if a.Score < 0 {
		a.Score = 0
	}
	if a.Score > 1 {
		a.Score = 1
	}
	return &a, nil
}
