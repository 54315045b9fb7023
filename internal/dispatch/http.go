package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/scriptward/scriptward/internal/enclave"
)

// wireRequest and wireResponse are the remote tool protocol: one POST
// per call, {name, args} out, {result} or {error} back.
type wireRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type wireResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// maxResponseBytes bounds how much of a tool response is read. Results
// above the extraction threshold are lifted to references, so large
// responses are legitimate; this cap only stops a runaway endpoint.
const maxResponseBytes = 32 << 20

// HTTP returns a ToolFunc that forwards every call to a remote
// endpoint. Transport failures, non-200 statuses, and {error} bodies
// all surface as plain errors; the runtime classifies them as tool
// failures, except a blown run deadline which stays a timeout.
func HTTP(endpoint, apiKey string, timeout time.Duration) enclave.ToolFunc {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, name string, args map[string]any) (any, error) {
		body, err := json.Marshal(wireRequest{Name: name, Args: args})
		if err != nil {
			return nil, fmt.Errorf("encode tool call: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tool endpoint: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("tool endpoint HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		var wr wireResponse
		if err := json.Unmarshal(respBody, &wr); err != nil {
			return nil, fmt.Errorf("parse tool response: %w", err)
		}
		if wr.Error != "" {
			return nil, errors.New(wr.Error)
		}
		return wr.Result, nil
	}
}
