// Package gen wraps the text generation service the drafting stages call.
// When no endpoint is configured the stages fall back to their built-in
// structured templates.
package gen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"bidline/internal/config"
)

// ErrUnavailable marks generation failures the caller should retry later.
var ErrUnavailable = errors.New("generation service unavailable")

// Generator produces prose from a prompt. Tests supply fakes.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// HTTPGenerator calls an Ollama-compatible /api/generate endpoint.
type HTTPGenerator struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	Model   string
}

var _ Generator = (*HTTPGenerator)(nil)

func NewHTTPGenerator(ep config.ServiceEndpoint) *HTTPGenerator {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &HTTPGenerator{
		http:    rc,
		baseURL: strings.TrimRight(ep.BaseURL, "/"),
		apiKey:  ep.APIKey,
		Model:   "llama3.1",
	}
}

// Configured reports whether a generation endpoint was provided.
func (g *HTTPGenerator) Configured() bool { return g != nil && g.baseURL != "" }

func (g *HTTPGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !g.Configured() {
		return "", ErrUnavailable
	}
	payload, err := json.Marshal(map[string]any{
		"model":  g.Model,
		"system": system,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: generation returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation returned %d", resp.StatusCode)
	}
	text := gjson.GetBytes(body, "response").String()
	if text == "" {
		return "", fmt.Errorf("generation returned empty response")
	}
	return text, nil
}
