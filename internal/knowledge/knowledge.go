// Package knowledge retrieves past-performance and capability snippets from
// an external retrieval service. Proposal stages lean on it for grounded
// narrative; when it is down the stages report a retryable failure rather
// than drafting blind.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"bidline/internal/config"
)

// ErrUnavailable marks retrieval failures the caller should retry later.
var ErrUnavailable = errors.New("retrieval service unavailable")

// Snippet is one retrieved document fragment with its relevance.
type Snippet struct {
	Source  string  `json:"source"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Filter narrows a search. Zero values mean unfiltered; a TopK of zero or
// less falls back to 5 results.
type Filter struct {
	Category string
	Agency   string
	TopK     int
}

// Searcher is the retrieval dependency of the proposal stages. Tests supply
// fakes.
type Searcher interface {
	Search(ctx context.Context, query string, f Filter) ([]Snippet, error)
}

// HTTPSearcher queries a retrieval endpoint over HTTP with retries.
type HTTPSearcher struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
}

var _ Searcher = (*HTTPSearcher)(nil)

func NewHTTPSearcher(ep config.ServiceEndpoint) *HTTPSearcher {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &HTTPSearcher{http: rc, baseURL: strings.TrimRight(ep.BaseURL, "/"), apiKey: ep.APIKey}
}

// Configured reports whether a retrieval endpoint was provided.
func (s *HTTPSearcher) Configured() bool { return s != nil && s.baseURL != "" }

func (s *HTTPSearcher) Search(ctx context.Context, query string, f Filter) ([]Snippet, error) {
	if !s.Configured() {
		return nil, ErrUnavailable
	}
	topK := f.TopK
	if topK <= 0 {
		topK = 5
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("top_k", strconv.Itoa(topK))
	if f.Category != "" {
		params.Set("category", f.Category)
	}
	if f.Agency != "" {
		params.Set("agency", f.Agency)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: retrieval returned %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval returned %d", resp.StatusCode)
	}
	var snippets []Snippet
	gjson.GetBytes(body, "results").ForEach(func(_, r gjson.Result) bool {
		snippets = append(snippets, Snippet{
			Source:  r.Get("source").String(),
			Title:   r.Get("title").String(),
			Content: r.Get("content").String(),
			Score:   r.Get("score").Float(),
		})
		return true
	})
	return snippets, nil
}
