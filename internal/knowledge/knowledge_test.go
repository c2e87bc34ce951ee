package knowledge_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"bidline/internal/config"
	"bidline/internal/knowledge"
)

func TestSearchSendsFilterParams(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"q":        q.Get("q"),
			"category": q.Get("category"),
			"agency":   q.Get("agency"),
			"top_k":    q.Get("top_k"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"source":"cpars","title":"VA SOC","content":"ran the SOC","score":0.91}]}`))
	}))
	defer srv.Close()

	s := knowledge.NewHTTPSearcher(config.ServiceEndpoint{BaseURL: srv.URL})
	snips, err := s.Search(context.Background(), "cyber monitoring", knowledge.Filter{
		Category: "past_performance",
		Agency:   "Department of Veterans Affairs",
		TopK:     3,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got["q"] != "cyber monitoring" || got["category"] != "past_performance" ||
		got["agency"] != "Department of Veterans Affairs" || got["top_k"] != "3" {
		t.Fatalf("unexpected query params: %v", got)
	}
	if len(snips) != 1 || snips[0].Source != "cpars" || snips[0].Score != 0.91 {
		t.Fatalf("unexpected snippets: %+v", snips)
	}
}

func TestSearchDefaultsTopK(t *testing.T) {
	var topK string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		topK = r.URL.Query().Get("top_k")
		if r.URL.Query().Has("category") || r.URL.Query().Has("agency") {
			t.Errorf("empty filter fields must not be sent: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	s := knowledge.NewHTTPSearcher(config.ServiceEndpoint{BaseURL: srv.URL})
	if _, err := s.Search(context.Background(), "anything", knowledge.Filter{}); err != nil {
		t.Fatalf("search: %v", err)
	}
	if topK != "5" {
		t.Fatalf("expected default top_k 5, got %q", topK)
	}
}

func TestSearchServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := knowledge.NewHTTPSearcher(config.ServiceEndpoint{BaseURL: srv.URL})
	_, err := s.Search(context.Background(), "anything", knowledge.Filter{TopK: 1})
	if !errors.Is(err, knowledge.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearchUnconfigured(t *testing.T) {
	s := knowledge.NewHTTPSearcher(config.ServiceEndpoint{})
	if s.Configured() {
		t.Fatal("endpoint without base URL must report unconfigured")
	}
	if _, err := s.Search(context.Background(), "q", knowledge.Filter{}); !errors.Is(err, knowledge.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
