package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Tavily implements Provider against the Tavily Search API, a
// research-oriented search provider that returns pre-summarized
// snippets. Request/response shaping follows the same pattern as the
// other adapters in this package.
type Tavily struct {
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	Sleep      func(time.Duration)
}

func (t *Tavily) Name() string { return "tavily" }

func (t *Tavily) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if t.APIKey == "" {
		return nil, fmt.Errorf("missing tavily api key")
	}
	if limit <= 0 {
		limit = 10
	}
	results, err := withRetry(ctx, t.retryAttempts(), defaultRetryBase, defaultRetryCap, t.Sleep, func() ([]Result, error) {
		return t.searchOnce(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Tavily) retryAttempts() int {
	if t.MaxRetries > 0 {
		return t.MaxRetries
	}
	return 3
}

func (t *Tavily) searchOnce(ctx context.Context, query string, limit int) ([]Result, error) {
	reqBody, err := json.Marshal(tavilyRequest{
		APIKey:     t.APIKey,
		Query:      query,
		MaxResults: limit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tavily status: %d", resp.StatusCode)
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(tr.Results))
	for _, r := range tr.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Content),
			Source:  t.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}
