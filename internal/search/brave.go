package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Brave implements Provider against the Brave Search API's web search
// endpoint. Shaped after SearxNG's request-build/JSON-decode pattern in
// searxng.go, generalized to the N-engine Searcher.
type Brave struct {
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	Sleep      func(time.Duration)
}

func (b *Brave) Name() string { return "brave" }

func (b *Brave) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if b.APIKey == "" {
		return nil, fmt.Errorf("missing brave api key")
	}
	if limit <= 0 {
		limit = 10
	}
	results, err := withRetry(ctx, b.retryAttempts(), defaultRetryBase, defaultRetryCap, b.Sleep, func() ([]Result, error) {
		return b.searchOnce(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Brave) retryAttempts() int {
	if b.MaxRetries > 0 {
		return b.MaxRetries
	}
	return 3
}

func (b *Brave) searchOnce(ctx context.Context, query string, limit int) ([]Result, error) {
	u, _ := url.Parse("https://api.search.brave.com/res/v1/web/search")
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	hc := b.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("brave status: %d", resp.StatusCode)
	}

	var br braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(br.Web.Results))
	for _, r := range br.Web.Results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Snippet: strings.TrimSpace(r.Description),
			Source:  b.Name(),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}
