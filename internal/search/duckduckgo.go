package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DuckDuckGo implements Provider by scraping DuckDuckGo's HTML-only
// result page (html.duckduckgo.com), the one supported engine with no
// official JSON API. Results are parsed with goquery rather than a
// hand-rolled string scan.
type DuckDuckGo struct {
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	Sleep      func(time.Duration)
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	results, err := withRetry(ctx, d.retryAttempts(), defaultRetryBase, defaultRetryCap, d.Sleep, func() ([]Result, error) {
		return d.searchOnce(ctx, query, limit)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (d *DuckDuckGo) retryAttempts() int {
	if d.MaxRetries > 0 {
		return d.MaxRetries
	}
	return 3
}

func (d *DuckDuckGo) searchOnce(ctx context.Context, query string, limit int) ([]Result, error) {
	u := "https://html.duckduckgo.com/html/?" + (url.Values{"q": {query}}).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	ua := d.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; deepresearch/1.0)"
	}
	req.Header.Set("User-Agent", ua)

	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("duckduckgo status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, limit)
	doc.Find(".result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		link := sel.Find("a.result__a").First()
		href, _ := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").First().Text())
		target := resolveDuckDuckGoRedirect(href)
		if target == "" || title == "" {
			return true
		}
		out = append(out, Result{
			Title:   title,
			URL:     target,
			Snippet: snippet,
			Source:  d.Name(),
		})
		return len(out) < limit
	})
	return out, nil
}

// resolveDuckDuckGoRedirect unwraps DuckDuckGo's "/l/?uddg=<encoded>"
// tracking redirect links into the plain destination URL.
func resolveDuckDuckGoRedirect(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.Contains(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			if decoded, err := url.QueryUnescape(target); err == nil {
				return decoded
			}
		}
	}
	if !u.IsAbs() {
		return ""
	}
	return u.String()
}
