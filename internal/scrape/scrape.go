// Package scrape composes RobotsPolicy, RateLimiter, the fetch client,
// and content extraction into one Scraper operation:
// Fetch(url) -> ScrapedContent.
package scrape

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/extract"
	"github.com/hyperifyio/deepresearch/internal/fetch"
	"github.com/hyperifyio/deepresearch/internal/metrics"
	"github.com/hyperifyio/deepresearch/internal/ratelimit"
	"github.com/hyperifyio/deepresearch/internal/research"
	"github.com/hyperifyio/deepresearch/internal/robots"
)

// pageCacheTTL is the fixed TTL for the page cache, distinct from the
// Store's general default.
const pageCacheTTL = 24 * time.Hour

// neutralReferer is sent on every fetch so a page sees ordinary
// search-engine traffic rather than a bare crawler.
const neutralReferer = "https://www.google.com/"

// Scraper turns a URL into ScrapedContent, consulting the page cache
// first and persisting both valid and invalid outcomes back to it so a
// failing host is not retried within the TTL window.
type Scraper struct {
	Robots      *robots.Manager
	RateLimiter *ratelimit.Limiter
	FetchClient *fetch.Client
	PageCache   *cache.Store
	UserAgent   string

	// Extractor selects the content-extraction strategy; nil defaults to
	// extract.HeuristicExtractor, the main/article/body text walk.
	Extractor extract.Extractor

	// MaxConcurrent bounds in-flight scrapes across this Scraper
	// instance, reusing the
	// fetch.Client.MaxConcurrent channel-gate idiom directly here since
	// the gate must cover the whole operation, not just the HTTP GET.
	MaxConcurrent int

	// Metrics, if set, records cache hit/miss and scrape failure reasons.
	Metrics *metrics.Registry

	limiter chan struct{}
}

func (s *Scraper) acquire() {
	if s.MaxConcurrent <= 0 {
		return
	}
	if s.limiter == nil {
		s.limiter = make(chan struct{}, s.MaxConcurrent)
	}
	s.limiter <- struct{}{}
}

func (s *Scraper) release() {
	if s.MaxConcurrent <= 0 || s.limiter == nil {
		return
	}
	<-s.limiter
}

// Fetch runs the full pipeline for one URL.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (research.ScrapedContent, error) {
	s.acquire()
	defer s.release()

	cacheKey := pageCacheKey(rawURL)
	if s.PageCache != nil {
		body, ok, err := s.PageCache.Get(ctx, cacheKey)
		if err == nil && ok {
			var cached research.ScrapedContent
			if err := json.Unmarshal(body, &cached); err == nil {
				if s.Metrics != nil {
					s.Metrics.CacheResult(true)
				}
				return cached, nil
			}
		}
		if s.Metrics != nil && !ok {
			s.Metrics.CacheResult(false)
		}
	}

	result := s.fetchFresh(ctx, rawURL)
	if s.Metrics != nil && !result.IsValid {
		s.Metrics.ObserveScrapeError(scrapeFailureReason(result.Error))
	}

	if s.PageCache != nil {
		if body, err := json.Marshal(result); err == nil {
			_ = s.PageCache.Set(ctx, cacheKey, body, pageCacheTTL, rawURL, nil)
		}
	}
	return result, nil
}

func (s *Scraper) fetchFresh(ctx context.Context, rawURL string) research.ScrapedContent {
	now := time.Now()
	invalid := func(reason string) research.ScrapedContent {
		return research.ScrapedContent{
			URL:        rawURL,
			AccessTime: now,
			IsValid:    false,
			Error:      reason,
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return invalid("invalid url")
	}

	if !s.Robots.Allowed(ctx, u) {
		return invalid("disallowed by robots.txt")
	}

	if s.RateLimiter != nil {
		if err := s.RateLimiter.Wait(ctx, u.Hostname()); err != nil {
			return invalid("rate limit wait: " + err.Error())
		}
	}

	body, contentType, err := s.doFetch(ctx, rawURL)
	if err != nil {
		return invalid(err.Error())
	}

	htmlForText := body
	if root := extract.SelectContentRoot(body); root != nil {
		htmlForText = root
	}
	extractor := s.Extractor
	if extractor == nil {
		extractor = extract.HeuristicExtractor{}
	}
	doc := extractor.Extract(htmlForText)
	meta := extract.ExtractMetadata(body)
	content := extract.Sanitize(doc.Text)

	// Markdown rendering is best-effort: session artifacts and LLM
	// excerpts prefer it over the plain-text walk, but a conversion
	// failure never invalidates an otherwise-valid scrape.
	var markdownContent string
	if md, err := extract.ToMarkdown(htmlForText); err == nil {
		markdownContent = extract.Sanitize(md)
	}

	title := meta.Title
	if title == "" {
		title = doc.Title
	}
	siteName := meta.SiteName
	if siteName == "" {
		siteName = research.SiteNameFromURL(rawURL)
	}

	wordCount := len(strings.Fields(content))
	scraped := research.ScrapedContent{
		URL:             rawURL,
		Content:         content,
		MarkdownContent: markdownContent,
		Title:           title,
		Author:          meta.Author,
		Description:     meta.Description,
		PublicationDate: meta.PublicationDate,
		SiteName:        siteName,
		AccessTime:      now,
		ContentType:     contentType,
		WordCount:       wordCount,
		ContentHash:     cache.ContentHash([]byte(content)),
		StatusCode:      200,
		IsValid:         content != "" && wordCount >= research.MinValidWordCount,
	}
	if !scraped.IsValid {
		scraped.Error = "content too short"
	}
	return scraped
}

func (s *Scraper) doFetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	base := s.FetchClient
	if base == nil {
		base = &fetch.Client{}
	}
	// Built field-by-field rather than dereferencing base: fetch.Client
	// carries a sync.Once/channel pair that must not be copied by value.
	req := &fetch.Client{
		HTTPClient:        base.HTTPClient,
		UserAgent:         base.UserAgent,
		Referer:           base.Referer,
		MaxAttempts:       base.MaxAttempts,
		PerRequestTimeout: base.PerRequestTimeout,
		Cache:             base.Cache,
		BypassCache:       base.BypassCache,
		RedirectMaxHops:   base.RedirectMaxHops,
		MaxConcurrent:     base.MaxConcurrent,
		MaxContentSize:    base.MaxContentSize,
	}
	if req.UserAgent == "" {
		req.UserAgent = s.UserAgent
	}
	if req.Referer == "" {
		req.Referer = neutralReferer
	}
	return req.Get(ctx, rawURL)
}

func pageCacheKey(rawURL string) string {
	return cache.Key(rawURL, map[string]string{"ns": "page"})
}

// scrapeFailureReason maps a ScrapedContent.Error string to one of the
// coarse reason labels Registry.ScrapeErrors groups by. Fetch-layer
// failures arrive prefixed with their rerr kind.
func scrapeFailureReason(errMsg string) string {
	switch {
	case errMsg == "invalid url":
		return "invalid_url"
	case errMsg == "disallowed by robots.txt":
		return "robots"
	case strings.HasPrefix(errMsg, "rate limit wait"):
		return "rate_limit"
	case errMsg == "content too short":
		return "too_short"
	case strings.Contains(errMsg, "content_rejected"):
		return "content_rejected"
	case strings.Contains(errMsg, "protocol_error"):
		return "bad_status"
	default:
		return "fetch"
	}
}
