package search

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/deepresearch/internal/metrics"
	"github.com/hyperifyio/deepresearch/internal/research"
)

// Fanout runs every enabled Provider concurrently and merges the
// results into one deduplicated, capped list of research.Hit.
// Providers is consulted in declaration order: when two
// engines return the same URL, the earlier-listed engine's copy is
// kept.
type Fanout struct {
	Providers      []Provider
	PerEngineLimit int
	// MaxHits caps the aggregate; defaults to 10.
	MaxHits int
	Logger  func(engine string, err error)

	// Metrics, if set, records per-engine search latency.
	Metrics *metrics.Registry
}

// Search fans out query to every configured provider and returns the
// deduplicated, capped aggregate. A provider's failure never fails the
// aggregate.
func (f *Fanout) Search(ctx context.Context, query string) []research.Hit {
	limit := f.PerEngineLimit
	if limit <= 0 {
		limit = 10
	}
	perEngine := make([][]Result, len(f.Providers))

	var wg sync.WaitGroup
	for i, p := range f.Providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			start := time.Now()
			results, err := p.Search(ctx, query, limit)
			if f.Metrics != nil {
				f.Metrics.ObserveSearch(p.Name(), time.Since(start))
			}
			if err != nil {
				if f.Logger != nil {
					f.Logger(p.Name(), err)
				}
				return
			}
			perEngine[i] = results
		}(i, p)
	}
	wg.Wait()

	merged := mergeByDeclarationOrder(perEngine)

	maxHits := f.MaxHits
	if maxHits <= 0 {
		maxHits = 10
	}
	if len(merged) > maxHits {
		merged = merged[:maxHits]
	}

	hits := make([]research.Hit, 0, len(merged))
	for _, r := range merged {
		if !research.ValidHitURL(r.URL) {
			continue
		}
		hits = append(hits, research.Hit{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Snippet,
			Engine:  r.Source,
		})
	}
	return hits
}

// mergeByDeclarationOrder concatenates per-engine result slices in
// engine-declaration order and drops exact-URL duplicates (after
// fragment-strip, lowercase-scheme+host normalization), keeping the
// first occurrence.
func mergeByDeclarationOrder(perEngine [][]Result) []Result {
	seen := map[string]struct{}{}
	out := make([]Result, 0, 64)
	for _, group := range perEngine {
		for _, r := range group {
			key := normalizeKey(r.URL)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

// normalizeKey canonicalizes a URL for exact-match deduplication:
// strip the fragment, lowercase scheme+host. Invalid
// URLs normalize to "" and are dropped by the caller.
func normalizeKey(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
