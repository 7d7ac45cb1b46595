package search

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProvider struct {
	name    string
	results []Result
	err     error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestFanout_DedupesAcrossEngines_FirstListedWins(t *testing.T) {
	first := &stubProvider{name: "first", results: []Result{
		{Title: "First copy", URL: "https://example.com/a", Source: "first"},
	}}
	second := &stubProvider{name: "second", results: []Result{
		{Title: "Second copy", URL: "https://example.com/a", Source: "second"},
		{Title: "Unique", URL: "https://example.com/b", Source: "second"},
	}}
	f := &Fanout{Providers: []Provider{first, second}}
	hits := f.Search(context.Background(), "q")
	if len(hits) != 2 {
		t.Fatalf("expected 2 deduped hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].Title != "First copy" {
		t.Fatalf("expected first-listed engine's copy to win, got %q", hits[0].Title)
	}
}

func TestFanout_CapsAtMaxHits(t *testing.T) {
	var results []Result
	for i := 0; i < 20; i++ {
		results = append(results, Result{
			Title: "r", URL: "https://example.com/" + string(rune('a'+i)), Source: "engine",
		})
	}
	f := &Fanout{Providers: []Provider{&stubProvider{name: "engine", results: results}}, MaxHits: 10}
	hits := f.Search(context.Background(), "q")
	if len(hits) != 10 {
		t.Fatalf("expected cap at 10, got %d", len(hits))
	}
}

func TestFanout_ProviderFailureDoesNotFailAggregate(t *testing.T) {
	failing := &stubProvider{name: "failing", err: errors.New("boom")}
	ok := &stubProvider{name: "ok", results: []Result{{Title: "Good", URL: "https://example.com/x", Source: "ok"}}}
	var loggedErr error
	f := &Fanout{Providers: []Provider{failing, ok}, Logger: func(engine string, err error) { loggedErr = err }}
	hits := f.Search(context.Background(), "q")
	if len(hits) != 1 {
		t.Fatalf("expected 1 surviving hit, got %d", len(hits))
	}
	if loggedErr == nil {
		t.Fatalf("expected provider failure to be logged")
	}
}

func TestFanout_AllEnginesFail_ReturnsEmpty(t *testing.T) {
	f := &Fanout{Providers: []Provider{
		&stubProvider{name: "a", err: errors.New("x")},
		&stubProvider{name: "b", err: errors.New("y")},
	}}
	hits := f.Search(context.Background(), "q")
	if len(hits) != 0 {
		t.Fatalf("expected empty aggregate, got %d", len(hits))
	}
}

func TestFanout_DropsNonAbsoluteHTTPURLs(t *testing.T) {
	f := &Fanout{Providers: []Provider{&stubProvider{name: "a", results: []Result{
		{Title: "bad", URL: "ftp://example.com/file", Source: "a"},
		{Title: "good", URL: "https://example.com/ok", Source: "a"},
	}}}}
	hits := f.Search(context.Background(), "q")
	if len(hits) != 1 || hits[0].URL != "https://example.com/ok" {
		t.Fatalf("expected only the absolute http(s) hit to survive, got %+v", hits)
	}
}

func TestWithRetry_RetriesOnErrorThenSucceeds(t *testing.T) {
	attempts := 0
	var slept []int
	sleep := func(d time.Duration) { slept = append(slept, int(d)) }
	_, err := withRetry(context.Background(), 3, 0, 0, sleep, func() ([]Result, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return []Result{{Title: "ok", URL: "https://example.com"}}, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), 3, 0, 0, func(time.Duration) {}, func() ([]Result, error) {
		attempts++
		return nil, errors.New("permanent")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}
