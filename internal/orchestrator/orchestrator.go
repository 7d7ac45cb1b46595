// Package orchestrator drives one research run end to end: strategic
// analysis, per-focus-area search and scrape, synthesis, and citation,
// exposing the start/status/results/cancel/progress operations the CLI
// and any future transport adapt around a single in-memory registry of
// *research.ResearchRun.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/analysis"
	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/citation"
	"github.com/hyperifyio/deepresearch/internal/llm"
	"github.com/hyperifyio/deepresearch/internal/metrics"
	"github.com/hyperifyio/deepresearch/internal/reliability"
	"github.com/hyperifyio/deepresearch/internal/research"
	"github.com/hyperifyio/deepresearch/internal/scrape"
	"github.com/hyperifyio/deepresearch/internal/search"
	"github.com/hyperifyio/deepresearch/internal/synth"
)

// summarizeBudget bounds how long the per-source summarization call may
// take before falling back to a plain excerpt.
const summarizeBudget = 30 * time.Second

// maxSearchQueryChars truncates a focus area's composed search query
const maxSearchQueryChars = 200

// maxHitsPerFocus bounds how many hits one focus area may consume, so a
// single broad area cannot exhaust the whole source budget.
const maxHitsPerFocus = 5

// searchAttempts retries an empty aggregate search result with
// exponential backoff before giving up on the focus area.
const searchAttempts = 3

// ErrUnknownRun is returned by every per-run operation when requestID
// does not name a run this Orchestrator started.
var ErrUnknownRun = errors.New("unknown request id")

// progressBuffer bounds the best-effort progress channel per run; a
// slow subscriber never blocks the run loop.
const progressBuffer = 32

// Orchestrator coordinates the pipeline's stages. Each dependency is a
// narrow, previously-built component; Orchestrator itself holds no
// pipeline logic beyond sequencing and error isolation.
type Orchestrator struct {
	Analyzer   *analysis.Analyzer
	Searcher   *search.Fanout
	Scraper    *scrape.Scraper
	Synth      *synth.Synthesizer
	Model      string
	MaxSources int

	// LLMClient, when set, summarizes each scraped source for its
	// SessionArtifact.Summary. Nil falls back to
	// a plain excerpt of the source's content.
	LLMClient llm.Client

	// QueryCache, if set, is consulted at the start of a run (unless the
	// run requests ForceRefresh) and populated on successful completion,
	// so a repeated query short-circuits straight to a ResearchResult
	// with CacheHit=true instead of re-running analysis/search/scrape
	QueryCache *cache.Store

	// Metrics, if set, tracks how many runs are in flight.
	Metrics *metrics.Registry

	// NewSearchFanout lets a caller vary search behavior per focus area
	// (e.g. different MaxHits); when nil, Searcher is used unmodified.
	NewSearchFanout func(focusArea string) *search.Fanout

	mu       sync.Mutex
	runs     map[string]*research.ResearchRun
	ctxs     map[string]context.Context
	subs     map[string][]chan research.ProgressUpdate
	sources  map[string][]research.Source
	summary  map[string]string
	cacheHit map[string]bool
	idSeq    int
}

// RunOptions carries the per-call research parameters accepted beyond
// the query itself.
type RunOptions struct {
	// ContinuousMode, when true, processes every focus area the analysis
	// step produced; when false (the default), only the first is
	// processed.
	ContinuousMode bool
	// ForceRefresh skips the query-cache lookup even when a fresh entry
	// exists.
	ForceRefresh bool
	// MaxSources overrides the Orchestrator-wide MaxSources for this run
	// only, when positive.
	MaxSources int
}

func (o *Orchestrator) init() {
	if o.runs == nil {
		o.runs = make(map[string]*research.ResearchRun)
		o.ctxs = make(map[string]context.Context)
		o.subs = make(map[string][]chan research.ProgressUpdate)
		o.sources = make(map[string][]research.Source)
		o.summary = make(map[string]string)
		o.cacheHit = make(map[string]bool)
	}
}

// appendSource records one source under requestID, safe for concurrent
// reads from GetResults while the run is still in progress.
func (o *Orchestrator) appendSource(requestID string, src research.Source) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sources[requestID] = append(o.sources[requestID], src)
}

func (o *Orchestrator) setSummary(requestID, summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary[requestID] = summary
}

func (o *Orchestrator) markCacheHit(requestID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cacheHit[requestID] = true
}

func (o *Orchestrator) snapshotResult(requestID string) ([]research.Source, string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]research.Source, len(o.sources[requestID]))
	copy(out, o.sources[requestID])
	return out, o.summary[requestID], o.cacheHit[requestID]
}

func (o *Orchestrator) nextRequestID() string {
	o.idSeq++
	return fmt.Sprintf("req-%d-%d", time.Now().UnixNano(), o.idSeq)
}

// StartResearch validates the query, registers a new run, and launches
// the pipeline in its own goroutine, returning immediately with the
// run's request ID.
func (o *Orchestrator) StartResearch(parent context.Context, query string) (string, error) {
	return o.StartResearchWithOptions(parent, query, RunOptions{})
}

// StartResearchWithOptions is StartResearch with the full set of
// per-call parameters (continuous mode, force refresh, max sources).
func (o *Orchestrator) StartResearchWithOptions(parent context.Context, query string, opts RunOptions) (string, error) {
	normalized, err := research.ValidateQuery(query)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	o.init()
	requestID := o.nextRequestID()
	run, ctx := research.NewResearchRun(parent, requestID, normalized)
	run.ContinuousMode = opts.ContinuousMode
	run.ForceRefresh = opts.ForceRefresh
	run.MaxSources = opts.MaxSources
	o.runs[requestID] = run
	o.ctxs[requestID] = ctx
	o.mu.Unlock()

	go o.execute(ctx, run)

	return requestID, nil
}

// GetStatus returns a snapshot of the run's lifecycle state.
func (o *Orchestrator) GetStatus(requestID string) (research.StatusSnapshot, error) {
	run, ok := o.run(requestID)
	if !ok {
		return research.StatusSnapshot{}, ErrUnknownRun
	}
	status := run.CurrentStatus()
	snap := research.StatusSnapshot{
		Status:       status,
		CurrentFocus: run.CurrentFocus(),
		Errors:       run.Errors(),
		StartedAt:    run.StartedAt,
	}
	if ended, ok := run.EndedAt(); ok {
		snap.EndedAt = &ended
	}
	sources, _, _ := o.snapshotResult(requestID)
	switch {
	case status.Terminal():
		snap.ProgressPercent = 100
	case status == research.StatusInProgress && len(sources) > 0:
		snap.ProgressPercent = 50
	case status == research.StatusInProgress:
		snap.ProgressPercent = 10
	}
	return snap, nil
}

// GetResults assembles the final ResearchResult from the run's
// accumulated artifacts. It may be called before the run reaches a
// terminal status to inspect partial progress.
func (o *Orchestrator) GetResults(requestID string) (research.ResearchResult, error) {
	run, ok := o.run(requestID)
	if !ok {
		return research.ResearchResult{}, ErrUnknownRun
	}
	return o.buildResult(run), nil
}

// Cancel propagates cancellation to the run's context; in-flight
// fetches and LLM calls observe ctx.Done() at their next suspension
// point and the run settles into StatusCancelled.
func (o *Orchestrator) Cancel(requestID string) error {
	run, ok := o.run(requestID)
	if !ok {
		return ErrUnknownRun
	}
	run.Cancel()
	return nil
}

// SubscribeProgress returns a channel of progress updates for requestID
// and an unsubscribe function. Delivery is best-effort: a full channel
// drops the update rather than blocking the run.
func (o *Orchestrator) SubscribeProgress(requestID string) (<-chan research.ProgressUpdate, func(), error) {
	run, ok := o.run(requestID)
	if !ok {
		return nil, nil, ErrUnknownRun
	}
	ch := make(chan research.ProgressUpdate, progressBuffer)

	o.mu.Lock()
	o.subs[requestID] = append(o.subs[requestID], ch)
	o.mu.Unlock()

	// A run that is already terminal will never publish again, so the
	// channel is detached and closed here instead of waiting on a
	// terminal transition that already happened.
	if run.CurrentStatus().Terminal() {
		o.mu.Lock()
		removed := false
		subs := o.subs[requestID]
		for i, c := range subs {
			if c == ch {
				o.subs[requestID] = append(subs[:i], subs[i+1:]...)
				removed = true
				break
			}
		}
		o.mu.Unlock()
		if removed {
			close(ch)
		}
	}

	// Unsubscribing only detaches the channel and never closes it, so a
	// concurrent publish can never hit a closed channel; the run's
	// terminal transition closes only the channels still attached.
	unsubscribe := func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		subs := o.subs[requestID]
		for i, c := range subs {
			if c == ch {
				o.subs[requestID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return ch, unsubscribe, nil
}

func (o *Orchestrator) run(requestID string) (*research.ResearchRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.init()
	run, ok := o.runs[requestID]
	return run, ok
}

func (o *Orchestrator) publish(update research.ProgressUpdate) {
	o.mu.Lock()
	subs := append([]chan research.ProgressUpdate(nil), o.subs[update.RequestID]...)
	o.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// execute runs the full pipeline for run, never panicking the calling
// goroutine's caller: every stage failure is recorded on the run and
// the pipeline degrades to whatever sources it already has, only
// reaching StatusFailed when not a single focus area produced a valid
// source.
func (o *Orchestrator) execute(ctx context.Context, run *research.ResearchRun) {
	if o.Metrics != nil {
		o.Metrics.ActiveRuns.Inc()
		defer o.Metrics.ActiveRuns.Dec()
	}

	run.SetStatus(research.StatusInProgress)

	if !run.ForceRefresh {
		if cached, ok := o.loadQueryCache(ctx, run.Query); ok {
			run.SetFocusAreas(cached.FocusAreas)
			for _, src := range cached.Sources {
				o.appendSource(run.RequestID, src)
			}
			o.setSummary(run.RequestID, cached.Summary)
			o.markCacheHit(run.RequestID)
			o.finish(run, research.StatusCompleted, research.ProgressUpdate{
				RequestID: run.RequestID, Message: "completed (cache hit)",
				ProgressPercent: 100, SourcesFound: len(cached.Sources), SourcesProcessed: len(cached.Sources),
			})
			return
		}
	}

	o.publish(research.ProgressUpdate{RequestID: run.RequestID, Status: run.CurrentStatus(), Message: "analyzing query", Timestamp: time.Now()})

	analysisResult := o.Analyzer.Analyze(ctx, run.Query)
	focusAreas := analysisResult.FocusAreas
	if !run.ContinuousMode && len(focusAreas) > 1 {
		focusAreas = focusAreas[:1]
	}
	run.SetFocusAreas(focusAreas)

	maxSources := o.MaxSources
	if run.MaxSources > 0 {
		maxSources = run.MaxSources
	}

	var sources []research.Source
	for i := range focusAreas {
		fa := &focusAreas[i]
		if ctx.Err() != nil {
			break
		}
		run.SetCurrentFocus(fa.Area)
		o.publish(research.ProgressUpdate{
			RequestID: run.RequestID, FocusArea: fa.Area, Status: run.CurrentStatus(),
			Message: "searching", Timestamp: time.Now(),
		})

		fanout := o.Searcher
		if o.NewSearchFanout != nil {
			fanout = o.NewSearchFanout(fa.Area)
		}
		if fanout == nil {
			run.AddError(fmt.Sprintf("focus area %q: no search fanout configured", fa.Area))
			continue
		}

		searchQuery := composeSearchQuery(run.Query, i, fa.Area)
		fa.SearchQueries = append(fa.SearchQueries, searchQuery)
		hits := o.searchWithRetry(ctx, fanout, searchQuery)
		if len(hits) > maxHitsPerFocus {
			hits = hits[:maxHitsPerFocus]
		}
		o.publish(research.ProgressUpdate{
			RequestID: run.RequestID, FocusArea: fa.Area, Status: run.CurrentStatus(),
			Message: "scraping", SourcesFound: len(hits), Timestamp: time.Now(),
		})

		for _, hit := range hits {
			if ctx.Err() != nil {
				break
			}
			if !run.MarkSeen(hit.URL) {
				continue
			}
			if maxSources > 0 && len(sources) >= maxSources {
				break
			}
			src, ok := o.scrapeHit(ctx, run, hit)
			if !ok {
				continue
			}
			sources = append(sources, src)
			o.appendSource(run.RequestID, src)
			artifactContent := src.MarkdownContent
			if artifactContent == "" {
				artifactContent = src.Content
			}
			summary := o.summarizeSource(ctx, artifactContent)
			run.AddArtifact(research.SessionArtifact{URL: src.URL, FocusArea: fa.Area, Summary: summary, Content: artifactContent})
			o.publish(research.ProgressUpdate{
				RequestID: run.RequestID, FocusArea: fa.Area, Status: run.CurrentStatus(),
				Message: "scraped source", SourcesProcessed: len(sources), Timestamp: time.Now(),
			})
		}
	}
	run.SetCurrentFocus("")
	// Re-publish with the composed SearchQueries filled in.
	run.SetFocusAreas(focusAreas)

	// Synthesis consumes sources most-reliable-first.
	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Reliability > sources[j].Reliability })

	if ctx.Err() != nil {
		// A partial result still carries a summary built from whatever
		// sources were gathered before the cancel landed.
		if len(sources) > 0 {
			o.setSummary(run.RequestID, synth.Fallback(synth.Input{Query: run.Query, FocusAreas: focusAreas, Sources: sources}))
		}
		o.finish(run, research.StatusCancelled, research.ProgressUpdate{RequestID: run.RequestID, Message: "cancelled"})
		return
	}

	if len(sources) == 0 {
		run.AddError("no focus area produced a usable source")
		o.finish(run, research.StatusFailed, research.ProgressUpdate{RequestID: run.RequestID, Message: "failed: no sources"})
		return
	}

	o.publish(research.ProgressUpdate{RequestID: run.RequestID, Status: run.CurrentStatus(), Message: "synthesizing", Timestamp: time.Now()})
	summary := o.synthesize(ctx, run, sources)
	o.setSummary(run.RequestID, summary)
	o.saveQueryCache(ctx, run.Query, queryCachePayload{FocusAreas: focusAreas, Sources: sources, Summary: summary})

	o.finish(run, research.StatusCompleted, research.ProgressUpdate{RequestID: run.RequestID, Message: "completed", ProgressPercent: 100})
}

// finish transitions the run to its terminal state, publishes the final
// update, drops the session artifacts, and closes every progress
// subscription so subscribe_progress streams terminate with the run.
func (o *Orchestrator) finish(run *research.ResearchRun, status research.RunStatus, update research.ProgressUpdate) {
	run.SetStatus(status)
	update.Status = run.CurrentStatus()
	update.Timestamp = time.Now()
	o.publish(update)
	run.ClearArtifacts()
	o.closeSubs(run.RequestID)
}

func (o *Orchestrator) closeSubs(requestID string) {
	o.mu.Lock()
	subs := o.subs[requestID]
	delete(o.subs, requestID)
	o.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// searchWithRetry re-issues an aggregate search that came back empty,
// with exponential backoff, before the focus area is given up on. A
// context cancellation ends the retries immediately.
func (o *Orchestrator) searchWithRetry(ctx context.Context, fanout *search.Fanout, query string) []research.Hit {
	backoff := time.Second
	for attempt := 0; attempt < searchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if hits := fanout.Search(ctx, query); len(hits) > 0 {
			return hits
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// queryCachePayload is what the query-result cache namespace stores: the
// focus areas the analysis step produced plus every source gathered and
// the synthesized summary, so a cache hit can reconstruct a full
// ResearchResult without re-running analysis/search/scrape/synthesis
type queryCachePayload struct {
	FocusAreas []research.FocusArea `json:"focus_areas"`
	Sources    []research.Source    `json:"sources"`
	Summary    string               `json:"summary"`
}

func (o *Orchestrator) loadQueryCache(ctx context.Context, query string) (queryCachePayload, bool) {
	if o.QueryCache == nil {
		return queryCachePayload{}, false
	}
	key := cache.Key(query, nil)
	raw, ok, err := o.QueryCache.Get(ctx, key)
	if err != nil || !ok {
		return queryCachePayload{}, false
	}
	var payload queryCachePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return queryCachePayload{}, false
	}
	return payload, true
}

func (o *Orchestrator) saveQueryCache(ctx context.Context, query string, payload queryCachePayload) {
	if o.QueryCache == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = o.QueryCache.Set(ctx, cache.Key(query, nil), raw, 0, query, nil)
}

func (o *Orchestrator) scrapeHit(ctx context.Context, run *research.ResearchRun, hit research.Hit) (research.Source, bool) {
	if o.Scraper == nil {
		return research.Source{}, false
	}
	scraped, err := o.Scraper.Fetch(ctx, hit.URL)
	if err != nil {
		run.AddError(fmt.Sprintf("fetch %s: %v", hit.URL, err))
		return research.Source{}, false
	}
	if !scraped.IsValid {
		return research.Source{}, false
	}
	return research.Source{
		URL:             scraped.URL,
		Title:           firstNonEmpty(scraped.Title, hit.Title),
		Author:          scraped.Author,
		PublicationDate: scraped.PublicationDate,
		SiteName:        scraped.SiteName,
		Content:         scraped.Content,
		MarkdownContent: scraped.MarkdownContent,
		Snippet:         hit.Snippet,
		AccessDate:      scraped.AccessTime,
		Reliability:     reliability.Score(scraped.URL),
		ContentHash:     scraped.ContentHash,
	}, true
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// composeSearchQuery builds the search string for the focus area at
// index i: the original query verbatim for the first area, and
// "{query} {focus.area}" truncated to maxSearchQueryChars for every
// subsequent area, so continuous mode doesn't re-search the identical
// query under every focus area.
func composeSearchQuery(query string, i int, area string) string {
	if i == 0 {
		return query
	}
	combined := query + " " + area
	if len(combined) > maxSearchQueryChars {
		combined = combined[:maxSearchQueryChars]
	}
	return combined
}

// summarizeSource produces the short summary stored on a source's
// SessionArtifact: an LLM call bounded by summarizeBudget, falling back
// to a plain excerpt of content when no client is configured, the
// call fails, or it returns nothing usable.
func (o *Orchestrator) summarizeSource(ctx context.Context, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if o.LLMClient == nil || strings.TrimSpace(o.Model) == "" {
		return excerptForSummary(content)
	}

	sctx, cancel := context.WithTimeout(ctx, summarizeBudget)
	defer cancel()
	resp, err := o.LLMClient.CreateChatCompletion(sctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Summarize the following source in 2-3 sentences for a research report. Be factual and concise."},
			{Role: openai.ChatMessageRoleUser, Content: excerptForSummary(content)},
		},
		Temperature: 0.2,
		N:           1,
	})
	if err != nil || len(resp.Choices) == 0 {
		return excerptForSummary(content)
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return excerptForSummary(content)
	}
	return summary
}

// excerptForSummary returns the first 50-500 chars of content, used
// as the per-source summary when no summarization call is made or
// available.
func excerptForSummary(content string) string {
	const minExcerpt, maxExcerpt = 50, 500
	if len(content) <= minExcerpt {
		return content
	}
	if len(content) > maxExcerpt {
		return content[:maxExcerpt]
	}
	return content
}

// synthesize calls the configured Synthesizer, falling back to the
// deterministic report when no Synthesizer is configured or the call
// itself fails; a synthesis failure never aborts the run, since sources
// and citations are still returned.
func (o *Orchestrator) synthesize(ctx context.Context, run *research.ResearchRun, sources []research.Source) string {
	in := synth.Input{Query: run.Query, FocusAreas: run.FocusAreas(), Sources: sources, Model: o.Model}
	if o.Synth == nil {
		return synth.Fallback(in)
	}
	summary, err := o.Synth.Synthesize(ctx, in)
	if err != nil {
		run.AddError(fmt.Sprintf("synthesis: %v", err))
	}
	return summary
}

func (o *Orchestrator) buildResult(run *research.ResearchRun) research.ResearchResult {
	sources, summary, cacheHit := o.snapshotResult(run.RequestID)

	style := citation.APA
	citations := make([]string, 0, len(sources))
	for _, s := range sources {
		citations = append(citations, citation.Format(style, s))
	}

	var processingTime time.Duration
	if ended, ok := run.EndedAt(); ok {
		processingTime = ended.Sub(run.StartedAt)
	}

	return research.ResearchResult{
		RequestID:      run.RequestID,
		Summary:        summary,
		Sources:        sources,
		Citations:      citations,
		Bibliography:   citation.Bibliography(style, citations),
		FocusAreas:     run.FocusAreas(),
		Reliability:    research.MeanReliability(sources),
		Status:         run.CurrentStatus(),
		ProcessingTime: processingTime,
		Errors:         run.Errors(),
		CacheHit:       cacheHit,
	}
}
