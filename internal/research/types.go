// Package research holds the value types shared across the pipeline:
// the query/focus-area/analysis model produced by StrategicAnalysisParser,
// the search Hit and post-fetch Source/ScrapedContent types, and the
// Orchestrator's ResearchRun/ResearchResult/ProgressUpdate shapes.
//
// These are plain structs parsed once at the system boundary; nothing
// downstream re-inspects raw maps or probes for optional attributes.
package research

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/deepresearch/internal/rerr"
)

// ErrInvalidQuery is returned by ValidateQuery when the input falls
// outside the 1-1000 trimmed-character bound.
var ErrInvalidQuery = errors.New("query must be 1-1000 characters after trimming")

// ValidateQuery trims q and enforces the length bound, returning the
// normalized query on success.
func ValidateQuery(q string) (string, error) {
	trimmed := strings.TrimSpace(q)
	if len(trimmed) < 1 || len(trimmed) > 1000 {
		return "", rerr.New(rerr.InvalidInput, ErrInvalidQuery)
	}
	return trimmed, nil
}

// FocusArea is a sub-topic of the user's query with a 1-5 priority,
// produced by the StrategicAnalysisParser.
type FocusArea struct {
	Area          string    `json:"area"`
	Priority      int       `json:"priority"`
	SourceQuery   string    `json:"source_query"`
	SearchQueries []string  `json:"search_queries"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaxFocusAreas bounds a single run to at most 5 focus areas.
const MaxFocusAreas = 5

// AnalysisResult is the StrategicAnalysisParser's output: the focus areas
// derived from one LLM analysis call, plus the confidence computed from
// them.
type AnalysisResult struct {
	OriginalQuestion string      `json:"original_question"`
	FocusAreas       []FocusArea `json:"focus_areas"`
	RawResponse      string      `json:"raw_response"`
	Confidence       float64     `json:"confidence"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Hit is a single search-engine result prior to fetch.
type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}

// ValidHitURL reports whether a hit's URL is absolute http(s), the only
// shape the Searcher lets through.
func ValidHitURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil || !u.IsAbs() {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// Source is a post-fetch, content-bearing, scored artifact used for
// synthesis and citation.
//
// Doi/Publisher/Volume/Issue/Pages are optional bibliographic fields.
// Only Doi and Publisher are rendered (by the APA formatter), and they
// drop out of the citation when empty; no style renders Volume, Issue
// or Pages.
type Source struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"`
	SiteName        string    `json:"site_name"`
	Content         string    `json:"content"`
	MarkdownContent string    `json:"markdown_content,omitempty"`
	Snippet         string    `json:"snippet"`
	AccessDate      time.Time `json:"access_date"`
	Reliability     float64   `json:"reliability"`
	ContentHash     string    `json:"content_hash"`

	Doi       string `json:"doi,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Issue     string `json:"issue,omitempty"`
	Pages     string `json:"pages,omitempty"`
}

// SiteNameFromURL derives the default site_name: the URL host with a
// leading "www." stripped.
func SiteNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// ScrapedContent is the Scraper's direct output, before it is promoted to
// a Source by the orchestrator (the reliability field requires the
// ReliabilityScorer, which the Scraper itself does not depend on).
type ScrapedContent struct {
	URL             string    `json:"url"`
	Content         string    `json:"content"`
	MarkdownContent string    `json:"markdown_content,omitempty"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	Description     string    `json:"description,omitempty"`
	PublicationDate string    `json:"publication_date,omitempty"`
	SiteName        string    `json:"site_name"`
	AccessTime      time.Time `json:"access_time"`
	ContentType     string    `json:"content_type"`
	WordCount       int       `json:"word_count"`
	ContentHash     string    `json:"content_hash"`
	StatusCode      int       `json:"status_code"`
	IsValid         bool      `json:"is_valid"`
	Error           string    `json:"error,omitempty"`
}

// MinValidWordCount is the word-count floor below which scraped content
// is marked invalid.
const MinValidWordCount = 50

// RunStatus is the ResearchRun lifecycle state.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether s is one of the sticky terminal states.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// SessionArtifact is a transient per-source record kept only for the
// duration of a run: one scraped page plus the LLM's per-source summary,
// scoped to the focus area that produced it.
type SessionArtifact struct {
	URL       string
	FocusArea string
	Summary   string
	Content   string
}

// ResearchRun is the Orchestrator's exclusively-owned mutable state for
// one request_id. SeenURLs is mutated only by the orchestrator's own
// goroutine; Cancel and Errors/Artifacts use their own locks because
// Cancel and progress delivery may be invoked from other goroutines.
type ResearchRun struct {
	RequestID      string
	Query          string
	ContinuousMode bool
	ForceRefresh   bool
	MaxSources     int
	DepthLevel     int

	SeenURLs map[string]struct{}

	StartedAt time.Time

	mu           sync.Mutex
	status       RunStatus
	endedAt      time.Time
	currentFocus string
	focusAreas   []FocusArea
	errors       []string
	artifacts    []SessionArtifact

	cancel context.CancelFunc
}

// NewResearchRun constructs a run in the pending state with a derived
// cancellation context. Callers must store the returned context and
// consult it (or ctx.Err()) at every suspension point.
func NewResearchRun(parent context.Context, requestID, query string) (*ResearchRun, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &ResearchRun{
		RequestID: requestID,
		Query:     query,
		status:    StatusPending,
		SeenURLs:  make(map[string]struct{}),
		StartedAt: time.Now(),
		cancel:    cancel,
	}, ctx
}

// CurrentStatus returns the run's lifecycle state.
func (r *ResearchRun) CurrentStatus() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetStatus transitions the run, stamping endedAt on the first terminal
// transition. Terminal states are sticky: a later SetStatus is a no-op
// and reports false.
func (r *ResearchRun) SetStatus(s RunStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return false
	}
	r.status = s
	if s.Terminal() {
		r.endedAt = time.Now()
	}
	return true
}

// EndedAt returns when the run reached a terminal state, or false while
// it is still live.
func (r *ResearchRun) EndedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedAt, !r.endedAt.IsZero()
}

// SetCurrentFocus records which focus area the run is working through,
// surfaced by get_status.
func (r *ResearchRun) SetCurrentFocus(area string) {
	r.mu.Lock()
	r.currentFocus = area
	r.mu.Unlock()
}

// CurrentFocus returns the focus area the run is working through, empty
// outside the per-focus loop.
func (r *ResearchRun) CurrentFocus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFocus
}

// SetFocusAreas publishes the run's focus areas. The run goroutine
// works on its own slice and re-publishes after enriching it, so
// readers never observe in-place mutation.
func (r *ResearchRun) SetFocusAreas(areas []FocusArea) {
	snapshot := make([]FocusArea, len(areas))
	copy(snapshot, areas)
	r.mu.Lock()
	r.focusAreas = snapshot
	r.mu.Unlock()
}

// FocusAreas returns a copy of the run's published focus areas.
func (r *ResearchRun) FocusAreas() []FocusArea {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FocusArea, len(r.focusAreas))
	copy(out, r.focusAreas)
	return out
}

// MarkSeen records a URL as processed and reports whether it was new.
func (r *ResearchRun) MarkSeen(u string) bool {
	if _, ok := r.SeenURLs[u]; ok {
		return false
	}
	r.SeenURLs[u] = struct{}{}
	return true
}

// AddError appends a de-duplicated error message to the run's error log.
func (r *ResearchRun) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.errors {
		if existing == msg {
			return
		}
	}
	r.errors = append(r.errors, msg)
}

// Errors returns a snapshot of the run's de-duplicated error messages.
func (r *ResearchRun) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.errors))
	copy(out, r.errors)
	return out
}

// AddArtifact records a session artifact under the run's lock.
func (r *ResearchRun) AddArtifact(a SessionArtifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, a)
}

// Artifacts returns a snapshot of the run's session artifacts.
func (r *ResearchRun) Artifacts() []SessionArtifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionArtifact, len(r.artifacts))
	copy(out, r.artifacts)
	return out
}

// ClearArtifacts drops every session artifact. Called once the run
// reaches a terminal state; anything worth keeping has already been
// promoted to a cache by then.
func (r *ResearchRun) ClearArtifacts() {
	r.mu.Lock()
	r.artifacts = nil
	r.mu.Unlock()
}

// Cancel propagates cancellation to every in-flight fetch and LLM call
// derived from the run's context.
func (r *ResearchRun) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
}

// ResearchResult is what callers receive from get_results.
type ResearchResult struct {
	RequestID      string      `json:"request_id"`
	Summary        string      `json:"summary"`
	Sources        []Source    `json:"sources"`
	Citations      []string    `json:"citations"`
	Bibliography   string      `json:"bibliography"`
	FocusAreas     []FocusArea `json:"focus_areas"`
	Reliability    float64     `json:"reliability"`
	Status         RunStatus   `json:"status"`
	ProcessingTime time.Duration `json:"processing_time"`
	Errors         []string    `json:"errors"`
	CacheHit       bool        `json:"cache_hit"`
}

// MeanReliability computes the mean of every source's reliability, or 0
// for an empty slice.
func MeanReliability(sources []Source) float64 {
	if len(sources) == 0 {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Reliability
	}
	return sum / float64(len(sources))
}

// ProgressUpdate is one event in the best-effort progress stream
// subscribe_progress exposes.
type ProgressUpdate struct {
	RequestID        string    `json:"request_id"`
	FocusArea        string    `json:"focus_area,omitempty"`
	Status           RunStatus `json:"status"`
	ProgressPercent  int       `json:"progress_percent"`
	Message          string    `json:"message"`
	SourcesFound     int       `json:"sources_found"`
	SourcesProcessed int       `json:"sources_processed"`
	Timestamp        time.Time `json:"timestamp"`
}

// StatusSnapshot is the get_status operation's response shape.
type StatusSnapshot struct {
	Status          RunStatus
	ProgressPercent int
	CurrentFocus    string
	Errors          []string
	StartedAt       time.Time
	EndedAt         *time.Time
}
