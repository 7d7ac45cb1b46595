package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/deepresearch/internal/cache"
)

// TestStartResearch_NonContinuousProcessesOnlyFirstFocusArea checks the
// continuous-mode default: without opting in, a run with
// multiple focus areas only searches/scrapes under the first one
func TestStartResearch_NonContinuousProcessesOnlyFirstFocusArea(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	requestID, err := o.StartResearch(context.Background(), "how does photosynthesis work")
	require.NoError(t, err)
	waitForTerminal(t, o, requestID)

	result, err := o.GetResults(requestID)
	require.NoError(t, err)
	assert.Len(t, result.FocusAreas, 1, "default run should keep only the first focus area")
}

// TestStartResearch_ContinuousProcessesEveryFocusArea checks that
// RunOptions.ContinuousMode restores iterating over every focus area the
// analysis step produced.
func TestStartResearch_ContinuousProcessesEveryFocusArea(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	requestID, err := o.StartResearchWithOptions(context.Background(), "how does photosynthesis work", RunOptions{ContinuousMode: true})
	require.NoError(t, err)
	waitForTerminal(t, o, requestID)

	result, err := o.GetResults(requestID)
	require.NoError(t, err)
	assert.Len(t, result.FocusAreas, 2, "continuous run should keep every focus area the analysis produced")
}

// TestStartResearch_QueryCacheHit checks that a second run of the
// same query, without ForceRefresh,
// short-circuits to a cached result with CacheHit=true instead of
// re-running search/scrape/synthesis.
func TestStartResearch_QueryCacheHit(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	o.QueryCache = &cache.Store{Dir: t.TempDir()}

	first, err := o.StartResearch(context.Background(), "cache this research question")
	require.NoError(t, err)
	waitForTerminal(t, o, first)
	firstResult, err := o.GetResults(first)
	require.NoError(t, err)
	require.False(t, firstResult.CacheHit)
	require.NotEmpty(t, firstResult.Sources)

	second, err := o.StartResearch(context.Background(), "cache this research question")
	require.NoError(t, err)
	waitForTerminal(t, o, second)
	secondResult, err := o.GetResults(second)
	require.NoError(t, err)

	assert.True(t, secondResult.CacheHit)
	assert.Equal(t, firstResult.Summary, secondResult.Summary)
	assert.Equal(t, len(firstResult.Sources), len(secondResult.Sources))
}

// TestStartResearch_ForceRefreshBypassesQueryCache checks that
// ForceRefresh skips a fresh cache entry.
func TestStartResearch_ForceRefreshBypassesQueryCache(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	o.QueryCache = &cache.Store{Dir: t.TempDir()}

	first, err := o.StartResearch(context.Background(), "force refresh research question")
	require.NoError(t, err)
	waitForTerminal(t, o, first)

	second, err := o.StartResearchWithOptions(context.Background(), "force refresh research question", RunOptions{ForceRefresh: true})
	require.NoError(t, err)
	waitForTerminal(t, o, second)
	secondResult, err := o.GetResults(second)
	require.NoError(t, err)

	assert.False(t, secondResult.CacheHit)
}
