package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStartResearch_ConcurrentRunsAreIndependent launches several runs
// against the same Orchestrator at once and asserts each keeps its own
// request ID, status, and result set rather than clobbering a sibling
// run's state (run state is keyed by request_id under its own mutex).
func TestStartResearch_ConcurrentRunsAreIndependent(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)

	const runs = 8
	ids := make([]string, runs)
	var wg sync.WaitGroup
	wg.Add(runs)
	for i := 0; i < runs; i++ {
		go func(i int) {
			defer wg.Done()
			id, err := o.StartResearch(context.Background(), "concurrent photosynthesis question")
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, runs)
	for _, id := range ids {
		require.NotEmpty(t, id)
		_, dup := seen[id]
		assert.False(t, dup, "request ids must be unique per run")
		seen[id] = struct{}{}
	}

	for _, id := range ids {
		waitForTerminal(t, o, id)
		result, err := o.GetResults(id)
		require.NoError(t, err)
		assert.Equal(t, id, result.RequestID)
		assert.NotEmpty(t, result.Sources)
	}
}

// TestSubscribeProgress_ConcurrentSubscribersAllReceive checks that two
// independent subscribers on the same run each get their own delivery
// rather than racing for a single shared channel.
func TestSubscribeProgress_ConcurrentSubscribersAllReceive(t *testing.T) {
	srv := newArticleServer()
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	requestID, err := o.StartResearch(context.Background(), "subscribe concurrently")
	require.NoError(t, err)

	updatesA, unsubA, err := o.SubscribeProgress(requestID)
	require.NoError(t, err)
	defer unsubA()
	updatesB, unsubB, err := o.SubscribeProgress(requestID)
	require.NoError(t, err)
	defer unsubB()

	var wg sync.WaitGroup
	wg.Add(2)
	gotA, gotB := false, false
	go func() {
		defer wg.Done()
		_, gotA = <-updatesA
	}()
	go func() {
		defer wg.Done()
		_, gotB = <-updatesB
	}()
	wg.Wait()

	assert.True(t, gotA)
	assert.True(t, gotB)
}
