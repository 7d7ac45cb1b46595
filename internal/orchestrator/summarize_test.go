package orchestrator

import (
	"context"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestComposeSearchQuery_FirstAreaUsesOriginalQuery(t *testing.T) {
	got := composeSearchQuery("how does photosynthesis work", 0, "Light-dependent reactions")
	if got != "how does photosynthesis work" {
		t.Fatalf("expected first focus area to search the original query verbatim, got %q", got)
	}
}

func TestComposeSearchQuery_LaterAreaCombinesQueryAndArea(t *testing.T) {
	got := composeSearchQuery("how does photosynthesis work", 1, "Calvin cycle")
	want := "how does photosynthesis work Calvin cycle"
	if got != want {
		t.Fatalf("expected combined query %q, got %q", want, got)
	}
}

func TestComposeSearchQuery_TruncatesTo200Chars(t *testing.T) {
	longArea := strings.Repeat("x", 300)
	got := composeSearchQuery("q", 1, longArea)
	if len(got) != maxSearchQueryChars {
		t.Fatalf("expected truncation to %d chars, got %d", maxSearchQueryChars, len(got))
	}
}

type stubSummaryClient struct {
	content string
	err     error
	calls   int
}

func (c *stubSummaryClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.calls++
	if c.err != nil {
		return openai.ChatCompletionResponse{}, c.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: c.content},
		}},
	}, nil
}

func TestSummarizeSource_NoClientFallsBackToExcerpt(t *testing.T) {
	o := &Orchestrator{}
	content := strings.Repeat("word ", 200)
	got := o.summarizeSource(context.Background(), content)
	if got != excerptForSummary(content) {
		t.Fatalf("expected fallback excerpt when no LLMClient is configured")
	}
}

func TestSummarizeSource_UsesModelOutputWhenConfigured(t *testing.T) {
	client := &stubSummaryClient{content: "A concise two sentence summary of the source."}
	o := &Orchestrator{LLMClient: client, Model: "test-model"}
	got := o.summarizeSource(context.Background(), strings.Repeat("word ", 200))
	if got != client.content {
		t.Fatalf("expected model summary %q, got %q", client.content, got)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one summarize call, got %d", client.calls)
	}
}

func TestSummarizeSource_FallsBackOnClientError(t *testing.T) {
	client := &stubSummaryClient{err: context.DeadlineExceeded}
	o := &Orchestrator{LLMClient: client, Model: "test-model"}
	content := strings.Repeat("word ", 200)
	got := o.summarizeSource(context.Background(), content)
	if got != excerptForSummary(content) {
		t.Fatalf("expected fallback excerpt when the summarize call fails")
	}
}

func TestExcerptForSummary_CapsAt500Chars(t *testing.T) {
	content := strings.Repeat("a", 1000)
	got := excerptForSummary(content)
	if len(got) != 500 {
		t.Fatalf("expected 500-char excerpt, got %d", len(got))
	}
}

func TestExcerptForSummary_ReturnsShortContentUnmodified(t *testing.T) {
	content := "short"
	if got := excerptForSummary(content); got != content {
		t.Fatalf("expected short content returned as-is, got %q", got)
	}
}
