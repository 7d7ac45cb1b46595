package synth

import (
	"context"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/research"
)

type capturingClient struct {
	lastReq openai.ChatCompletionRequest
	content string
}

func (c *capturingClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.lastReq = req
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.content},
		}},
	}, nil
}

func sampleInput() Input {
	return Input{
		Query: "How does photosynthesis work?",
		FocusAreas: []research.FocusArea{
			{Area: "Light-dependent reactions", Priority: 5},
			{Area: "Calvin cycle", Priority: 3},
		},
		Sources: []research.Source{
			{URL: "https://a.example/1", Title: "Source A", Content: "Chlorophyll absorbs light.", Reliability: 0.8},
			{URL: "https://b.example/2", Title: "Source B", Content: "The Calvin cycle fixes carbon.", Reliability: 0.6},
		},
		Model: "test-model",
	}
}

func TestSynthesize_ReturnsModelOutputAndCitesSources(t *testing.T) {
	cc := &capturingClient{content: "# Photosynthesis\n\nLight reactions happen first, converting sunlight " +
		"into chemical energy stored in ATP and NADPH, which the Calvin cycle then uses to fix carbon [1]."}
	s := &Synthesizer{Client: cc, Sleep: func(time.Duration) {}}
	out, err := s.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "[1]") {
		t.Fatalf("expected citation marker in output, got %q", out)
	}
	if len(cc.lastReq.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(cc.lastReq.Messages))
	}
	user := cc.lastReq.Messages[1].Content
	if !strings.Contains(user, "Light-dependent reactions") {
		t.Fatalf("expected focus areas in prompt, got %q", user)
	}
	if !strings.Contains(user, "Source A") {
		t.Fatalf("expected sources in prompt, got %q", user)
	}
}

func TestSynthesize_NoModelFallsBackDeterministically(t *testing.T) {
	in := sampleInput()
	in.Model = ""
	s := &Synthesizer{}
	out, err := s.Synthesize(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Source A") || !strings.Contains(out, "Source B") {
		t.Fatalf("expected fallback to list both sources, got %q", out)
	}
}

func TestSynthesize_EmptyOutputFallsBack(t *testing.T) {
	cc := &capturingClient{content: ""}
	var slept []time.Duration
	s := &Synthesizer{Client: cc, Sleep: func(d time.Duration) { slept = append(slept, d) }}
	out, err := s.Synthesize(context.Background(), sampleInput())
	if err == nil {
		t.Fatalf("expected an error for empty model output")
	}
	if !strings.Contains(out, "Source A") {
		t.Fatalf("expected fallback output, got %q", out)
	}
	if len(slept) != maxSynthesisAttempts-1 {
		t.Fatalf("expected %d backoff sleeps between attempts, got %d", maxSynthesisAttempts-1, len(slept))
	}
}

func TestSynthesize_ShortOutputRetriesThenAccepts(t *testing.T) {
	cc := &shortThenLongClient{
		short: "too short [1].",
		long:  strings.Repeat("A well-supported finding from the sources. ", 4) + "[1]",
	}
	s := &Synthesizer{Client: cc, Sleep: func(time.Duration) {}}
	out, err := s.Synthesize(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", cc.calls)
	}
	if !strings.Contains(out, "well-supported finding") {
		t.Fatalf("expected second attempt's output, got %q", out)
	}
}

type shortThenLongClient struct {
	short, long string
	calls       int
}

func (c *shortThenLongClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.calls++
	content := c.long
	if c.calls == 1 {
		content = c.short
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}, nil
}

func TestFallback_NoSourcesExplainsGap(t *testing.T) {
	out := Fallback(Input{Query: "obscure topic"})
	if !strings.Contains(out, "obscure topic") {
		t.Fatalf("expected query echoed in fallback heading, got %q", out)
	}
	if !strings.Contains(out, "No sources") {
		t.Fatalf("expected a no-sources explanation, got %q", out)
	}
}

func TestFallback_OrdersSourcesByReliability(t *testing.T) {
	in := Input{
		Query: "q",
		Sources: []research.Source{
			{URL: "https://low.example", Title: "Low", Reliability: 0.2},
			{URL: "https://high.example", Title: "High", Reliability: 0.9},
		},
	}
	out := Fallback(in)
	if strings.Index(out, "High") > strings.Index(out, "Low") {
		t.Fatalf("expected higher-reliability source listed first, got %q", out)
	}
}

func TestSynthesize_ZeroSourcesSkipsModelCall(t *testing.T) {
	cc := &capturingClient{content: "# unused"}
	s := &Synthesizer{Client: cc}
	in := Input{Query: "q", Model: "test-model"}
	_, err := s.Synthesize(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cc.lastReq.Model != "" {
		t.Fatalf("expected no model call when there are no sources")
	}
}
