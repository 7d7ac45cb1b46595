// Package synth produces the single cohesive, cited Markdown summary
// from a research run's focus areas and scraped sources.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/budget"
	"github.com/hyperifyio/deepresearch/internal/cache"
	"github.com/hyperifyio/deepresearch/internal/research"
)

// reservedOutputTokens is subtracted from the model's context window
// before computing how much excerpt text each source gets, leaving
// room for the report itself.
const reservedOutputTokens = 1500

// maxSynthesisAttempts and minSynthesisChars gate the synthesis call:
// up to 2 attempts, each requiring at least 100 chars of output,
// before the deterministic fallback takes over.
const (
	maxSynthesisAttempts = 2
	minSynthesisChars    = 100
	synthesisRetryDelay  = 2 * time.Second
)

// baseCallTimeout is the floor for one synthesis call; larger prompts
// get proportionally more time (one second per 20 estimated tokens).
const baseCallTimeout = 30 * time.Second

// callTimeout scales the per-call deadline with prompt size.
func callTimeout(promptTokens int) time.Duration {
	scaled := time.Duration(promptTokens/20) * time.Second
	if scaled < baseCallTimeout {
		return baseCallTimeout
	}
	return scaled
}

// ChatClient abstracts the OpenAI client dependency for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Input bundles everything the synthesis call needs: the original
// query, the focus areas that organized the research, and the sources
// gathered under them, each numbered for bracketed citation.
type Input struct {
	Query      string
	FocusAreas []research.FocusArea
	Sources    []research.Source
	Model      string
}

// Synthesizer calls the LLM to produce a Markdown report citing sources
// by bracketed numeric index, falling back to a deterministic
// concatenation of per-source excerpts when no model is configured or
// the call fails.
type Synthesizer struct {
	Client ChatClient
	Cache  *cache.LLMCache
	// Sleep is overridable in tests to avoid real backoff delays between
	// synthesis attempts.
	Sleep func(time.Duration)
}

func (s *Synthesizer) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Synthesize returns the report body; internal/citation builds the
// bibliography separately from the same numbered sources. It tries up
// to maxSynthesisAttempts times, rejecting any output shorter than
// minSynthesisChars, and falls back to Fallback when every attempt
// fails.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (string, error) {
	if strings.TrimSpace(in.Model) == "" || s.Client == nil || len(in.Sources) == 0 {
		return Fallback(in), nil
	}

	system := systemPrompt()
	user := userPrompt(in)
	cacheKey := cache.KeyFrom(in.Model, system+"\n\n"+user)

	if s.Cache != nil {
		if raw, ok, _ := s.Cache.Get(ctx, cacheKey); ok {
			if md, ok := decodeMarkdown(raw); ok {
				return md, nil
			}
		}
	}

	req := openai.ChatCompletionRequest{
		Model: in.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
		N:           1,
	}

	timeout := callTimeout(budget.EstimateTokens(system + user))

	var lastErr error
	for attempt := 0; attempt < maxSynthesisAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		out, err := s.attempt(actx, req)
		cancel()
		if err != nil {
			lastErr = err
			if attempt < maxSynthesisAttempts-1 {
				s.sleep(synthesisRetryDelay)
			}
			continue
		}

		if s.Cache != nil {
			payload, _ := json.Marshal(map[string]string{"markdown": out})
			_ = s.Cache.Save(ctx, cacheKey, payload)
		}
		return out, nil
	}
	return Fallback(in), lastErr
}

// attempt issues one completion call and validates its output against
// the minimum length.
func (s *Synthesizer) attempt(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := s.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("synthesis call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices from model")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if len(out) < minSynthesisChars {
		return "", fmt.Errorf("synthesis output too short (%d chars, want >= %d)", len(out), minSynthesisChars)
	}
	return out, nil
}

func decodeMarkdown(raw []byte) (string, bool) {
	var out struct {
		Markdown string `json:"markdown"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false
	}
	md := strings.TrimSpace(out.Markdown)
	return md, md != ""
}

func systemPrompt() string {
	return "You are a careful research analyst. Use ONLY the provided numbered sources for facts. " +
		"Cite every claim with a bracketed numeric index like [1] that maps to the numbered source list. " +
		"Organize the report around the given focus areas. Do not invent sources, quotes, or facts not present " +
		"in the excerpts. Keep the style concise, factual, and well structured with Markdown headings."
}

func userPrompt(in Input) string {
	var sb strings.Builder
	sb.WriteString("Research question: ")
	sb.WriteString(in.Query)
	sb.WriteString("\n\nFocus areas:\n")
	for _, fa := range in.FocusAreas {
		fmt.Fprintf(&sb, "- %s (priority %d)\n", fa.Area, fa.Priority)
	}
	sb.WriteString("\nNumbered sources:\n")
	perSourceChars := perSourceExcerptChars(in)
	for i, src := range in.Sources {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, src.Title, src.URL, excerpt(sourceExcerptText(src), perSourceChars))
	}
	sb.WriteString("Write a single cohesive Markdown report synthesizing these sources, organized by focus area, ")
	sb.WriteString("with every factual claim backed by a bracketed citation index.")
	return sb.String()
}

// perSourceExcerptChars divides the model's remaining context budget
// evenly across sources so the prompt stays within the model's window
// regardless of how many sources a run gathered, falling back to a
// fixed 1500-char excerpt when Sources is empty.
func perSourceExcerptChars(in Input) int {
	if len(in.Sources) == 0 {
		return 1500
	}
	fixed := budget.EstimatePromptTokens(systemPrompt(), "Research question: "+in.Query, nil)
	remaining := budget.RemainingContextWithHeadroom(in.Model, reservedOutputTokens, fixed)
	perSourceTokens := remaining / len(in.Sources)
	if perSourceTokens < 64 {
		perSourceTokens = 64
	}
	return perSourceTokens * 4
}

// sourceExcerptText prefers a source's Markdown rendering over its
// plain-text walk, since headings and links give the model more
// structure to cite precisely from.
func sourceExcerptText(src research.Source) string {
	if strings.TrimSpace(src.MarkdownContent) != "" {
		return src.MarkdownContent
	}
	return src.Content
}

func excerpt(content string, max int) string {
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}

// Fallback builds a deterministic, non-LLM report: one section per
// focus area listing its sources by descending reliability, with a
// short excerpt and citation index. Used when no model is configured,
// no sources were gathered, or every LLM attempt fails.
func Fallback(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research summary: %s\n\n", in.Query)

	if len(in.Sources) == 0 {
		sb.WriteString("No sources were successfully gathered for this query.\n")
		return sb.String()
	}

	byIndex := make(map[string]int, len(in.Sources))
	for i, src := range in.Sources {
		byIndex[src.URL] = i + 1
	}

	ranked := make([]research.Source, len(in.Sources))
	copy(ranked, in.Sources)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Reliability > ranked[j].Reliability
	})

	if len(in.FocusAreas) == 0 {
		sb.WriteString("## Sources\n\n")
		for _, src := range ranked {
			writeSourceBullet(&sb, src, byIndex[src.URL])
		}
		return sb.String()
	}

	for _, fa := range in.FocusAreas {
		fmt.Fprintf(&sb, "## %s\n\n", fa.Area)
		for _, src := range ranked {
			writeSourceBullet(&sb, src, byIndex[src.URL])
		}
	}
	return sb.String()
}

func writeSourceBullet(sb *strings.Builder, src research.Source, index int) {
	fmt.Fprintf(sb, "- %s [%d]: %s\n", src.Title, index, excerpt(src.Content, 280))
}
