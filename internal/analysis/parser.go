// Package analysis turns an LLM's free-form "identify focus areas"
// response into a validated research.AnalysisResult, plus the
// deterministic fallback the Orchestrator uses when parsing repeatedly
// fails.
//
// An LLM-backed parser plus a deterministic fallback producer sit
// behind one call shape, so the orchestrator never has to care which
// one produced its focus areas.
package analysis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hyperifyio/deepresearch/internal/llm"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/research"
)

// minAreaLen and maxAreaLen bound a single focus area's text.
const (
	minAreaLen = 10
	maxAreaLen = 500
)

var (
	questionHeaderRe = regexp.MustCompile(`(?is)original question analysis:\s*(.*?)(?:\n\s*\n|\z)`)
	gapsHeaderRe     = regexp.MustCompile(`(?is)research gaps:\s*(.*)$`)
	gapItemRe        = regexp.MustCompile(`(?m)^\s*\d+\.\s*(.+?)(?:\s*\[\s*Priority:\s*(\d+)\s*\])?\s*$`)
)

// Parse extracts a research.AnalysisResult from free-form LLM text. It
// returns ok=false (never an error) when no valid focus area survives
// extraction, signalling the caller to use a fallback.
func Parse(originalQuestion, rawResponse string, now time.Time) (research.AnalysisResult, bool) {
	normalized := normalizeWhitespace(rawResponse)

	var question string
	if m := questionHeaderRe.FindStringSubmatch(normalized); len(m) > 1 {
		question = strings.TrimSpace(m[1])
	}

	var gapsBlock string
	if m := gapsHeaderRe.FindStringSubmatch(normalized); len(m) > 1 {
		gapsBlock = m[1]
	}

	var areas []research.FocusArea
	for _, m := range gapItemRe.FindAllStringSubmatch(gapsBlock, -1) {
		area := strings.TrimSpace(m[1])
		if len(area) < minAreaLen || len(area) > maxAreaLen {
			continue
		}
		priority := 3
		if m[2] != "" {
			if p, err := strconv.Atoi(m[2]); err == nil {
				priority = clampPriority(p)
			}
		}
		areas = append(areas, research.FocusArea{
			Area:        area,
			Priority:    priority,
			SourceQuery: originalQuestion,
			CreatedAt:   now,
		})
		if len(areas) >= research.MaxFocusAreas {
			break
		}
	}

	if len(areas) == 0 {
		return research.AnalysisResult{}, false
	}

	// The model's restated question is usually fuller than a terse
	// user query; score confidence against whichever is present.
	scored := originalQuestion
	if question != "" {
		scored = question
	}
	result := research.AnalysisResult{
		OriginalQuestion: originalQuestion,
		FocusAreas:       areas,
		RawResponse:      rawResponse,
		Confidence:       confidence(scored, areas),
		CreatedAt:        now,
	}
	return result, true
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}

// confidence weights the analysis:
//
//	0.3*(question >= 3 words) + 0.2*(|areas|/5) + 0.2*(distinct
//	priorities/5) + 0.3*(fraction of areas with >=3 words and valid
//	priority), rounded to 2 decimals.
func confidence(question string, areas []research.FocusArea) float64 {
	var score float64
	if wordCount(question) >= 3 {
		score += 0.3
	}
	score += 0.2 * (float64(len(areas)) / float64(research.MaxFocusAreas))

	distinct := map[int]struct{}{}
	for _, a := range areas {
		distinct[a.Priority] = struct{}{}
	}
	score += 0.2 * (float64(len(distinct)) / float64(research.MaxFocusAreas))

	var qualifying int
	for _, a := range areas {
		if wordCount(a.Area) >= 3 && a.Priority >= 1 && a.Priority <= 5 {
			qualifying++
		}
	}
	if len(areas) > 0 {
		score += 0.3 * (float64(qualifying) / float64(len(areas)))
	}

	return math.Round(score*100) / 100
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

// Fallback synthesizes the deterministic 2-item analysis the
// Orchestrator uses when the LLM repeatedly fails to produce a parsable
// analysis: "Understanding {query}" at priority 1
// and "Current developments in {first three keywords}" at priority 2,
// with confidence fixed at 0.3.
func Fallback(query string, now time.Time) research.AnalysisResult {
	keywords := firstNWords(query, 3)
	areas := []research.FocusArea{
		{
			Area:        fmt.Sprintf("Understanding %s", query),
			Priority:    1,
			SourceQuery: query,
			CreatedAt:   now,
		},
		{
			Area:        fmt.Sprintf("Current developments in %s", keywords),
			Priority:    2,
			SourceQuery: query,
			CreatedAt:   now,
		},
	}
	return research.AnalysisResult{
		OriginalQuestion: query,
		FocusAreas:       areas,
		Confidence:       0.3,
		CreatedAt:        now,
	}
}

func firstNWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// Prompt builds the "identify focus areas" user prompt sent to the LLM.
// formatted selects the stricter retry template used after a first
// parse failure.
func Prompt(query string, formatted bool) string {
	if !formatted {
		return fmt.Sprintf(
			"Analyze this research question and identify focus areas.\n\nOriginal Question Analysis:\n<restate and briefly analyze the question>\n\nResearch Gaps:\n1. <focus area text, at least 10 characters> [Priority: <1-5>]\n2. <focus area text> [Priority: <1-5>]\n...(up to 5)\n\nQuestion: %s",
			query,
		)
	}
	return fmt.Sprintf(
		"Your previous response could not be parsed. Respond using EXACTLY this layout, nothing else:\n\nOriginal Question Analysis:\n<one paragraph>\n\nResearch Gaps:\n1. <text> [Priority: 1]\n2. <text> [Priority: 2]\n3. <text> [Priority: 3]\n\nQuestion: %s",
		query,
	)
}

// Analyzer calls an LLM client with bounded retry and falls back to the
// deterministic Fallback result when every attempt fails to parse
type Analyzer struct {
	Client llm.Client
	Model  string
	// Sleep is overridable in tests to avoid real backoff delays.
	Sleep func(time.Duration)
	// Now is overridable in tests for deterministic timestamps.
	Now func() time.Time
}

// maxAnalysisAttempts is kept separate from the summarization and
// search retry counts: an analysis retry re-spends a full completion
// call, so the budgets are tuned independently.
const maxAnalysisAttempts = 3

func (a *Analyzer) sleep(d time.Duration) {
	if a.Sleep != nil {
		a.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Analyze runs the full identify-focus-areas flow: up to
// maxAnalysisAttempts LLM calls (exponential backoff 2^n seconds
// between attempts), retrying once with the stricter formatted prompt
// after the first parse failure, falling back to a deterministic
// analysis when every attempt is unparsable.
func (a *Analyzer) Analyze(ctx context.Context, query string) research.AnalysisResult {
	var lastRaw string
	for attempt := 0; attempt < maxAnalysisAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		formatted := attempt > 0
		raw, err := a.complete(ctx, Prompt(query, formatted))
		if err != nil {
			if attempt < maxAnalysisAttempts-1 {
				a.sleep(time.Duration(1<<uint(attempt)) * time.Second)
			}
			continue
		}
		lastRaw = raw
		if result, ok := Parse(query, raw, a.now()); ok {
			return result
		}
		if attempt < maxAnalysisAttempts-1 {
			a.sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	fb := Fallback(query, a.now())
	fb.RawResponse = lastRaw
	return fb
}

func (a *Analyzer) complete(ctx context.Context, prompt string) (string, error) {
	if a.Client == nil || strings.TrimSpace(a.Model) == "" {
		return "", fmt.Errorf("analyzer not configured")
	}
	resp, err := a.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You identify 3-5 research focus areas for a question, each with a 1-5 priority. Follow the requested layout exactly."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices from model")
	}
	return resp.Choices[0].Message.Content, nil
}
