package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepresearch/internal/research"
)

var fixedNow = time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

func TestParse_WellFormedResponse(t *testing.T) {
	raw := "Original Question Analysis:\n" +
		"The user wants to understand the history of the silk road.\n\n" +
		"Research Gaps:\n" +
		"1. Trade routes connecting Europe and Asia historically [Priority: 5]\n" +
		"2. Economic impact of the silk road on regional empires [Priority: 3]\n" +
		"3. Decline of overland trade after maritime routes emerged [Priority: 2]\n"

	result, ok := Parse("what was the silk road", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if len(result.FocusAreas) != 3 {
		t.Fatalf("expected 3 focus areas, got %d", len(result.FocusAreas))
	}
	if result.FocusAreas[0].Priority != 5 {
		t.Fatalf("expected priority 5, got %d", result.FocusAreas[0].Priority)
	}
	if result.Confidence <= 0 {
		t.Fatalf("expected positive confidence, got %v", result.Confidence)
	}
}

func TestParse_DefaultsPriorityWhenMissing(t *testing.T) {
	raw := "Research Gaps:\n1. A sufficiently long focus area text here\n"
	result, ok := Parse("some question here", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if result.FocusAreas[0].Priority != 3 {
		t.Fatalf("expected default priority 3, got %d", result.FocusAreas[0].Priority)
	}
}

func TestParse_ClampsOutOfRangePriority(t *testing.T) {
	raw := "Research Gaps:\n1. A sufficiently long focus area text here [Priority: 9]\n"
	result, ok := Parse("q", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if result.FocusAreas[0].Priority != 5 {
		t.Fatalf("expected clamped priority 5, got %d", result.FocusAreas[0].Priority)
	}
}

func TestParse_DropsAreasOutsideLengthBounds(t *testing.T) {
	raw := "Research Gaps:\n" +
		"1. short\n" +
		"2. A sufficiently long focus area text that fits within bounds\n"
	result, ok := Parse("q", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if len(result.FocusAreas) != 1 {
		t.Fatalf("expected 1 surviving area, got %d", len(result.FocusAreas))
	}
}

func TestParse_CapsAtMaxFocusAreas(t *testing.T) {
	raw := "Research Gaps:\n" +
		"1. First sufficiently long focus area text here\n" +
		"2. Second sufficiently long focus area text here\n" +
		"3. Third sufficiently long focus area text here\n" +
		"4. Fourth sufficiently long focus area text here\n" +
		"5. Fifth sufficiently long focus area text here\n" +
		"6. Sixth sufficiently long focus area text here\n"
	result, ok := Parse("q", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if len(result.FocusAreas) != research.MaxFocusAreas {
		t.Fatalf("expected cap at %d, got %d", research.MaxFocusAreas, len(result.FocusAreas))
	}
}

func TestParse_NoValidItemsReturnsFalse(t *testing.T) {
	_, ok := Parse("q", "nothing resembling the expected layout", fixedNow)
	if ok {
		t.Fatalf("expected parse failure for unparsable input")
	}
}

func TestParse_NoValidItemsAfterLengthFilterReturnsFalse(t *testing.T) {
	raw := "Research Gaps:\n1. short\n2. tiny\n"
	_, ok := Parse("q", raw, fixedNow)
	if ok {
		t.Fatalf("expected parse failure when every item is filtered out")
	}
}

func TestConfidence_HighQualityResponseScoresHigh(t *testing.T) {
	raw := "Original Question Analysis:\nA clear restatement of the question.\n\n" +
		"Research Gaps:\n" +
		"1. Trade routes connecting Europe and Asia historically [Priority: 5]\n" +
		"2. Economic impact of the silk road on regional empires [Priority: 4]\n" +
		"3. Decline of overland trade after maritime routes emerged [Priority: 3]\n" +
		"4. Cultural exchange along the trade corridor over centuries [Priority: 2]\n" +
		"5. Archaeological evidence of settlements along the route [Priority: 1]\n"
	result, ok := Parse("what caused the decline of the silk road", raw, fixedNow)
	if !ok {
		t.Fatalf("expected parse success")
	}
	if result.Confidence < 0.9 {
		t.Fatalf("expected high confidence, got %v", result.Confidence)
	}
}

func TestFallback_ProducesTwoAreasWithFixedConfidence(t *testing.T) {
	result := Fallback("quantum computing breakthroughs", fixedNow)
	if len(result.FocusAreas) != 2 {
		t.Fatalf("expected 2 fallback areas, got %d", len(result.FocusAreas))
	}
	if result.Confidence != 0.3 {
		t.Fatalf("expected fixed confidence 0.3, got %v", result.Confidence)
	}
	if result.FocusAreas[0].Priority != 1 || result.FocusAreas[1].Priority != 2 {
		t.Fatalf("unexpected priorities: %+v", result.FocusAreas)
	}
}

type stubClient struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	content := ""
	if i < len(s.responses) {
		content = s.responses[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
	}, nil
}

func TestAnalyzer_Analyze_SucceedsFirstAttempt(t *testing.T) {
	client := &stubClient{responses: []string{
		"Research Gaps:\n1. A sufficiently long focus area text here [Priority: 4]\n",
	}}
	a := &Analyzer{
		Client: client,
		Model:  "test-model",
		Sleep:  func(time.Duration) {},
		Now:    func() time.Time { return fixedNow },
	}
	result := a.Analyze(context.Background(), "test question here")
	if len(result.FocusAreas) != 1 {
		t.Fatalf("expected 1 focus area, got %d", len(result.FocusAreas))
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 call, got %d", client.calls)
	}
}

func TestAnalyzer_Analyze_RetriesThenFallsBack(t *testing.T) {
	client := &stubClient{responses: []string{
		"unparsable garbage",
		"still unparsable",
		"and again unparsable",
	}}
	a := &Analyzer{
		Client: client,
		Model:  "test-model",
		Sleep:  func(time.Duration) {},
		Now:    func() time.Time { return fixedNow },
	}
	result := a.Analyze(context.Background(), "a fallback worthy question")
	if result.Confidence != 0.3 {
		t.Fatalf("expected fallback confidence, got %v", result.Confidence)
	}
	if client.calls != maxAnalysisAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAnalysisAttempts, client.calls)
	}
}

func TestAnalyzer_Analyze_TransientErrorThenSuccess(t *testing.T) {
	client := &stubClient{
		errs:      []error{errors.New("transient"), nil},
		responses: []string{"", "Research Gaps:\n1. A sufficiently long focus area text here\n"},
	}
	a := &Analyzer{
		Client: client,
		Model:  "test-model",
		Sleep:  func(time.Duration) {},
		Now:    func() time.Time { return fixedNow },
	}
	result := a.Analyze(context.Background(), "question that recovers")
	if len(result.FocusAreas) != 1 {
		t.Fatalf("expected recovery to parse 1 focus area, got %d", len(result.FocusAreas))
	}
}

func TestPrompt_FormattedVariantDiffersFromInitial(t *testing.T) {
	initial := Prompt("q", false)
	formatted := Prompt("q", true)
	if initial == formatted {
		t.Fatalf("expected formatted retry prompt to differ from initial prompt")
	}
}
