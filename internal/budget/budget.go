// Package budget sizes prompts against a model's context window, so
// excerpt selection can spend whatever room the window actually has
// instead of a fixed per-source cutoff.
package budget

import (
	"math"
	"strings"
)

// EstimateTokensFromChars converts a character count into an estimated
// token count, roughly 4 chars per token for English text, rounded up.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// EstimatePromptTokens estimates the total tokens for a prompt composed
// of a system message, a user message, and zero or more excerpts.
func EstimatePromptTokens(system, user string, excerpts []string) int {
	total := EstimateTokens(system) + EstimateTokens(user)
	for _, ex := range excerpts {
		total += EstimateTokens(ex)
	}
	return total
}

// defaultContextTokens is the fallback for models the table and suffix
// heuristics both miss.
const defaultContextTokens = 8192

// knownModelMax holds rough context sizes for common model
// identifiers. Best-effort; the suffix heuristics cover the rest.
var knownModelMax = map[string]int{
	"gpt-4o":             128_000,
	"gpt-4o-mini":        128_000,
	"gpt-4-turbo":        128_000,
	"gpt-4-0125-preview": 128_000,
	"gpt-3.5-turbo":      16_384,

	"claude-3-5-sonnet": 200_000,
	"claude-3-opus":     200_000,
	"claude-3-sonnet":   200_000,
	"claude-3-haiku":    200_000,

	"llama-3":   8_192,
	"llama-3.1": 128_000,

	// OpenAI-compatible OSS backends seen in the wild default low.
	"openai/gpt-oss-20b": 4_096,
	"gpt-oss-20b":        4_096,
}

// contextSuffixes maps trailing window markers in a model name to a
// window size, checked largest first.
var contextSuffixes = []struct {
	suffix string
	tokens int
}{
	{"1m", 1_000_000},
	{"512k", 512_000},
	{"200k", 200_000},
	{"180k", 180_000},
	{"128k", 128_000},
}

// ModelContextTokens returns an estimated maximum context window for a
// model name. Unknown models fall back to a conservative default.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if name == "" {
		return defaultContextTokens
	}
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	for _, cs := range contextSuffixes {
		if strings.HasSuffix(name, cs.suffix) {
			return cs.tokens
		}
	}
	if strings.Contains(name, "-mini") {
		// "mini" tiers mostly expose large contexts now.
		return 128_000
	}
	return defaultContextTokens
}

// RemainingContext computes the input token budget left after
// reserving output room and the estimated prompt. Never negative.
func RemainingContext(modelName string, reservedForOutput, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FitsInContext reports whether the prompt fits the model's context
// window when reserving the specified number of output tokens.
func FitsInContext(modelName string, reservedForOutput, promptTokens int) bool {
	return RemainingContext(modelName, reservedForOutput, promptTokens) > 0
}

// HeadroomTokens returns the safety margin subtracted from the window
// to absorb tokenizer variance and message framing: the larger of 5%
// of the model context or 512 tokens.
func HeadroomTokens(modelName string) int {
	dyn := int(math.Ceil(float64(ModelContextTokens(modelName)) * 0.05))
	if dyn < 512 {
		return 512
	}
	return dyn
}

// RemainingContextWithHeadroom is RemainingContext with HeadroomTokens
// folded into the output reservation.
func RemainingContextWithHeadroom(modelName string, reservedForOutput, promptTokens int) int {
	return RemainingContext(modelName, reservedForOutput+HeadroomTokens(modelName), promptTokens)
}
