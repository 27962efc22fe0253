// Package complexity scores prompts on a 0-100 scale from three factors:
// estimated length, reasoning demand, and technical depth. The analyzer is
// pure; identical inputs always produce identical scores.
package complexity

import (
	"regexp"
	"strings"
	"time"
)

// Level buckets a score into three routing classes.
type Level string

const (
	LevelSimple  Level = "simple"
	LevelMedium  Level = "medium"
	LevelComplex Level = "complex"
)

// Factor names used in the score breakdown.
const (
	FactorTokenCount = "Token Count"
	FactorReasoning  = "Reasoning"
	FactorTechnical  = "Technical"
)

// Score is a complexity assessment with its per-factor breakdown.
type Score struct {
	Score     int
	Level     Level
	Factors   map[string]int
	Reasoning string
	Elapsed   time.Duration
}

// IsComplex reports whether the prompt landed in the top bucket.
func (s Score) IsComplex() bool {
	return s.Level == LevelComplex
}

var (
	reasoningRe = regexp.MustCompile(`(?i)\b(analyze|compare|evaluate|explain|describe|why|how|consider|reasoning|logic|conclusion|therefore|because|pros and cons|advantages|disadvantages|trade-off)\b`)
	technicalRe = regexp.MustCompile(`(?i)\b(algorithm|implementation|architecture|database|api|framework|optimization|debugging|testing|deployment|machine learning|neural network|regression|classification|concurrent|asynchronous|thread|process|memory leak)\b`)
	creativeRe  = regexp.MustCompile(`(?i)\b(write|create|design|compose|generate|build|develop|story|poem|essay|article|script|plan|strategy)\b`)
	multiStepRe = regexp.MustCompile(`(?i)\b(first|second|third|then|next|finally|step|phase|and then|after that|following that)\b`)
	// Code markers deliberately carry no word boundaries; a trailing
	// space or parenthesis is part of the marker itself.
	codeRe = regexp.MustCompile("(?i)(```|function|class|def |import |public |private |void |int |string |return |if\\(|for\\(|while\\()")
)

// Analyze scores a single prompt. Empty or whitespace-only input scores
// zero with the level floor.
func Analyze(prompt string) Score {
	start := time.Now()

	if strings.TrimSpace(prompt) == "" {
		return Score{
			Level:     LevelSimple,
			Factors:   map[string]int{},
			Reasoning: "Empty prompt",
			Elapsed:   time.Since(start),
		}
	}

	factors := map[string]int{
		FactorTokenCount: tokenCountScore(prompt),
		FactorReasoning:  reasoningScore(prompt),
		FactorTechnical:  technicalScore(prompt),
	}
	total := factors[FactorTokenCount] + factors[FactorReasoning] + factors[FactorTechnical]

	return Score{
		Score:     total,
		Level:     LevelFor(total),
		Factors:   factors,
		Reasoning: buildReasoning(total, factors),
		Elapsed:   time.Since(start),
	}
}

// LevelFor maps a score to its level with thresholds at 30 and 60.
func LevelFor(score int) Level {
	switch {
	case score <= 30:
		return LevelSimple
	case score <= 60:
		return LevelMedium
	default:
		return LevelComplex
	}
}

// tokenCountScore buckets the estimated token count into 0-30 points.
func tokenCountScore(prompt string) int {
	tokens := len(prompt) / 4
	switch {
	case tokens < 50:
		return 5
	case tokens < 100:
		return 10
	case tokens < 200:
		return 15
	case tokens < 400:
		return 20
	default:
		return 30
	}
}

// reasoningScore adds up to 10 points each for reasoning keywords,
// multi-step markers, creative verbs, and repeated questions, capped at 40.
func reasoningScore(prompt string) int {
	score := 0
	if n := countMatches(prompt, reasoningRe); n > 0 {
		score += minInt(10, n*3)
	}
	if n := countMatches(prompt, multiStepRe); n > 0 {
		score += minInt(10, n*4)
	}
	if n := countMatches(prompt, creativeRe); n > 0 {
		score += minInt(10, n*5)
	}
	if q := strings.Count(prompt, "?"); q > 1 {
		score += minInt(10, q*3)
	}
	return minInt(40, score)
}

// technicalScore adds technical keyword and code marker points, capped
// at 30.
func technicalScore(prompt string) int {
	score := 0
	if n := countMatches(prompt, technicalRe); n > 0 {
		score += minInt(15, n*4)
	}
	if n := countMatches(prompt, codeRe); n > 0 {
		score += minInt(15, n*5)
	}
	return minInt(30, score)
}

func countMatches(text string, re *regexp.Regexp) int {
	return len(re.FindAllStringIndex(text, -1))
}

// buildReasoning names the bucket and the strongest factor. Factor order
// breaks ties so the text is deterministic.
func buildReasoning(total int, factors map[string]int) string {
	var b strings.Builder
	switch {
	case total <= 30:
		b.WriteString("Simple query - ")
	case total <= 60:
		b.WriteString("Medium complexity - ")
	default:
		b.WriteString("Complex query - ")
	}

	top := FactorTokenCount
	for _, name := range []string{FactorTokenCount, FactorReasoning, FactorTechnical} {
		if factors[name] > factors[top] {
			top = name
		}
	}
	b.WriteString("primarily driven by ")
	b.WriteString(strings.ToLower(top))
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
