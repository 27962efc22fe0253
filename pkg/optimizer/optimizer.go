// Package optimizer rewrites prompts to cut token count while preserving
// meaning. It runs a fixed sequence of regex passes over the redacted
// prompt; redaction tokens and extracted entity spans are never modified.
package optimizer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
)

// Config controls which passes run and when optimization is skipped.
type Config struct {
	Enabled         bool
	MinPromptLength int
	TargetReduction int
	Strategies      Strategies
	Stopwords       Stopwords
}

// Strategies toggles the individual passes.
type Strategies struct {
	RemoveRedundancy   bool
	RemoveFillerWords  bool
	SimplifyLanguage   bool
	CompressWhitespace bool
}

// Stopwords controls the filler-word pass.
type Stopwords struct {
	Enabled     bool
	CustomWords []string
}

// Result describes one optimization outcome. On skip, OptimizedPrompt
// equals OriginalPrompt and SkipReason says why.
type Result struct {
	OriginalPrompt  string
	OptimizedPrompt string
	OriginalTokens  int
	OptimizedTokens int
	Applied         bool
	SkipReason      string
	Intent          Intent
	Entities        []Entity
	Elapsed         time.Duration
}

// TokensSaved is the estimated token delta.
func (r Result) TokensSaved() int {
	return r.OriginalTokens - r.OptimizedTokens
}

// ReductionPercentage is the saved share of the original tokens.
func (r Result) ReductionPercentage() float64 {
	if r.OriginalTokens == 0 {
		return 0.0
	}
	return float64(r.OriginalTokens-r.OptimizedTokens) / float64(r.OriginalTokens) * 100.0
}

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// redundancyRewrites collapses polite boilerplate. Slice order keeps the
// passes deterministic.
var redundancyRewrites = []rewrite{
	{regexp.MustCompile(`(?i)\bI was wondering if you could\b`), "Please"},
	{regexp.MustCompile(`(?i)\bCould you please possibly\b`), "Please"},
	{regexp.MustCompile(`(?i)\bI would like to request that you\b`), "Please"},
	{regexp.MustCompile(`(?i)\bIt would be great if you could\b`), "Please"},
	{regexp.MustCompile(`(?i)\bI'm trying to figure out how to\b`), "How to"},
}

// simplifyRewrites swaps verbose phrases for concise equivalents.
var simplifyRewrites = []rewrite{
	{regexp.MustCompile(`(?i)\bin order to\b`), "to"},
	{regexp.MustCompile(`(?i)\bdue to the fact that\b`), "because"},
	{regexp.MustCompile(`(?i)\bat this point in time\b`), "now"},
	{regexp.MustCompile(`(?i)\bfor the purpose of\b`), "to"},
	{regexp.MustCompile(`(?i)\bin the event that\b`), "if"},
	{regexp.MustCompile(`(?i)\bprior to\b`), "before"},
	{regexp.MustCompile(`(?i)\bsubsequent to\b`), "after"},
	{regexp.MustCompile(`(?i)\bwith regard to\b`), "about"},
	{regexp.MustCompile(`(?i)\bin close proximity to\b`), "near"},
}

var defaultStopwords = []string{
	"basically", "actually", "literally", "honestly", "frankly",
	"really", "very", "quite", "just", "simply", "merely",
	"perhaps", "maybe", "possibly", "probably",
	"essentially", "practically", "virtually", "effectively",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// redactionTokenRe matches the placeholder format used for redacted
	// values; such runs are opaque to every pass.
	redactionTokenRe = regexp.MustCompile(`\[[A-Z_]+_TOKEN_[0-9a-f]+\]`)
)

// Optimizer applies the configured passes. Safe for concurrent use.
type Optimizer struct {
	cfg        Config
	stopwordRe *regexp.Regexp
}

// New builds an optimizer, merging custom stopwords into the default set.
func New(cfg Config) *Optimizer {
	words := make([]string, 0, len(defaultStopwords)+len(cfg.Stopwords.CustomWords))
	words = append(words, defaultStopwords...)
	for _, w := range cfg.Stopwords.CustomWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	return &Optimizer{
		cfg:        cfg,
		stopwordRe: regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`),
	}
}

// Optimize runs the enabled passes over prompt in a fixed order:
// redundancy, filler words, simplification, whitespace. A pass failure
// returns the original prompt with a skip reason rather than an error.
func (o *Optimizer) Optimize(prompt string) Result {
	start := time.Now()

	if strings.TrimSpace(prompt) == "" {
		return skipped(prompt, "empty prompt", start)
	}
	if !o.cfg.Enabled {
		return skipped(prompt, "optimization disabled", start)
	}
	if len(prompt) < o.cfg.MinPromptLength {
		logging.Debugf("prompt too short (%d chars), skipping optimization", len(prompt))
		return skipped(prompt, "prompt too short", start)
	}

	intent := ExtractIntent(prompt)
	entities := ExtractEntities(prompt)

	optimized, err := o.applyPasses(prompt, entities)
	if err != nil {
		logging.Warnf("optimization failed, returning original prompt: %v", err)
		res := skipped(prompt, fmt.Sprintf("optimization failed: %v", err), start)
		res.Intent = intent
		res.Entities = entities
		return res
	}

	res := Result{
		OriginalPrompt:  prompt,
		OptimizedPrompt: optimized,
		OriginalTokens:  EstimateTokens(prompt),
		OptimizedTokens: EstimateTokens(optimized),
		Applied:         true,
		Intent:          intent,
		Entities:        entities,
		Elapsed:         time.Since(start),
	}
	if saved := res.TokensSaved(); saved > 0 {
		metrics.RecordTokensSaved(saved)
	}
	return res
}

// applyPasses runs the enabled strategies over text. Protected spans cover
// every entity and every redaction token; they are kept aligned as the
// text shrinks.
func (o *Optimizer) applyPasses(text string, entities []Entity) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	spans := protectedSpans(text, entities)
	out = text

	if o.cfg.Strategies.RemoveRedundancy {
		for _, rw := range redundancyRewrites {
			out, spans = replaceOutsideSpans(out, rw.re, rw.repl, spans)
		}
	}
	if o.cfg.Strategies.RemoveFillerWords && o.cfg.Stopwords.Enabled {
		out, spans = replaceOutsideSpans(out, o.stopwordRe, "", spans)
	}
	if o.cfg.Strategies.SimplifyLanguage {
		for _, rw := range simplifyRewrites {
			out, spans = replaceOutsideSpans(out, rw.re, rw.repl, spans)
		}
	}
	if o.cfg.Strategies.CompressWhitespace {
		out, _ = replaceOutsideSpans(out, whitespaceRe, " ", spans)
		// Spans never begin or end in whitespace, so trimming the
		// edges cannot touch a protected character.
		out = strings.TrimSpace(out)
	}
	return out, nil
}

// EstimateTokens approximates the token count at four characters per token.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

func skipped(prompt, reason string, start time.Time) Result {
	tokens := EstimateTokens(prompt)
	return Result{
		OriginalPrompt:  prompt,
		OptimizedPrompt: prompt,
		OriginalTokens:  tokens,
		OptimizedTokens: tokens,
		SkipReason:      reason,
		Intent:          UnknownIntent(),
		Elapsed:         time.Since(start),
	}
}

type span struct {
	start, end int
}

// protectedSpans merges entity positions with redaction token runs.
func protectedSpans(text string, entities []Entity) []span {
	var spans []span
	for _, e := range entities {
		if e.End > e.Start {
			spans = append(spans, span{e.Start, e.End})
		}
	}
	for _, loc := range redactionTokenRe.FindAllStringIndex(text, -1) {
		spans = append(spans, span{loc[0], loc[1]})
	}
	return spans
}

func overlapsAny(start, end int, spans []span) bool {
	for _, s := range spans {
		if start < s.end && s.start < end {
			return true
		}
	}
	return false
}

// replaceOutsideSpans substitutes every match of re that does not touch a
// protected span and returns the spans shifted into the new coordinates.
func replaceOutsideSpans(text string, re *regexp.Regexp, repl string, spans []span) (string, []span) {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text, spans
	}

	var b strings.Builder
	cursor := 0
	var edits []span
	for _, loc := range locs {
		if overlapsAny(loc[0], loc[1], spans) {
			continue
		}
		b.WriteString(text[cursor:loc[0]])
		b.WriteString(repl)
		cursor = loc[1]
		edits = append(edits, span{loc[0], loc[1]})
	}
	if len(edits) == 0 {
		return text, spans
	}
	b.WriteString(text[cursor:])

	shifted := make([]span, len(spans))
	for i, s := range spans {
		delta := 0
		for _, e := range edits {
			if e.end <= s.start {
				delta += len(repl) - (e.end - e.start)
			}
		}
		shifted[i] = span{s.start + delta, s.end + delta}
	}
	return b.String(), shifted
}
