package optimizer

import (
	"regexp"
	"strings"
)

// IntentType classifies what the user wants from the model.
type IntentType string

const (
	IntentGenerateText    IntentType = "GENERATE_TEXT"
	IntentExplainConcept  IntentType = "EXPLAIN_CONCEPT"
	IntentSummarize       IntentType = "SUMMARIZE"
	IntentTranslate       IntentType = "TRANSLATE"
	IntentAnalyze         IntentType = "ANALYZE"
	IntentQuestionAnswer  IntentType = "QUESTION_ANSWER"
	IntentCodeGeneration  IntentType = "CODE_GENERATION"
	IntentCodeExplanation IntentType = "CODE_EXPLANATION"
	IntentCreativeWriting IntentType = "CREATIVE_WRITING"
	IntentDataExtraction  IntentType = "DATA_EXTRACTION"
	IntentComparison      IntentType = "COMPARISON"
	IntentClassification  IntentType = "CLASSIFICATION"
	IntentUnknown         IntentType = "UNKNOWN"
)

// Intent is a classified prompt purpose with a confidence in [0,1].
type Intent struct {
	Type       IntentType
	Confidence float64
}

// UnknownIntent is returned when no pattern matches.
func UnknownIntent() Intent {
	return Intent{Type: IntentUnknown}
}

type intentRule struct {
	typ      IntentType
	patterns []*regexp.Regexp
}

// intentRules is evaluated in order; on a score tie the earlier rule wins,
// keeping classification deterministic.
var intentRules = []intentRule{
	{IntentGenerateText, compileAll(
		`\b(write|create|generate|compose|draft)\b.*\b(email|letter|message|document|article|post)\b`,
		`\b(write me|create a|generate a|compose a)\b`,
		`\bhelp me write\b`,
	)},
	{IntentExplainConcept, compileAll(
		`\b(explain|describe|tell me about|what is|what are)\b`,
		`\bhow does .* work\b`,
		`\bcan you explain\b`,
	)},
	{IntentSummarize, compileAll(
		`\b(summarize|summary|tldr|key points|main ideas)\b`,
		`\b(condense|shorten|brief|briefly)\b`,
		`\bgive me (a|the) (summary|overview)\b`,
	)},
	{IntentTranslate, compileAll(
		`\btranslate\b.*\b(to|into|in)\b`,
		`\b(spanish|french|german|hindi|chinese|japanese) translation\b`,
		`\bconvert.*to (spanish|french|german)\b`,
	)},
	{IntentAnalyze, compileAll(
		`\b(analyze|analysis|examine|evaluate|assess)\b`,
		`\b(what does this mean|interpret|review)\b`,
		`\b(compare|contrast|difference between)\b`,
	)},
	{IntentQuestionAnswer, compileAll(
		`^(what|who|when|where|why|how|which)\b`,
		`\b(can you tell me|do you know|is it true that)\b`,
		`\?$`,
	)},
	{IntentCodeGeneration, compileAll(
		`\b(write|create|generate) .* (code|function|class|script|program)\b`,
		`\b(implement|build|develop) .* (in|using) (python|java|javascript|react)\b`,
		`\bhow to code\b`,
	)},
	{IntentCodeExplanation, compileAll(
		`\bexplain (this|the) code\b`,
		`\bwhat does this code do\b`,
		`\bhow does this .* work\b.*\bcode\b`,
	)},
	{IntentCreativeWriting, compileAll(
		`\b(write|create) .* (story|poem|song|lyrics)\b`,
		`\b(creative|fiction|narrative|tale)\b`,
		`\bonce upon a time\b`,
	)},
	{IntentDataExtraction, compileAll(
		`\b(extract|find|get|retrieve|pull out)\b.*\b(data|information|details)\b`,
		`\b(list all|show me all|give me all)\b`,
		`\bwhat are the (names|dates|numbers|values)\b`,
	)},
	{IntentComparison, compileAll(
		`\b(compare|comparison|versus|vs|difference between)\b`,
		`\b(better|worse|pros and cons|advantages|disadvantages)\b`,
		`\bwhich is (better|best|faster|cheaper)\b`,
	)},
	{IntentClassification, compileAll(
		`\b(classify|categorize|label|tag|identify type)\b`,
		`\bwhat (type|kind|category) (is|are)\b`,
		`\bis this .* (positive|negative|neutral)\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		res[i] = regexp.MustCompile(e)
	}
	return res
}

var intentSpaceRe = regexp.MustCompile(`\s+`)

// ExtractIntent classifies a prompt by keyword patterns. The prompt is
// lowercased and whitespace-normalized first; the highest scoring type
// wins.
func ExtractIntent(prompt string) Intent {
	if strings.TrimSpace(prompt) == "" {
		return UnknownIntent()
	}
	normalized := strings.TrimSpace(intentSpaceRe.ReplaceAllString(strings.ToLower(prompt), " "))

	best := UnknownIntent()
	for _, rule := range intentRules {
		score := scoreIntent(normalized, rule.patterns)
		if score > best.Confidence {
			best = Intent{Type: rule.typ, Confidence: score}
		}
	}
	return best
}

// scoreIntent maps match counts to a confidence step.
func scoreIntent(normalized string, patterns []*regexp.Regexp) float64 {
	matches := 0
	for _, re := range patterns {
		if re.MatchString(normalized) {
			matches++
		}
	}
	switch matches {
	case 0:
		return 0.0
	case 1:
		return 0.6
	case 2:
		return 0.8
	default:
		return 0.9
	}
}
