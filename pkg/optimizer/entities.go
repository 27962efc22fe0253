package optimizer

import (
	"regexp"
	"sort"
	"strings"
)

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityAmount       EntityType = "AMOUNT"
	EntityDate         EntityType = "DATE"
	EntityTechnology   EntityType = "TECHNOLOGY"
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityNumber       EntityType = "NUMBER"
	EntityRequirement  EntityType = "REQUIREMENT"
	EntityConstraint   EntityType = "CONSTRAINT"
)

// Entity is a span of the prompt that optimization passes must leave intact.
type Entity struct {
	Type  EntityType
	Value string
	Start int
	End   int
}

var (
	personRe = regexp.MustCompile(`\b([A-Z][a-z]+ [A-Z][a-z]+)\b`)
	orgRe    = regexp.MustCompile(`\b([A-Z][A-Za-z]+(?: [A-Z][A-Za-z]+)*(?: Inc\.?| Corp\.?| Ltd\.?| LLC)?)\b`)
	dateRe   = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|[A-Z][a-z]+ \d{1,2},? \d{4}|\d{4}-\d{2}-\d{2})\b`)
	numberRe = regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?\b`)
	amountRe = regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?|\d+(?:,\d{3})* (?:USD|EUR|GBP|INR)|Rs\.? ?\d+(?:,\d{3})*`)
	techRe   = regexp.MustCompile(`(?i)\b(Python|Java|JavaScript|React|Angular|Node\.?js|Spring|Django|Flask|PostgreSQL|MongoDB|Redis|AWS|Azure|GCP|Docker|Kubernetes|Git|GitHub|API|REST|GraphQL|SQL|NoSQL|HTML|CSS|TypeScript|Machine Learning|AI|TensorFlow|PyTorch)\b`)

	requirementRe = regexp.MustCompile(`(?i)\b(must|required|need|necessary|should|have to|cannot|can't|must not)\b`)
	constraintRe  = regexp.MustCompile(`(?i)\b(within \d+|less than \d+|more than \d+|maximum|minimum|at least|at most|no more than)\b`)
)

// entityPriority orders overlapping entities; higher wins.
var entityPriority = map[EntityType]int{
	EntityAmount:       100,
	EntityTechnology:   90,
	EntityPerson:       80,
	EntityOrganization: 70,
	EntityDate:         60,
	EntityRequirement:  50,
	EntityConstraint:   50,
	EntityNumber:       40,
}

// ExtractEntities returns the deduplicated, position-sorted entities of a
// prompt. Requirement and constraint hits are widened to the surrounding
// phrase so the whole clause survives optimization.
func ExtractEntities(prompt string) []Entity {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}

	var entities []Entity
	entities = append(entities, extractPattern(prompt, amountRe, EntityAmount)...)
	entities = append(entities, extractPattern(prompt, dateRe, EntityDate)...)
	entities = append(entities, extractPattern(prompt, techRe, EntityTechnology)...)
	entities = append(entities, extractPattern(prompt, personRe, EntityPerson)...)
	entities = append(entities, extractPattern(prompt, orgRe, EntityOrganization)...)
	entities = append(entities, extractPattern(prompt, numberRe, EntityNumber)...)
	entities = append(entities, extractKeywords(prompt, requirementRe, EntityRequirement)...)
	entities = append(entities, extractKeywords(prompt, constraintRe, EntityConstraint)...)

	return removeOverlapping(entities)
}

func extractPattern(text string, re *regexp.Regexp, typ EntityType) []Entity {
	var entities []Entity
	for _, loc := range re.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		if !shouldInclude(value, typ) {
			continue
		}
		entities = append(entities, Entity{Type: typ, Value: value, Start: loc[0], End: loc[1]})
	}
	return entities
}

// extractKeywords widens each keyword hit to the full clause it sits in,
// bounded by sentence punctuation and a ten word lookahead.
func extractKeywords(text string, re *regexp.Regexp, typ EntityType) []Entity {
	var entities []Entity
	for _, loc := range re.FindAllStringIndex(text, -1) {
		phrase, start := expandPhrase(text, loc[0], loc[1])
		entities = append(entities, Entity{Type: typ, Value: phrase, Start: start, End: start + len(phrase)})
	}
	return entities
}

func expandPhrase(text string, keywordStart, keywordEnd int) (string, int) {
	start := keywordStart
	for start > 0 && !isSentencePunct(text[start-1]) {
		start--
	}
	end := keywordEnd
	words := 0
	for end < len(text) && words < 10 {
		c := text[end]
		if isSentencePunct(c) {
			break
		}
		if c == ' ' || c == '\t' {
			words++
		}
		end++
	}
	phrase := strings.TrimSpace(text[start:end])
	offset := start + strings.Index(text[start:end], phrase)
	return phrase, offset
}

func isSentencePunct(c byte) bool {
	return c == '.' || c == '!' || c == '?' || c == ';' || c == '\n'
}

// shouldInclude filters common false positives per type.
func shouldInclude(value string, typ EntityType) bool {
	switch typ {
	case EntityNumber:
		return len(value) > 1
	case EntityPerson:
		lower := strings.ToLower(value)
		return lower != "the" && lower != "and" && len(value) > 3
	case EntityOrganization:
		return len(value) > 2
	default:
		return true
	}
}

// removeOverlapping sorts by start and, where spans collide, keeps the
// higher priority entity. Ties keep the earlier registered one.
func removeOverlapping(entities []Entity) []Entity {
	if len(entities) <= 1 {
		return entities
	}
	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	filtered := make([]Entity, 0, len(sorted))
	for _, current := range sorted {
		if len(filtered) == 0 {
			filtered = append(filtered, current)
			continue
		}
		previous := filtered[len(filtered)-1]
		if current.Start >= previous.End {
			filtered = append(filtered, current)
			continue
		}
		if entityPriority[current.Type] > entityPriority[previous.Type] {
			filtered[len(filtered)-1] = current
		}
	}
	return filtered
}
