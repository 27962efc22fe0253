package pii

import (
	"sort"
	"strings"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
)

// Match is one validated regex hit. Start and End are byte offsets into the
// scanned text, End exclusive.
type Match struct {
	Kind  string
	Value string
	Start int
	End   int
}

// Detection is the outcome of a scan.
type Detection struct {
	Matches []Match
	Elapsed time.Duration
}

// Detector scans text against every enabled pattern and resolves overlaps.
type Detector struct {
	registry *Registry
}

// NewDetector creates a detector over the given registry.
func NewDetector(registry *Registry) *Detector {
	return &Detector{registry: registry}
}

// Detect returns the non-overlapping, position-sorted matches in text.
// Empty or whitespace-only text yields no matches. A failure in a single
// kind's scan drops only that kind's contribution.
func (d *Detector) Detect(text string) Detection {
	start := time.Now()
	if strings.TrimSpace(text) == "" {
		return Detection{Elapsed: time.Since(start)}
	}

	var candidates []Match
	for _, p := range d.registry.Patterns() {
		candidates = append(candidates, scanKind(p, text)...)
	}

	matches := resolveOverlaps(candidates)
	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Kind]++
	}
	for kind, n := range counts {
		metrics.RecordPIIDetections(kind, n)
	}

	return Detection{Matches: matches, Elapsed: time.Since(start)}
}

// scanKind applies one pattern and its validator. A panic inside the
// validator aborts only this kind.
func scanKind(p Pattern, text string) (matches []Match) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warnf("pattern %s scan failed, skipping kind: %v", p.Name, r)
			matches = nil
		}
	}()
	for _, loc := range p.regex.FindAllStringIndex(text, -1) {
		value := text[loc[0]:loc[1]]
		if !p.validator(value) {
			continue
		}
		matches = append(matches, Match{
			Kind:  p.Name,
			Value: value,
			Start: loc[0],
			End:   loc[1],
		})
	}
	return matches
}

// resolveOverlaps sorts candidates by start ascending, then length
// descending, and greedily keeps a match only if it begins at or after the
// end of the last kept match. On a same-start tie the longer span wins.
func resolveOverlaps(candidates []Match) []Match {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]Match, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End-sorted[i].Start > sorted[j].End-sorted[j].Start
	})

	kept := make([]Match, 0, len(sorted))
	kept = append(kept, sorted[0])
	for _, m := range sorted[1:] {
		if m.Start >= kept[len(kept)-1].End {
			kept = append(kept, m)
		}
	}
	return kept
}
