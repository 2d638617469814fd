// Package citation parses citation markers out of generated answers and
// binds them to the evidence ids that were actually sent to the model.
//
// Marker syntax is bracketed ids: [e0] or [e0, e2]. A marker referencing
// an id outside the known set is an integrity violation: it is recorded
// and stripped from the display text, never silently remapped, and the
// answer itself is still returned.
package citation

import (
	"regexp"
	"strings"

	"github.com/ragline/ragline/internal/log"
)

// markerPattern matches one bracketed marker group, possibly listing
// several ids, together with the horizontal whitespace preceding it.
// Capturing the gap lets a removed group take its gap with it, so the
// surrounding text is never touched when no marker is stripped.
var markerPattern = regexp.MustCompile(`([ \t]*)\[\s*(e\d+(?:\s*,\s*e\d+)*)\s*\]`)

// Result is the parsed answer.
type Result struct {
	// Answer is the display text with invalid markers removed. Valid
	// markers are left in place.
	Answer string

	// Cited lists the referenced evidence ids in first-appearance order,
	// deduplicated.
	Cited []string

	// Violations lists marker ids that were not in the known evidence set,
	// in first-appearance order. Each one indicates model hallucination or
	// a prompt/answer mismatch.
	Violations []string
}

// Extractor validates markers against per-request evidence ids.
type Extractor struct {
	logger log.Logger
}

// NewExtractor creates an Extractor. A nil logger disables logging.
func NewExtractor(logger log.Logger) *Extractor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract parses every marker in raw and checks each referenced id
// against knownIDs. Marker groups are rewritten to keep only their valid
// ids; a group with no valid ids is removed entirely.
func (e *Extractor) Extract(raw string, knownIDs []string) Result {
	known := make(map[string]struct{}, len(knownIDs))
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}

	var (
		cited      []string
		violations []string
		citedSeen  = make(map[string]struct{})
		violSeen   = make(map[string]struct{})
	)

	answer := markerPattern.ReplaceAllStringFunc(raw, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		lead, group := sub[1], sub[2]

		var valid []string
		for _, id := range strings.Split(group, ",") {
			id = strings.TrimSpace(id)
			if _, ok := known[id]; ok {
				if _, dup := citedSeen[id]; !dup {
					citedSeen[id] = struct{}{}
					cited = append(cited, id)
				}
				valid = append(valid, id)
				continue
			}
			if _, dup := violSeen[id]; !dup {
				violSeen[id] = struct{}{}
				violations = append(violations, id)
			}
		}

		if len(valid) == 0 {
			return ""
		}
		return lead + "[" + strings.Join(valid, ", ") + "]"
	})
	answer = strings.TrimSpace(answer)

	for _, id := range violations {
		e.logger.Warn("citation integrity violation",
			"marker", id,
			"known", len(knownIDs),
		)
	}

	return Result{Answer: answer, Cited: cited, Violations: violations}
}
