package router

import (
	"strings"
)

// Keyword groups for lexical classification. Quantitative/aggregate phrasing
// points at the structured corpus, narrative/qualitative phrasing at the
// unstructured one. Matched case-insensitively against the whole query.
var (
	structuredSignals = []string{
		"how many", "how much", "count", "number of", "average", "mean",
		"median", "sum", "total", "percentage", "percent", "ratio",
		"top ", "highest", "lowest", "maximum", "minimum", "per month",
		"per year", "group by", "trend", "distribution", "most purchased",
		"least purchased", "rank",
	}

	unstructuredSignals = []string{
		"summarize", "summary", "describe", "explain", "why", "what do",
		"what are people", "sentiment", "feedback", "opinion", "complain",
		"review say", "reviews say", "experience", "think about", "feel about",
		"tell me about", "overview", "meeting notes", "discuss", "quality",
	}
)

// classifyLexical scores the query against both signal sets and returns the
// winning target with a confidence proportional to the margin. A query with
// no signal hits at all yields ("both", 0).
func classifyLexical(query string) (Target, float64, string) {
	q := strings.ToLower(query)

	s := countHits(q, structuredSignals)
	u := countHits(q, unstructuredSignals)

	switch {
	case s == 0 && u == 0:
		return TargetBoth, 0, "no lexical signal"
	case s == u:
		return TargetBoth, 0.3, "mixed lexical signal"
	case s > u:
		return TargetStructured, margin(s, u), "quantitative phrasing"
	default:
		return TargetUnstructured, margin(u, s), "narrative phrasing"
	}
}

func countHits(q string, signals []string) int {
	n := 0
	for _, sig := range signals {
		if strings.Contains(q, sig) {
			n++
		}
	}
	return n
}

// margin maps a winning/losing hit count pair to a confidence in (0.5, 1.0].
// A clean single-signal win scores 0.75; each extra unopposed hit adds
// confidence, capped at 0.95.
func margin(win, lose int) float64 {
	conf := 0.5 + 0.25*float64(win-lose)/float64(win)
	if win-lose >= 2 {
		conf += 0.1
	}
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
