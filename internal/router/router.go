// Package router classifies incoming queries as structured, unstructured,
// or both, deciding which knowledge source adapters the orchestrator invokes.
//
// Classification is primarily lexical and fully deterministic. An optional
// model-backed classifier can refine low-confidence decisions; its
// non-determinism is isolated behind the Classifier interface so tests can
// substitute a fixed stub. When no source wins with enough confidence the
// decision is "both": the orchestrator queries both adapters and merges,
// trading latency for recall.
//
// Routing never fails terminally. Adapter availability is not the router's
// concern; the decision is informational and downstream components report
// unavailability themselves.
package router

import (
	"context"

	"github.com/ragline/ragline/internal/log"
)

// Target names the knowledge source(s) a query is routed to.
type Target string

const (
	// TargetUnstructured routes to the vector-search document corpus.
	TargetUnstructured Target = "unstructured"

	// TargetStructured routes to the text-to-SQL relational corpus.
	TargetStructured Target = "structured"

	// TargetBoth fans out to both adapters and merges the results.
	TargetBoth Target = "both"
)

// Decision is the routing outcome for one query. Produced once, never mutated.
type Decision struct {
	Target     Target  `json:"target"`
	Confidence float64 `json:"confidence"` // 0.0-1.0
	Rationale  string  `json:"rationale"`
}

// Classifier scores a query against the two knowledge sources.
// Implementations backed by a model must confine all non-determinism here.
type Classifier interface {
	Classify(ctx context.Context, query string) (Target, float64, error)
}

// Router decides which adapters to invoke for a query.
type Router struct {
	classifier Classifier // optional refinement, may be nil
	threshold  float64    // below this, fall through to continuity or both
	logger     log.Logger
}

// New creates a Router. classifier may be nil for heuristic-only routing.
func New(classifier Classifier, threshold float64, logger log.Logger) *Router {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Router{classifier: classifier, threshold: threshold, logger: logger}
}

// Route classifies the query. priorTargets carries the routing targets of
// earlier turns in the same session, most recent last; it only influences
// low-confidence decisions (continuity bias).
//
// Route is deterministic for identical query text, prior targets and
// classifier behavior.
func (r *Router) Route(ctx context.Context, query string, priorTargets []Target) Decision {
	target, confidence, rationale := classifyLexical(query)

	if confidence < r.threshold && r.classifier != nil {
		if t, c, err := r.classifier.Classify(ctx, query); err != nil {
			// Classifier failure is non-fatal, keep the lexical result.
			r.logger.Warn("model classifier failed, using lexical decision", "error", err)
		} else if c >= r.threshold {
			target, confidence = t, c
			rationale = "model classifier"
		}
	}

	if confidence < r.threshold {
		if t, ok := continuityTarget(priorTargets); ok {
			r.logger.Debug("low-confidence decision resolved by session continuity",
				"target", t, "confidence", confidence)
			return Decision{Target: t, Confidence: r.threshold, Rationale: "session continuity"}
		}
		return Decision{
			Target:     TargetBoth,
			Confidence: confidence,
			Rationale:  "ambiguous, querying both sources",
		}
	}

	r.logger.Debug("routed query", "target", target, "confidence", confidence)
	return Decision{Target: target, Confidence: confidence, Rationale: rationale}
}

// continuityTarget returns the dominant single-source target of recent
// turns, looking at up to the last three. Both-decisions break continuity.
func continuityTarget(prior []Target) (Target, bool) {
	if len(prior) == 0 {
		return "", false
	}
	start := len(prior) - 3
	if start < 0 {
		start = 0
	}
	recent := prior[start:]
	first := recent[0]
	if first == TargetBoth {
		return "", false
	}
	for _, t := range recent[1:] {
		if t != first {
			return "", false
		}
	}
	return first, true
}
