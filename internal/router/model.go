package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// classifierPrompt asks for a single-word verdict so parsing stays trivial.
const classifierPrompt = `Classify the question below by the knowledge source that answers it.

Answer with exactly one word:
- "structured" for counting, aggregation, statistics or other database-style questions
- "unstructured" for narrative, qualitative or document-comprehension questions

Question: %s`

// ModelClassifier refines routing decisions with a small LLM call. It
// implements Classifier; all model non-determinism lives here so the Router
// itself stays deterministic under a stubbed classifier.
type ModelClassifier struct {
	genkit    *genkit.Genkit
	modelName string
}

// NewModelClassifier creates a classifier using the given registered model.
func NewModelClassifier(g *genkit.Genkit, modelName string) *ModelClassifier {
	return &ModelClassifier{genkit: g, modelName: modelName}
}

// Classify asks the model for a verdict. Unparseable output is returned as
// a both-decision with zero confidence rather than an error, so the router
// falls through to its ambiguity handling.
func (c *ModelClassifier) Classify(ctx context.Context, query string) (Target, float64, error) {
	resp, err := genkit.Generate(ctx, c.genkit,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(fmt.Sprintf(classifierPrompt, query)),
	)
	if err != nil {
		return TargetBoth, 0, fmt.Errorf("classifier generate: %w", err)
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Text()))
	switch {
	case strings.HasPrefix(verdict, "structured"):
		return TargetStructured, 0.9, nil
	case strings.HasPrefix(verdict, "unstructured"):
		return TargetUnstructured, 0.9, nil
	default:
		return TargetBoth, 0, nil
	}
}
