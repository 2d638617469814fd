package router

import (
	"context"
	"errors"
	"testing"
)

// stubClassifier returns a fixed verdict, standing in for the model-backed
// classifier.
type stubClassifier struct {
	target Target
	conf   float64
	err    error
}

func (s stubClassifier) Classify(context.Context, string) (Target, float64, error) {
	return s.target, s.conf, s.err
}

func TestRoute_LexicalStructured(t *testing.T) {
	r := New(nil, 0.6, nil)

	queries := []string{
		"How many customers reviewed product_890?",
		"What is the average rating per month for cookbooks?",
		"Count the total number of reviews in 2024",
	}
	for _, q := range queries {
		d := r.Route(context.Background(), q, nil)
		if d.Target != TargetStructured {
			t.Errorf("Route(%q).Target = %q, want structured (conf %.2f)", q, d.Target, d.Confidence)
		}
	}
}

func TestRoute_LexicalUnstructured(t *testing.T) {
	r := New(nil, 0.6, nil)

	queries := []string{
		"Summarize FOMC meeting notes from 1936 to 1967",
		"What do customers say about the build quality?",
		"Explain the main complaints in the speaker reviews",
	}
	for _, q := range queries {
		d := r.Route(context.Background(), q, nil)
		if d.Target != TargetUnstructured {
			t.Errorf("Route(%q).Target = %q, want unstructured (conf %.2f)", q, d.Target, d.Confidence)
		}
	}
}

func TestRoute_AmbiguousFallsToBoth(t *testing.T) {
	r := New(nil, 0.6, nil)

	d := r.Route(context.Background(), "product_890", nil)
	if d.Target != TargetBoth {
		t.Errorf("Route(ambiguous).Target = %q, want both", d.Target)
	}
	if d.Confidence >= 0.6 {
		t.Errorf("ambiguous confidence = %v, want below threshold", d.Confidence)
	}
}

func TestRoute_Deterministic(t *testing.T) {
	r := New(nil, 0.6, nil)
	q := "What do customers say about total durability count?" // mixed signals

	first := r.Route(context.Background(), q, nil)
	for i := 0; i < 10; i++ {
		again := r.Route(context.Background(), q, nil)
		if again != first {
			t.Fatalf("Route not deterministic: %+v vs %+v", again, first)
		}
	}
}

func TestRoute_ClassifierRefinesAmbiguous(t *testing.T) {
	r := New(stubClassifier{target: TargetStructured, conf: 0.9}, 0.6, nil)

	d := r.Route(context.Background(), "product_890", nil)
	if d.Target != TargetStructured {
		t.Errorf("Target = %q, want structured from classifier", d.Target)
	}
	if d.Rationale != "model classifier" {
		t.Errorf("Rationale = %q, want model classifier", d.Rationale)
	}
}

func TestRoute_ClassifierNotConsultedWhenConfident(t *testing.T) {
	// A confident lexical decision must not be overridden.
	r := New(stubClassifier{target: TargetStructured, conf: 0.9}, 0.6, nil)

	d := r.Route(context.Background(), "Summarize the customer feedback themes", nil)
	if d.Target != TargetUnstructured {
		t.Errorf("Target = %q, want unstructured from lexical pass", d.Target)
	}
}

func TestRoute_ClassifierErrorIsNonFatal(t *testing.T) {
	r := New(stubClassifier{err: errors.New("model unavailable")}, 0.6, nil)

	d := r.Route(context.Background(), "product_890", nil)
	if d.Target != TargetBoth {
		t.Errorf("Target = %q, want both after classifier failure", d.Target)
	}
}

func TestRoute_SessionContinuity(t *testing.T) {
	r := New(nil, 0.6, nil)

	prior := []Target{TargetStructured, TargetStructured}
	d := r.Route(context.Background(), "and for product_891?", prior)
	if d.Target != TargetStructured {
		t.Errorf("Target = %q, want structured via continuity", d.Target)
	}
	if d.Rationale != "session continuity" {
		t.Errorf("Rationale = %q", d.Rationale)
	}
}

func TestRoute_ContinuityBrokenByMixedHistory(t *testing.T) {
	r := New(nil, 0.6, nil)

	prior := []Target{TargetStructured, TargetUnstructured}
	d := r.Route(context.Background(), "and for product_891?", prior)
	if d.Target != TargetBoth {
		t.Errorf("Target = %q, want both with mixed history", d.Target)
	}
}

func TestContinuityTarget(t *testing.T) {
	tests := []struct {
		name  string
		prior []Target
		want  Target
		ok    bool
	}{
		{"empty", nil, "", false},
		{"single", []Target{TargetUnstructured}, TargetUnstructured, true},
		{"consistent", []Target{TargetStructured, TargetStructured, TargetStructured}, TargetStructured, true},
		{"both breaks it", []Target{TargetBoth, TargetBoth}, "", false},
		{"only last three considered", []Target{TargetUnstructured, TargetStructured, TargetStructured, TargetStructured}, TargetStructured, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := continuityTarget(tt.prior)
			if got != tt.want || ok != tt.ok {
				t.Errorf("continuityTarget(%v) = (%q, %v), want (%q, %v)", tt.prior, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestClassifyLexical_Margin(t *testing.T) {
	if got := margin(1, 0); got != 0.75 {
		t.Errorf("margin(1,0) = %v, want 0.75", got)
	}
	if got := margin(3, 0); got != 0.85 {
		t.Errorf("margin(3,0) = %v, want 0.85", got)
	}
	if got := margin(2, 1); got != 0.625 {
		t.Errorf("margin(2,1) = %v, want 0.625", got)
	}
}
