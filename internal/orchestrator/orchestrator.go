// Package orchestrator runs the answer pipeline for one query: route,
// fan out to the selected knowledge sources, aggregate evidence, compose
// the prompt, generate, extract citations and record the turn.
//
// All state is request-scoped. The only shared resource is the optional
// session memory, which is appended to atomically after the answer is
// produced.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ragline/ragline/internal/citation"
	"github.com/ragline/ragline/internal/compose"
	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/retrieval"
	"github.com/ragline/ragline/internal/router"
	"github.com/ragline/ragline/internal/session"
)

// maxHistoryTurns bounds how much session history informs routing and
// prompt composition.
const maxHistoryTurns = 5

var tracer = otel.Tracer("ragline/orchestrator")

// Query is one immutable user turn.
type Query struct {
	Text      string
	SessionID string            // empty when sessions are disabled
	Filters   retrieval.Filters // optional metadata constraints, unstructured only
}

// Citation binds an answer marker to the evidence behind it. Provenance
// is included so a later resolve call needs no server-side request state.
type Citation struct {
	Marker     string              `json:"marker"`
	Summary    string              `json:"evidenceSummary"`
	SourceType evidence.SourceType `json:"sourceType"`
	Provenance evidence.Provenance `json:"provenance"`
}

// Answer is the completed pipeline result.
type Answer struct {
	Text       string          `json:"answerText"`
	Grounded   bool            `json:"grounded"`
	Routing    router.Decision `json:"routing"`
	Citations  []Citation      `json:"citations"`
	Degraded   []string        `json:"degradedSources,omitempty"`
	Violations []string        `json:"-"` // observable via logs, not display
}

// UnstructuredAdapter retrieves ranked chunks from the document corpus.
type UnstructuredAdapter interface {
	Retrieve(ctx context.Context, query string, topK int, filters retrieval.Filters) ([]evidence.Item, error)
}

// StructuredAdapter answers against the relational corpus.
type StructuredAdapter interface {
	Retrieve(ctx context.Context, query string) ([]evidence.Item, error)
}

// Composer builds the generation prompt. *compose.Composer satisfies it.
type Composer interface {
	Compose(query string, history []compose.Exchange, bundle evidence.Bundle) compose.Prompt
}

// Generator produces the raw answer text for a composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt compose.Prompt) (string, error)
}

// Orchestrator wires the pipeline components.
type Orchestrator struct {
	router       *router.Router
	unstructured UnstructuredAdapter
	structured   StructuredAdapter
	aggregator   *evidence.Aggregator
	composer     Composer
	generator    Generator
	extractor    *citation.Extractor
	memory       session.Memory // nil when sessions are disabled

	topK             int
	retrievalTimeout time.Duration
	logger           log.Logger
}

// Options collects the orchestrator's dependencies.
type Options struct {
	Router           *router.Router
	Unstructured     UnstructuredAdapter
	Structured       StructuredAdapter
	Aggregator       *evidence.Aggregator
	Composer         Composer
	Generator        Generator
	Extractor        *citation.Extractor
	Memory           session.Memory
	TopK             int
	RetrievalTimeout time.Duration
	Logger           log.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		router:           opts.Router,
		unstructured:     opts.Unstructured,
		structured:       opts.Structured,
		aggregator:       opts.Aggregator,
		composer:         opts.Composer,
		generator:        opts.Generator,
		extractor:        opts.Extractor,
		memory:           opts.Memory,
		topK:             opts.TopK,
		retrievalTimeout: opts.RetrievalTimeout,
		logger:           logger,
	}
}

// Answer runs the full pipeline. The only terminal failure is generation:
// retrieval failures degrade the answer instead of aborting it.
func (o *Orchestrator) Answer(ctx context.Context, q Query) (Answer, error) {
	ctx, span := tracer.Start(ctx, "pipeline.answer")
	defer span.End()

	history := o.loadHistory(ctx, q.SessionID)

	decision := o.router.Route(ctx, q.Text, session.PriorTargets(history))
	span.SetAttributes(
		attribute.String("routing.target", string(decision.Target)),
		attribute.Float64("routing.confidence", decision.Confidence),
	)

	retrieveCtx, retrieveSpan := tracer.Start(ctx, "pipeline.retrieve",
		trace.WithAttributes(attribute.String("routing.target", string(decision.Target))))
	branches := o.retrieve(retrieveCtx, q, decision.Target)
	bundle := o.aggregator.Aggregate(branches)
	retrieveSpan.SetAttributes(attribute.Int("evidence.count", len(bundle.Items)))
	retrieveSpan.End()

	prompt := o.composer.Compose(q.Text, exchanges(history), bundle)

	genCtx, genSpan := tracer.Start(ctx, "pipeline.generate")
	text, err := o.generator.Generate(genCtx, prompt)
	genSpan.End()
	if err != nil {
		return Answer{}, err
	}

	// Markers are checked against the ids that made it into the prompt,
	// not the full bundle: the token budget may have dropped trailing
	// items the model never saw, and citing those is a violation too.
	result := o.extractor.Extract(text, prompt.EvidenceIDs)

	citations := make([]Citation, 0, len(result.Cited))
	for _, id := range result.Cited {
		it, ok := bundle.Lookup(id)
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			Marker:     it.ID,
			Summary:    it.Summary(),
			SourceType: it.SourceType,
			Provenance: it.Provenance,
		})
	}

	answer := Answer{
		Text:       result.Answer,
		Grounded:   prompt.Grounded,
		Routing:    decision,
		Citations:  citations,
		Degraded:   bundle.Degraded,
		Violations: result.Violations,
	}

	o.recordTurn(ctx, q, decision, answer)
	return answer, nil
}

// retrieve fans out to the selected adapters. Each branch gets its own
// timeout so a slow source cannot block the other's contribution, and a
// branch failure surfaces as a degraded source, never a panic or abort.
func (o *Orchestrator) retrieve(ctx context.Context, q Query, target router.Target) []evidence.Branch {
	runUnstructured := target == router.TargetUnstructured || target == router.TargetBoth
	runStructured := target == router.TargetStructured || target == router.TargetBoth

	// Unstructured first: branch order decides the unscored merge order.
	var branches []evidence.Branch
	var wg sync.WaitGroup

	run := func(br *evidence.Branch, fn func(context.Context) ([]evidence.Item, error)) {
		defer wg.Done()
		branchCtx := ctx
		if o.retrievalTimeout > 0 {
			var cancel context.CancelFunc
			branchCtx, cancel = context.WithTimeout(ctx, o.retrievalTimeout)
			defer cancel()
		}
		br.Items, br.Err = fn(branchCtx)
	}

	if runUnstructured {
		branches = append(branches, evidence.Branch{Source: retrieval.SourceUnstructured})
	}
	if runStructured {
		branches = append(branches, evidence.Branch{Source: retrieval.SourceStructured})
	}

	for i := range branches {
		br := &branches[i]
		wg.Add(1)
		switch br.Source {
		case retrieval.SourceUnstructured:
			go run(br, func(ctx context.Context) ([]evidence.Item, error) {
				return o.unstructured.Retrieve(ctx, q.Text, o.topK, q.Filters)
			})
		case retrieval.SourceStructured:
			go run(br, func(ctx context.Context) ([]evidence.Item, error) {
				return o.structured.Retrieve(ctx, q.Text)
			})
		}
	}
	wg.Wait()

	return branches
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID string) []session.Turn {
	if o.memory == nil || sessionID == "" {
		return nil
	}
	turns, err := o.memory.Recent(ctx, sessionID, maxHistoryTurns)
	if err != nil {
		// Continuity is best-effort.
		o.logger.Warn("loading session history failed", "session", sessionID, "error", err)
		return nil
	}
	return turns
}

func (o *Orchestrator) recordTurn(ctx context.Context, q Query, decision router.Decision, a Answer) {
	if o.memory == nil || q.SessionID == "" {
		return
	}
	cited := make([]string, len(a.Citations))
	for i, c := range a.Citations {
		cited[i] = c.Marker
	}
	turn := session.Turn{
		Query:  q.Text,
		Target: decision.Target,
		Answer: a.Text,
		Cited:  cited,
		At:     time.Now(),
	}
	if err := o.memory.Append(ctx, q.SessionID, turn); err != nil {
		o.logger.Warn("recording turn failed", "session", q.SessionID, "error", err)
	}
}

func exchanges(turns []session.Turn) []compose.Exchange {
	if len(turns) == 0 {
		return nil
	}
	out := make([]compose.Exchange, len(turns))
	for i, t := range turns {
		out[i] = compose.Exchange{Question: t.Query, Answer: t.Answer}
	}
	return out
}
