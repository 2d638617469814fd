// Package compose builds the generation prompt from the user query, the
// aggregated evidence and the citation policy. Composition is pure: the
// same query, history and bundle always produce the same prompt text.
package compose

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ragline/ragline/internal/evidence"
)

// systemInstructions open every prompt.
const systemInstructions = `You are a careful assistant that answers questions using only the evidence provided below. Be concise and factual. If the evidence does not support an answer, say so.`

// citationInstructions are appended only when tagged evidence exists.
const citationInstructions = `Every factual claim in your answer must be followed by one or more citation markers referencing the evidence ids above, e.g. [e0] or [e0, e2]. Cite only ids that appear in the evidence list. Do not invent ids.`

// ungroundedInstructions replace the citation policy when no evidence
// survived retrieval.
const ungroundedInstructions = `No supporting evidence was retrieved for this question. Answer from general knowledge if you can, and state clearly that the answer is not grounded in the document corpus.`

// Exchange is one prior question/answer pair included for conversational
// continuity.
type Exchange struct {
	Question string
	Answer   string
}

// Prompt is the composed generation request. Immutable once built and
// consumed exactly once by the generation client.
type Prompt struct {
	Text string

	// Grounded is false when the prompt carries no evidence and the answer
	// must be caveated accordingly.
	Grounded bool

	// EvidenceIDs are the ids tagged into the prompt, in order. The citation
	// extractor validates markers against exactly this set.
	EvidenceIDs []string
}

// Composer renders prompts under a token budget for the evidence section.
type Composer struct {
	count  func(string) int
	budget int
}

// New creates a Composer. budget caps the token count of the evidence
// section; zero disables budgeting. The cl100k_base encoding is a close
// enough proxy for the models in use.
func New(budget int) (*Composer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading token encoding: %w", err)
	}
	count := func(s string) int { return len(enc.Encode(s, nil, nil)) }
	return &Composer{count: count, budget: budget}, nil
}

// Compose builds the prompt in fixed order: system instructions, prior
// exchanges, the user query verbatim, the evidence items each tagged with
// their id, and the citation policy. When the bundle is empty the citation
// instruction is omitted and the prompt signals an ungrounded answer.
//
// Evidence that would exceed the token budget is dropped from the tail;
// the first item is always kept so a grounded request never silently
// becomes ungrounded.
func (c *Composer) Compose(query string, history []Exchange, bundle evidence.Bundle) Prompt {
	var sb strings.Builder
	sb.WriteString(systemInstructions)
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, ex := range history {
			fmt.Fprintf(&sb, "User: %s\nAssistant: %s\n", ex.Question, ex.Answer)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n\n", query)

	included := c.fit(bundle.Items)
	ids := make([]string, 0, len(included))

	if len(included) > 0 {
		sb.WriteString("Evidence:\n")
		for _, it := range included {
			fmt.Fprintf(&sb, "[%s] (%s) %s\n", it.ID, it.SourceType, it.Content)
			ids = append(ids, it.ID)
		}
		sb.WriteString("\n")
		sb.WriteString(citationInstructions)
		return Prompt{Text: sb.String(), Grounded: true, EvidenceIDs: ids}
	}

	sb.WriteString(ungroundedInstructions)
	return Prompt{Text: sb.String(), Grounded: false, EvidenceIDs: nil}
}

// fit returns the longest prefix of items whose cumulative token count
// stays within the budget. At least one item survives when any exist.
func (c *Composer) fit(items []evidence.Item) []evidence.Item {
	if c.budget <= 0 || len(items) == 0 {
		return items
	}
	total := 0
	for i, it := range items {
		total += c.count(it.Content)
		if total > c.budget && i > 0 {
			return items[:i]
		}
	}
	return items
}
