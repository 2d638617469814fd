// Package evidence defines the normalized evidence model shared by the
// retrieval adapters, the aggregator, the prompt composer and the citation
// extractor.
//
// An EvidenceItem is the unit of grounding: a chunk of a source document or
// a rendered row-set from the structured corpus, with provenance sufficient
// to resolve a citation back to a retrievable document later. Items carry
// prompt-unique ids ("e0", "e1", ...) assigned by the Aggregator; ids are
// stable within one response, never globally.
package evidence

import "fmt"

// SourceType identifies which kind of knowledge source produced an item.
type SourceType string

const (
	// SourceChunk is a text chunk from the unstructured document corpus.
	SourceChunk SourceType = "chunk"

	// SourceRowSet is a rendered tabular result from the structured corpus.
	SourceRowSet SourceType = "row-set"
)

// Provenance identifies where an EvidenceItem came from. Exactly one of the
// two field groups is populated depending on the source type.
//
// The Document Resolver requires DocumentID and Location for chunk
// provenance; it fails explicitly for row-set provenance or missing fields
// rather than fabricating a URL.
type Provenance struct {
	// Chunk provenance
	DocumentID string `json:"documentId,omitempty"` // source document identifier
	Collection string `json:"collection,omitempty"` // corpus collection name
	Location   string `json:"location,omitempty"`   // object key in the document store
	Offset     int    `json:"offset,omitempty"`     // chunk index within the document

	// Row-set provenance
	SQL    string   `json:"sql,omitempty"`    // generated query text, kept for audit
	Tables []string `json:"tables,omitempty"` // tables referenced by the query
}

// Key returns a deduplication key. Two items with the same key describe the
// same underlying source and only the higher-ranked one is kept.
func (p Provenance) Key() string {
	if p.SQL != "" {
		return "sql:" + p.SQL
	}
	return fmt.Sprintf("doc:%s/%s/%s#%d", p.Collection, p.DocumentID, p.Location, p.Offset)
}

// IsChunk reports whether the provenance points at a document chunk.
func (p Provenance) IsChunk() bool {
	return p.SQL == "" && (p.DocumentID != "" || p.Location != "")
}

// Item is a single piece of retrieval evidence eligible for citation.
type Item struct {
	ID         string     `json:"id"` // prompt-unique id, assigned by the Aggregator
	SourceType SourceType `json:"sourceType"`
	Content    string     `json:"content"`
	Score      float64    `json:"score,omitempty"` // normalized relevance, valid when HasScore
	HasScore   bool       `json:"-"`
	Provenance Provenance `json:"provenance"`
}

// Summary returns a short caller-facing description of the item, used in
// citation lists without exposing full content.
func (it Item) Summary() string {
	const maxRunes = 120
	runes := []rune(it.Content)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "…"
	}
	return it.Content
}
