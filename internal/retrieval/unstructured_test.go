package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/ragline/ragline/internal/evidence"
)

// fakeEmbedder returns a fixed vector, or an error.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i := range req.Input {
		embeddings[i] = &ai.Embedding{Embedding: f.vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// fakeIndex records the search request and returns canned hits.
type fakeIndex struct {
	hits    []ChunkHit
	err     error
	gotTopK int
	gotF    Filters
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, topK int, filters Filters) ([]ChunkHit, error) {
	f.gotTopK = topK
	f.gotF = filters
	return f.hits, f.err
}

func TestUnstructured_Retrieve(t *testing.T) {
	idx := &fakeIndex{hits: []ChunkHit{
		{DocumentID: "fomc-1936", Collection: "fomc", Location: "fomc/1936.pdf", ChunkIndex: 3, Content: "minutes text", Similarity: 0.91},
		{DocumentID: "fomc-1940", Collection: "fomc", Location: "fomc/1940.pdf", ChunkIndex: 0, Content: "more minutes", Similarity: 0.84},
	}}
	u := NewUnstructured(&fakeEmbedder{vec: []float32{0.1, 0.2}}, idx, nil)

	items, err := u.Retrieve(context.Background(), "summarize the minutes", 5, Filters{"collection": "fomc"})
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if idx.gotTopK != 5 {
		t.Errorf("topK passed = %d, want 5", idx.gotTopK)
	}
	if idx.gotF["collection"] != "fomc" {
		t.Errorf("filters not passed through: %v", idx.gotF)
	}

	first := items[0]
	if first.SourceType != evidence.SourceChunk {
		t.Errorf("SourceType = %q, want chunk", first.SourceType)
	}
	if !first.HasScore || first.Score != 0.91 {
		t.Errorf("score = (%v, %v), want (0.91, true)", first.Score, first.HasScore)
	}
	p := first.Provenance
	if p.DocumentID != "fomc-1936" || p.Location != "fomc/1936.pdf" || p.Offset != 3 {
		t.Errorf("provenance = %+v", p)
	}
}

func TestUnstructured_EmptyResultIsNotError(t *testing.T) {
	u := NewUnstructured(&fakeEmbedder{vec: []float32{0.1}}, &fakeIndex{}, nil)

	items, err := u.Retrieve(context.Background(), "nothing matches", 5, nil)
	if err != nil {
		t.Fatalf("Retrieve() error: %v, want nil for empty result", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestUnstructured_EmbedderFailureIsUnavailable(t *testing.T) {
	u := NewUnstructured(&fakeEmbedder{err: errors.New("connection refused")}, &fakeIndex{}, nil)

	_, err := u.Retrieve(context.Background(), "query", 5, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestUnstructured_IndexFailureIsUnavailable(t *testing.T) {
	u := NewUnstructured(&fakeEmbedder{vec: []float32{0.1}}, &fakeIndex{err: errors.New("timeout")}, nil)

	_, err := u.Retrieve(context.Background(), "query", 5, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestUnstructured_EmptyEmbeddingIsUnavailable(t *testing.T) {
	u := NewUnstructured(&fakeEmbedder{vec: nil}, &fakeIndex{}, nil)

	_, err := u.Retrieve(context.Background(), "query", 5, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}
