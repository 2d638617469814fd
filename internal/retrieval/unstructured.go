package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/log"
)

// queryEmbedder is the narrow embedding capability the adapter needs.
// ai.Embedder satisfies it; tests provide a deterministic stub.
type queryEmbedder interface {
	Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error)
}

// ChunkHit is one ranked result from the chunk index.
type ChunkHit struct {
	DocumentID string
	Collection string
	Location   string
	ChunkIndex int
	Content    string
	Similarity float64 // cosine similarity, descending in results
}

// ChunkIndex performs vector similarity search over stored chunks.
// The production implementation is PgChunkIndex; tests use a fake.
type ChunkIndex interface {
	Search(ctx context.Context, vec []float32, topK int, filters Filters) ([]ChunkHit, error)
}

// Unstructured is the knowledge source adapter for the document corpus.
// It embeds the query and runs a ranked similarity search, returning
// chunk evidence with provenance for later citation resolution.
type Unstructured struct {
	embedder queryEmbedder
	index    ChunkIndex
	logger   log.Logger
}

// NewUnstructured creates the unstructured adapter.
func NewUnstructured(embedder queryEmbedder, index ChunkIndex, logger log.Logger) *Unstructured {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Unstructured{embedder: embedder, index: index, logger: logger}
}

// Retrieve returns up to topK chunks ranked by similarity descending.
// Filters are passed through to the index unmodified. An empty result is
// valid; backend failures are reported as ErrUnavailable.
func (u *Unstructured) Retrieve(ctx context.Context, query string, topK int, filters Filters) ([]evidence.Item, error) {
	resp, err := u.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(query)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned", ErrUnavailable)
	}

	vec := resp.Embeddings[0].Embedding
	hits, err := u.index.Search(ctx, vec, topK, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", ErrUnavailable, err)
	}

	items := make([]evidence.Item, len(hits))
	for i, h := range hits {
		items[i] = evidence.Item{
			SourceType: evidence.SourceChunk,
			Content:    h.Content,
			Score:      h.Similarity,
			HasScore:   true,
			Provenance: evidence.Provenance{
				DocumentID: h.DocumentID,
				Collection: h.Collection,
				Location:   h.Location,
				Offset:     h.ChunkIndex,
			},
		}
	}

	u.logger.Debug("unstructured retrieval", "query_len", len(query), "hits", len(items))
	return items, nil
}

// PgChunkIndex is the pgvector-backed chunk index.
//
// Filter metadata is matched with the JSONB containment operator against
// json.Marshal output only, keeping the query fully parameterized.
type PgChunkIndex struct {
	pool *pgxpool.Pool
}

// NewPgChunkIndex creates a chunk index over the given pool.
func NewPgChunkIndex(pool *pgxpool.Pool) *PgChunkIndex {
	return &PgChunkIndex{pool: pool}
}

const searchChunksSQL = `
SELECT document_id, collection, location, chunk_index, content,
       1 - (embedding <=> $1) AS similarity
FROM chunks
WHERE $2::jsonb IS NULL OR metadata @> $2
ORDER BY embedding <=> $1
LIMIT $3`

// Search runs the similarity query. A nil filter map disables filtering.
func (idx *PgChunkIndex) Search(ctx context.Context, vec []float32, topK int, filters Filters) ([]ChunkHit, error) {
	var filterJSON []byte
	if len(filters) > 0 {
		var err error
		filterJSON, err = json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("marshaling filters: %w", err)
		}
	}

	rows, err := idx.pool.Query(ctx, searchChunksSQL, pgvector.NewVector(vec), filterJSON, topK)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []ChunkHit
	for rows.Next() {
		var h ChunkHit
		if err := rows.Scan(&h.DocumentID, &h.Collection, &h.Location, &h.ChunkIndex, &h.Content, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return hits, nil
}
