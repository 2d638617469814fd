//go:build integration

package retrieval

import (
	"context"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/ragline/ragline/internal/testutil"
)

// Run with: go test -tags=integration ./internal/retrieval/...

func vec768(lead float32) []float32 {
	v := make([]float32, 768)
	v[0] = lead
	v[1] = 1 - lead
	return v
}

func TestPgChunkIndex_Search(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	const insertChunk = `
		INSERT INTO chunks (document_id, collection, location, chunk_index, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	seed := []struct {
		docID    string
		content  string
		metadata string
		lead     float32
	}{
		{"fomc-2024-03", "The committee held rates steady.", `{"topic": "rates"}`, 1.0},
		{"fomc-2024-03", "Inflation projections were revised upward.", `{"topic": "inflation"}`, 0.8},
		{"annual-report", "Revenue grew 12 percent year over year.", `{"topic": "revenue"}`, 0.0},
	}
	for i, s := range seed {
		_, err := tdb.Pool.Exec(ctx, insertChunk,
			s.docID, "default", "s3://docs/"+s.docID+".pdf", i, s.content, s.metadata,
			pgvector.NewVector(vec768(s.lead)))
		if err != nil {
			t.Fatalf("inserting chunk: %v", err)
		}
	}

	idx := NewPgChunkIndex(tdb.Pool)

	hits, err := idx.Search(ctx, vec768(0.95), 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].DocumentID != "fomc-2024-03" || hits[0].Content != seed[0].content {
		t.Errorf("top hit = %q %q, want closest chunk first", hits[0].DocumentID, hits[0].Content)
	}
	if hits[0].Similarity <= hits[1].Similarity {
		t.Errorf("hits not ordered by similarity: %v then %v", hits[0].Similarity, hits[1].Similarity)
	}
	if hits[0].Location == "" || hits[0].Collection != "default" {
		t.Errorf("provenance fields not populated: %+v", hits[0])
	}

	filtered, err := idx.Search(ctx, vec768(0.95), 5, Filters{"topic": "revenue"})
	if err != nil {
		t.Fatalf("Search with filters: %v", err)
	}
	if len(filtered) != 1 || filtered[0].DocumentID != "annual-report" {
		t.Errorf("metadata filter not applied: %+v", filtered)
	}
}

func TestPgRowQuerier_QueryRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	stmts := []string{
		`INSERT INTO products (product_id, product_name, product_type, price) VALUES
			('product_890', 'Trail Runner', 'footwear', 129.99),
			('product_123', 'Rain Shell', 'outerwear', 89.50)`,
		`INSERT INTO customers (customer_id, full_name, region) VALUES
			('cust_1', 'Dana Reyes', 'west')`,
		`INSERT INTO reviews (product_id, customer_id, rating, review_text) VALUES
			('product_890', 'cust_1', 5, 'great grip'),
			('product_890', 'cust_1', 4, 'runs small')`,
	}
	for _, s := range stmts {
		if _, err := tdb.Pool.Exec(ctx, s); err != nil {
			t.Fatalf("seeding corpus: %v", err)
		}
	}

	q := NewPgRowQuerier(tdb.Pool)

	cols, rows, err := q.QueryRows(ctx,
		"SELECT product_id, count(*) AS review_count FROM reviews GROUP BY product_id")
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	if len(cols) != 2 || cols[0] != "product_id" || cols[1] != "review_count" {
		t.Errorf("columns = %v", cols)
	}
	if len(rows) != 1 || rows[0][0] != "product_890" || rows[0][1] != "2" {
		t.Errorf("rows = %v", rows)
	}

	// The read-only transaction is the second guard behind statement
	// sanitization; a write must fail even if one slips through.
	if _, _, err := q.QueryRows(ctx,
		"INSERT INTO customers (customer_id, full_name, region) VALUES ('x', 'y', 'z') RETURNING customer_id"); err == nil {
		t.Error("expected write statement to fail in read-only transaction")
	}
}
