package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/log"
)

// maxResultRows caps the rendered row-set so a broad generated query cannot
// blow up the prompt.
const maxResultRows = 50

// SQLGenerator translates a natural-language question into a single SQL
// query against the structured corpus. The model-backed implementation is
// ModelSQLGenerator; tests substitute a fixed stub.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
}

// RowQuerier executes a read-only query and returns column names plus
// stringified row values. The production implementation is PgRowQuerier.
type RowQuerier interface {
	QueryRows(ctx context.Context, sql string) (cols []string, rows [][]string, err error)
}

// Structured is the knowledge source adapter for the relational corpus.
// It generates SQL from the question, guards it to a single SELECT,
// executes it and renders the result as one row-set evidence item whose
// provenance carries the generated query text for audit.
type Structured struct {
	generator SQLGenerator
	querier   RowQuerier
	logger    log.Logger
}

// NewStructured creates the structured adapter.
func NewStructured(generator SQLGenerator, querier RowQuerier, logger log.Logger) *Structured {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Structured{generator: generator, querier: querier, logger: logger}
}

// Retrieve answers the question against the structured corpus. A query that
// matches no rows yields an empty result, not an error. SQL that fails the
// read-only guard raises ErrRejectedQuery; backend failures raise
// ErrUnavailable.
func (s *Structured) Retrieve(ctx context.Context, question string) ([]evidence.Item, error) {
	query, err := s.generator.GenerateSQL(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: generating sql: %v", ErrUnavailable, err)
	}

	query, err = sanitizeSQL(query)
	if err != nil {
		return nil, err
	}

	cols, rows, err := s.querier.QueryRows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: executing query: %v", ErrUnavailable, err)
	}

	s.logger.Debug("structured retrieval", "rows", len(rows), "sql", query)

	if len(rows) == 0 {
		return nil, nil
	}

	item := evidence.Item{
		SourceType: evidence.SourceRowSet,
		Content:    renderRows(cols, rows),
		Provenance: evidence.Provenance{
			SQL:    query,
			Tables: referencedTables(query),
		},
	}
	return []evidence.Item{item}, nil
}

// writeKeywords are rejected anywhere in the generated statement.
var writeKeywords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|grant|revoke|truncate|copy)\b`)

// sanitizeSQL enforces the read-only guard: exactly one statement starting
// with SELECT or WITH and free of write keywords. Returns the trimmed
// statement or ErrRejectedQuery.
func sanitizeSQL(query string) (string, error) {
	q := strings.TrimSpace(query)
	// Models often wrap SQL in markdown fences.
	q = strings.TrimPrefix(q, "```sql")
	q = strings.TrimPrefix(q, "```")
	q = strings.TrimSuffix(q, "```")
	q = strings.TrimSpace(q)
	q = strings.TrimSuffix(q, ";")

	if q == "" {
		return "", fmt.Errorf("%w: empty statement", ErrRejectedQuery)
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrRejectedQuery)
	}

	lower := strings.ToLower(q)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return "", fmt.Errorf("%w: not a select statement", ErrRejectedQuery)
	}
	if writeKeywords.MatchString(q) {
		return "", fmt.Errorf("%w: write keyword present", ErrRejectedQuery)
	}
	return q, nil
}

// tablePattern extracts identifiers following FROM and JOIN, for provenance.
var tablePattern = regexp.MustCompile(`(?i)\b(?:from|join)\s+([a-zA-Z_][a-zA-Z0-9_.]*)`)

func referencedTables(query string) []string {
	var tables []string
	seen := make(map[string]struct{})
	for _, m := range tablePattern.FindAllStringSubmatch(query, -1) {
		name := strings.ToLower(m[1])
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// renderRows formats the result as a compact pipe-separated table, capped
// at maxResultRows with a truncation note.
func renderRows(cols []string, rows [][]string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(cols, " | "))
	sb.WriteByte('\n')

	n := len(rows)
	if n > maxResultRows {
		n = maxResultRows
	}
	for _, row := range rows[:n] {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	if len(rows) > maxResultRows {
		fmt.Fprintf(&sb, "(%d more rows omitted)\n", len(rows)-maxResultRows)
	}
	return sb.String()
}

// sqlPrompt instructs the model to emit bare SQL for the known schema.
const sqlPrompt = `You translate questions into a single PostgreSQL SELECT statement.

Schema:
%s

Rules:
- Output only the SQL statement, no commentary, no markdown fences.
- Read-only: SELECT (optionally WITH) statements only.
- Limit results to at most 50 rows unless the question implies an aggregate.

Question: %s`

// ModelSQLGenerator generates SQL with the configured LLM. The corpus
// schema is injected into every prompt so the model only references real
// tables.
type ModelSQLGenerator struct {
	genkit    *genkit.Genkit
	modelName string
	schema    string
}

// NewModelSQLGenerator creates a generator for the given model and schema
// description.
func NewModelSQLGenerator(g *genkit.Genkit, modelName, schema string) *ModelSQLGenerator {
	return &ModelSQLGenerator{genkit: g, modelName: modelName, schema: schema}
}

// GenerateSQL produces the candidate statement. The caller sanitizes it.
func (m *ModelSQLGenerator) GenerateSQL(ctx context.Context, question string) (string, error) {
	resp, err := genkit.Generate(ctx, m.genkit,
		ai.WithModelName(m.modelName),
		ai.WithPrompt(fmt.Sprintf(sqlPrompt, m.schema, question)),
	)
	if err != nil {
		return "", fmt.Errorf("sql generation: %w", err)
	}
	return resp.Text(), nil
}

// PgRowQuerier executes generated queries against the structured corpus in
// a read-only transaction, as a second guard behind sanitizeSQL.
type PgRowQuerier struct {
	pool *pgxpool.Pool
}

// NewPgRowQuerier creates a querier over the given pool.
func NewPgRowQuerier(pool *pgxpool.Pool) *PgRowQuerier {
	return &PgRowQuerier{pool: pool}
}

// QueryRows runs the statement and stringifies every value.
func (q *PgRowQuerier) QueryRows(ctx context.Context, sql string) ([]string, [][]string, error) {
	tx, err := q.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("beginning read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
				continue
			}
			row[i] = fmt.Sprintf("%v", v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating rows: %w", err)
	}
	return cols, out, nil
}
