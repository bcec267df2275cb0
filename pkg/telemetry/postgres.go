package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS llm_traces (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	input      TEXT NOT NULL DEFAULT '',
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_generations (
	id         TEXT PRIMARY KEY,
	trace_id   TEXT NOT NULL REFERENCES llm_traces(id),
	name       TEXT NOT NULL,
	model      TEXT NOT NULL,
	input      TEXT NOT NULL,
	output     TEXT,
	error      TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS llm_scores (
	id           TEXT PRIMARY KEY,
	trace_id     TEXT NOT NULL REFERENCES llm_traces(id),
	name         TEXT NOT NULL,
	value        DOUBLE PRECISION,
	string_value TEXT,
	comment      TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PostgresRecorder archives traces, generations and scores in Postgres so
// the evaluation tooling can read them without a hosted backend.
type PostgresRecorder struct {
	db  *sql.DB
	psq sq.StatementBuilderType
}

// NewPostgresRecorder opens the database and ensures the schema exists
func NewPostgresRecorder(ctx context.Context, databaseURL string) (*PostgresRecorder, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := newPostgresRecorder(db)
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create telemetry schema: %w", err)
	}
	return r, nil
}

func newPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{
		db:  db,
		psq: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Name returns the backend name
func (r *PostgresRecorder) Name() string {
	return "postgres"
}

// Close closes the database connection
func (r *PostgresRecorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTrace inserts a trace row
func (r *PostgresRecorder) CreateTrace(ctx context.Context, trace Trace) error {
	var metadata []byte
	if len(trace.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(trace.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal trace metadata: %w", err)
		}
	}

	query := r.psq.Insert("llm_traces").
		Columns("id", "name", "input", "metadata", "created_at").
		Values(trace.ID, trace.Name, trace.Input, nullableJSON(metadata), trace.Timestamp).
		Suffix("ON CONFLICT (id) DO NOTHING")
	return r.exec(ctx, query, "trace")
}

// RecordGeneration inserts a generation row
func (r *PostgresRecorder) RecordGeneration(ctx context.Context, gen Generation) error {
	query := r.psq.Insert("llm_generations").
		Columns("id", "trace_id", "name", "model", "input", "output", "error", "started_at", "ended_at").
		Values(gen.ID, gen.TraceID, gen.Name, gen.Model, gen.Input,
			nullableString(gen.Output), nullableString(gen.Error), gen.StartTime, gen.EndTime)
	return r.exec(ctx, query, "generation")
}

// RecordScore inserts a score row
func (r *PostgresRecorder) RecordScore(ctx context.Context, score Score) error {
	var value sql.NullFloat64
	if !score.IsText() {
		value = sql.NullFloat64{Float64: score.Value, Valid: true}
	}
	query := r.psq.Insert("llm_scores").
		Columns("id", "trace_id", "name", "value", "string_value", "comment").
		Values(score.ID, score.TraceID, score.Name, value, nullableString(score.Text), nullableString(score.Comment))
	return r.exec(ctx, query, "score")
}

func (r *PostgresRecorder) exec(ctx context.Context, query sq.InsertBuilder, what string) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build %s insert: %w", what, err)
	}
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("failed to store %s: %w", what, err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
