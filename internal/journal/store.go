package journal

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists journal entries.
type Store interface {
	// InsertBatch writes entries and returns how many rows were inserted.
	InsertBatch(ctx context.Context, entries []Entry) (int, error)
}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore writes entries to a PostgreSQL table.
type PostgresStore struct {
	db    *pgxpool.Pool
	table string // Quoted identifier
}

// NewPostgresStore creates a store writing to table.
func NewPostgresStore(db *pgxpool.Pool, table string) (*PostgresStore, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid journal table name %q", table)
	}
	return &PostgresStore{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}, nil
}

// EnsureSchema creates the journal table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.table+` (
			id          UUID PRIMARY KEY,
			source      TEXT NOT NULL,
			kind        TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// InsertBatch inserts entries using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *PostgresStore) InsertBatch(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO ` + s.table + ` (id, source, kind, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, e.ID, e.Source, e.Kind, e.Payload, e.ReceivedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range entries {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}
