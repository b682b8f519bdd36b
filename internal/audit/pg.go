package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS signin_audit (
	id         TEXT PRIMARY KEY,
	ts         TIMESTAMPTZ NOT NULL,
	session_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	subject    TEXT,
	party_id   TEXT,
	detail     TEXT
)`

// PGSink appends events to postgres. Append is best-effort from the
// caller's point of view; the Publisher downgrades failures to a warning.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(ctx context.Context, dsn string) (*PGSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit pg connect: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit pg schema: %w", err)
	}
	return &PGSink{pool: pool}, nil
}

func (s *PGSink) Append(ctx context.Context, e Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO signin_audit (id, ts, session_id, action, subject, party_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Timestamp, e.SessionID, e.Action, e.Subject, e.PartyID, e.Detail,
	)
	return err
}

func (s *PGSink) Close() { s.pool.Close() }
