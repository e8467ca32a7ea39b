package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS settlement_journal (
	intent_id   TEXT PRIMARY KEY,
	match_id    TEXT NOT NULL DEFAULT '',
	user_addr   TEXT NOT NULL,
	token_in    TEXT NOT NULL,
	token_out   TEXT NOT NULL,
	amount_in   TEXT NOT NULL,
	status      TEXT NOT NULL,
	tx_hash     TEXT NOT NULL DEFAULT '',
	amount_out  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	settled_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store writes journal entries to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and creates the journal table if needed.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("journal database url is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create settlement_journal: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Record upserts entries keyed by intent id.
func (s *Store) Record(ctx context.Context, entries []journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO settlement_journal (
				intent_id, match_id, user_addr, token_in, token_out, amount_in,
				status, tx_hash, amount_out, error, settled_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (intent_id)
			DO UPDATE SET
				status = EXCLUDED.status,
				tx_hash = EXCLUDED.tx_hash,
				amount_out = EXCLUDED.amount_out,
				error = EXCLUDED.error,
				settled_at = EXCLUDED.settled_at
		`,
			e.IntentID,
			e.MatchID,
			e.User,
			e.TokenIn,
			e.TokenOut,
			e.AmountIn,
			e.Status,
			e.TxHash,
			e.AmountOut,
			e.Error,
			e.SettledAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range entries {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

var _ journal.Journal = (*Store)(nil)
