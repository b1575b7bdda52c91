// Package store durably persists the wallet engine's entire in-memory
// state as a single JSON snapshot row, and reloads it at startup. The
// shard has no other system of record: Postgres here exists purely for
// crash recovery, not for per-transaction querying (that's the journal
// kept in memory and returned straight off walletcore.Engine).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/feltstack/pokerwallet/internal/common/db"
	"github.com/feltstack/pokerwallet/internal/common/logger"
	"github.com/feltstack/pokerwallet/internal/walletcore"
)

// shardRow is the single row id every snapshot is written to. One
// process owns one shard, so there is never more than one row.
const shardRow = "default"

type Store struct {
	db     *db.DB
	logger *logger.Logger
}

func New(database *db.DB, log *logger.Logger) *Store {
	return &Store{db: database, logger: log}
}

// EnsureSchema creates the snapshot table if it does not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallet_state_snapshots (
		shard_id VARCHAR(64) PRIMARY KEY,
		state JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Load reads the last durable snapshot for this shard. A missing row is
// not an error: a fresh shard starts from an empty state (§4.1).
func (s *Store) Load(ctx context.Context) (*walletcore.ServiceState, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM wallet_state_snapshots WHERE shard_id = $1`, shardRow,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		s.logger.Infof("no prior snapshot found for shard %q, starting empty", shardRow)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var state walletcore.ServiceState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &state, nil
}

// Save persists state and the outbox events produced alongside it in
// one transaction: either both land durably or neither does (§4.3, §9).
func (s *Store) Save(ctx context.Context, state *walletcore.ServiceState, saveEvents func(ctx context.Context, tx *sql.Tx) error) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO wallet_state_snapshots (shard_id, state, updated_at)
			VALUES ($1, $2, CURRENT_TIMESTAMP)
			ON CONFLICT (shard_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
		`, shardRow, payload)
		if err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}

		if saveEvents != nil {
			if err := saveEvents(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
}
