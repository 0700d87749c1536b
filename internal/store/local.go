package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/playperu/storyline/internal/storyline"
)

// Local is the device store: one libSQL database per device holding JSONB
// documents in the kv table.
type Local struct {
	db *sql.DB
}

var _ Store = (*Local)(nil)

// NewLocal wraps a migrated device database.
func NewLocal(db *sql.DB) *Local {
	return &Local{db: db}
}

func (s *Local) Read(ctx context.Context, key Key) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM kv WHERE key = ?`, string(key),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, localErr("reading "+string(key), err)
	}
	return []byte(data), true, nil
}

const (
	upsertKVQuery = `INSERT INTO kv (key, data, updated_at) VALUES (?, jsonb(?), strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
	deleteKVQuery = `DELETE FROM kv WHERE key = ?`
)

func (s *Local) Write(ctx context.Context, key Key, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertKVQuery, string(key), string(value)); err != nil {
		return localErr("writing "+string(key), err)
	}
	return nil
}

func (s *Local) WriteAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return localErr("beginning write", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if e.Value == nil {
			_, err = tx.ExecContext(ctx, deleteKVQuery, string(e.Key))
		} else {
			_, err = tx.ExecContext(ctx, upsertKVQuery, string(e.Key), string(e.Value))
		}
		if err != nil {
			return localErr("writing "+string(e.Key), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return localErr("committing write", err)
	}
	return nil
}

func (s *Local) RemoveAll(ctx context.Context, keys []Key) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return localErr("beginning remove", err)
	}
	defer tx.Rollback()

	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, deleteKVQuery, string(k)); err != nil {
			return localErr("removing "+string(k), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return localErr("committing remove", err)
	}
	return nil
}

// Keys lists the keys currently present, for export and diagnostics.
func (s *Local) Keys(ctx context.Context) ([]Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, localErr("listing keys", err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, localErr("scanning key", err)
		}
		keys = append(keys, Key(k))
	}
	return keys, rows.Err()
}

// Ping reports whether the device database is reachable.
func (s *Local) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// A denied or broken device database is surfaced like an unreachable remote:
// the caller gets a retryable error and nothing falls back.
func localErr(op string, err error) error {
	return storyline.Wrap(storyline.CodeRemoteUnavailable, fmt.Sprintf("local store: %s", op), err)
}
