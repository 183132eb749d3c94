package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dverbin/mediavault/internal/common"
	"github.com/dverbin/mediavault/internal/dbx"
)

type SQLiteStore struct {
	db dbx.DBTX
}

func NewSQLiteStore(db dbx.DBTX) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (r *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		if isQuotaError(err) {
			return fmt.Errorf("failed to set state[%s]: %w", key, common.ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to set state[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove state[%s]: %w", key, err)
	}
	return nil
}

// isQuotaError recognizes the sqlite out-of-space condition
// (SQLITE_FULL surfaces as "database or disk is full").
func isQuotaError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database or disk is full")
}
