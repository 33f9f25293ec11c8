// README: Settings store backed by PostgreSQL.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.Query(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var st Setting
		var value []byte
		if err := rows.Scan(&st.Key, &value, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.Value = value
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, key string, value json.RawMessage) (Setting, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, []byte(value), now,
	)
	if err != nil {
		return Setting{}, err
	}
	return Setting{Key: key, Value: value, UpdatedAt: now}, nil
}
