package pgstate

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Storage — self-hosted альтернатива Firebase: те же path -> JSON записи,
// merge реализован через jsonb ||.
type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &Storage{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Storage) Read(ctx context.Context, path string) (json.RawMessage, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv_state WHERE path = $1`, path).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select kv_state")
	}
	return value, true, nil
}

func (s *Storage) Write(ctx context.Context, path string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal value")
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO kv_state (path, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (path)
DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`, path, b)
	return errors.Wrap(err, "write kv_state")
}

func (s *Storage) Patch(ctx context.Context, path string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal value")
	}
	// Merge верхнего уровня, как PATCH у Firebase.
	_, err = s.db.Exec(ctx, `
INSERT INTO kv_state (path, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (path)
DO UPDATE SET value = kv_state.value || EXCLUDED.value, updated_at = now()
`, path, b)
	return errors.Wrap(err, "patch kv_state")
}
