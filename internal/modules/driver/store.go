// README: Driver roster store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towline/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const driverColumns = `id, name, phone, rating, approved, online, created_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE id = $1`, string(id),
	)
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListApproved returns the dispatchable roster ranked by rating descending.
func (s *Store) ListApproved(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE approved
		ORDER BY rating DESC, name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	if err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Rating, &d.Approved, &d.Online, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
