package history

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations to databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("history: init migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("history: migrate up: %w", err)
	}
	return nil
}

func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, scheme) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, scheme)
		}
	}
	return databaseURL
}

// PGStore stores purchase history in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertRecord = `
INSERT INTO purchase_history (id, user_email, bundle_id, title, network, phone, status, price, cost, prepaid, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO NOTHING`

const selectByEmail = `
SELECT id, user_email, bundle_id, title, network, phone, status, price, cost, prepaid, created_at
FROM purchase_history
WHERE user_email = $1
ORDER BY created_at DESC
LIMIT $2`

func (s *PGStore) Record(ctx context.Context, rec Record) (bool, error) {
	rec, err := rec.normalized()
	if err != nil {
		return false, err
	}
	tag, err := s.Pool.Exec(ctx, insertRecord,
		rec.ID, rec.UserEmail, rec.BundleID, rec.Title, rec.Network, rec.Phone,
		rec.Status, rec.Price, rec.Cost, rec.Prepaid, rec.Date)
	if err != nil {
		return false, fmt.Errorf("history: insert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ListByEmail(ctx context.Context, email string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, selectByEmail, strings.ToLower(strings.TrimSpace(email)), limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var (
			rec   Record
			price decimal.Decimal
			cost  decimal.NullDecimal
		)
		err := row.Scan(&rec.ID, &rec.UserEmail, &rec.BundleID, &rec.Title, &rec.Network, &rec.Phone,
			&rec.Status, &price, &cost, &rec.Prepaid, &rec.Date)
		rec.Price = price
		rec.Cost = cost
		return rec, err
	})
}
