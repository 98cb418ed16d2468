// Package catalog exposes the service catalog the order core consumes.
// The catalog itself (listing, search, moderation) is owned elsewhere; the
// core only needs price and designated-provider lookups.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/money"
)

// Service is a catalog entry a customer can request work against.
type Service struct {
	ID          uuid.UUID   `json:"id"`
	ProviderID  *uuid.UUID  `json:"provider_id,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	City        string      `json:"city,omitempty"`
	Price       money.Cents `json:"price"`
	Active      bool        `json:"active"`
}

// Lookup resolves services by id.
type Lookup interface {
	GetService(ctx context.Context, id uuid.UUID) (Service, error)
}

// PgLookup reads the services table.
type PgLookup struct {
	pool *pgxpool.Pool
}

func NewPgLookup(pool *pgxpool.Pool) *PgLookup {
	return &PgLookup{pool: pool}
}

func (l *PgLookup) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	var s Service
	err := l.pool.QueryRow(ctx, `
		SELECT id, provider_id, title, description, city, price_cents, is_active
		FROM services WHERE id = $1 AND NOT is_deleted`,
		id,
	).Scan(&s.ID, &s.ProviderID, &s.Title, &s.Description, &s.City, &s.Price, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, fault.NotFoundf("service %s not found", id)
	}
	if err != nil {
		return Service{}, err
	}
	return s, nil
}
