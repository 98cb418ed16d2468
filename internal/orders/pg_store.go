package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidmahub/khidmahub/internal/fault"
)

// PgStore persists orders in Postgres. Every transition is a conditional
// UPDATE guarded by the expected current status; the affected-row count is the
// race detector.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const orderColumns = `id, customer_id, provider_id, service_id, description,
	offered_price_cents, location_lat, location_lng, location_address,
	scheduled_at, due_at, status, decline_reason, is_deleted, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o        Order
		lat, lng *float64
		addr     *string
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.ProviderID, &o.ServiceID, &o.Description,
		&o.OfferedPrice, &lat, &lng, &addr,
		&o.ScheduledAt, &o.DueAt, &o.Status, &o.DeclineReason, &o.Deleted,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	if lat != nil && lng != nil {
		loc := Location{Lat: *lat, Lng: *lng}
		if addr != nil {
			loc.Address = *addr
		}
		o.Location = &loc
	}
	return o, nil
}

func locationFields(o *Order) (lat, lng *float64, addr *string) {
	if o.Location == nil {
		return nil, nil, nil
	}
	return &o.Location.Lat, &o.Location.Lng, &o.Location.Address
}

func (s *PgStore) CreateOrder(ctx context.Context, o *Order) error {
	lat, lng, addr := locationFields(o)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orders (id, customer_id, provider_id, service_id, description,
			offered_price_cents, location_lat, location_lng, location_address,
			scheduled_at, due_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		o.ID, o.CustomerID, o.ProviderID, o.ServiceID, o.Description,
		o.OfferedPrice, lat, lng, addr,
		o.ScheduledAt, o.DueAt, o.Status, o.CreatedAt,
	)
	return err
}

func (s *PgStore) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fault.NotFoundf("order %s not found", id)
	}
	return o, err
}

func (s *PgStore) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE NOT is_deleted`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if f.CustomerID != nil {
		query += ` AND customer_id = ` + arg(*f.CustomerID)
	}
	if f.VisibleToProvider != nil {
		query += ` AND (provider_id = ` + arg(*f.VisibleToProvider) + ` OR (provider_id IS NULL AND status = 'pending'))`
	}
	if f.Status != nil {
		query += ` AND status = ` + arg(*f.Status)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += ` OFFSET ` + arg(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PgStore) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, patch TransitionPatch) (Order, error) {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET
			status = $2,
			provider_id = COALESCE($3, provider_id),
			offered_price_cents = COALESCE($4, offered_price_cents),
			decline_reason = COALESCE($5, decline_reason),
			updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted AND status = ANY($6)
			AND ($7::uuid IS NULL OR provider_id IS NULL OR provider_id = $7)
		RETURNING `+orderColumns,
		id, to, patch.ProviderID, patch.OfferedPrice, patch.DeclineReason,
		fromStr, patch.GuardProvider,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, s.classifyTransitionMiss(ctx, id, patch)
	}
	return o, err
}

// classifyTransitionMiss distinguishes the reasons a conditional update
// matched no row: missing/deleted order, an order already bound to another
// provider, or a plain status conflict (including a lost race).
func (s *PgStore) classifyTransitionMiss(ctx context.Context, id uuid.UUID, patch TransitionPatch) error {
	cur, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if cur.Deleted {
		return fault.NotFoundf("order %s not found", id)
	}
	if patch.GuardProvider != nil && cur.ProviderID != nil && *cur.ProviderID != *patch.GuardProvider {
		return fault.AlreadyAssignedf("order %s is already assigned to another provider", id)
	}
	return fault.StateConflictf("order %s is %s", id, cur.Status)
}

func (s *PgStore) SoftDeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFoundf("order %s not found", id)
	}
	return nil
}

func (s *PgStore) CreateOffer(ctx context.Context, of *Offer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO offers (id, order_id, provider_id, proposed_price_cents, accepted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		of.ID, of.OrderID, of.ProviderID, of.ProposedPrice, of.Accepted, of.CreatedAt,
	)
	return err
}

func (s *PgStore) GetOffer(ctx context.Context, id uuid.UUID) (Offer, error) {
	var of Offer
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_id, provider_id, proposed_price_cents, accepted, created_at
		FROM offers WHERE id = $1`, id,
	).Scan(&of.ID, &of.OrderID, &of.ProviderID, &of.ProposedPrice, &of.Accepted, &of.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Offer{}, fault.NotFoundf("offer %s not found", id)
	}
	return of, err
}

func (s *PgStore) ListOffers(ctx context.Context, orderID uuid.UUID) ([]Offer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, provider_id, proposed_price_cents, accepted, created_at
		FROM offers WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var of Offer
		if err := rows.Scan(&of.ID, &of.OrderID, &of.ProviderID, &of.ProposedPrice, &of.Accepted, &of.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, of)
	}
	return out, rows.Err()
}

func (s *PgStore) HasOffer(ctx context.Context, orderID, providerID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM offers WHERE order_id = $1 AND provider_id = $2)`,
		orderID, providerID,
	).Scan(&exists)
	return exists, err
}

func (s *PgStore) AcceptOffer(ctx context.Context, offer Offer, exclusive bool) (Order, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE orders SET
			status = $2,
			provider_id = $3,
			offered_price_cents = $4,
			updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted AND status = $5
			AND (provider_id IS NULL OR provider_id = $3)
		RETURNING `+orderColumns,
		offer.OrderID, StatusAccepted, offer.ProviderID, offer.ProposedPrice, StatusPending,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, s.classifyTransitionMiss(ctx, offer.OrderID, TransitionPatch{GuardProvider: &offer.ProviderID})
	}
	if err != nil {
		return Order{}, err
	}

	if exclusive {
		if _, err := tx.Exec(ctx,
			`UPDATE offers SET accepted = FALSE WHERE order_id = $1 AND id <> $2 AND accepted`,
			offer.OrderID, offer.ID); err != nil {
			return Order{}, err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE offers SET accepted = TRUE WHERE id = $1`, offer.ID); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *PgStore) CreateNegotiation(ctx context.Context, n *Negotiation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO negotiations (id, order_id, sender_id, message, proposed_price_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.OrderID, n.SenderID, n.Message, n.ProposedPrice, n.CreatedAt,
	)
	return err
}

func (s *PgStore) ListNegotiations(ctx context.Context, orderID uuid.UUID) ([]Negotiation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, sender_id, message, proposed_price_cents, created_at
		FROM negotiations WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Negotiation
	for rows.Next() {
		var n Negotiation
		if err := rows.Scan(&n.ID, &n.OrderID, &n.SenderID, &n.Message, &n.ProposedPrice, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ Store = (*PgStore)(nil)
