package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khidmahub/khidmahub/internal/fault"
)

// uniqueViolation is the Postgres error code raised when an INSERT hits a
// UNIQUE constraint. The settlement engine relies on it for idempotence.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PgInvoiceStore persists invoices in Postgres.
type PgInvoiceStore struct {
	pool *pgxpool.Pool
}

func NewPgInvoiceStore(pool *pgxpool.Pool) *PgInvoiceStore {
	return &PgInvoiceStore{pool: pool}
}

const invoiceColumns = `id, order_id, customer_id, provider_id, amount_cents,
	status, payment_method, issued_at, due_at, paid_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv    Invoice
		method *string
	)
	err := row.Scan(
		&inv.ID, &inv.OrderID, &inv.CustomerID, &inv.ProviderID, &inv.Amount,
		&inv.Status, &method, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	if method != nil {
		inv.PaymentMethod = PaymentMethod(*method)
	}
	return inv, nil
}

func (s *PgInvoiceStore) Create(ctx context.Context, inv *Invoice) error {
	var method *string
	if inv.PaymentMethod != "" {
		m := string(inv.PaymentMethod)
		method = &m
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices (id, order_id, customer_id, provider_id, amount_cents,
			status, payment_method, issued_at, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.OrderID, inv.CustomerID, inv.ProviderID, inv.Amount,
		inv.Status, method, inv.IssuedAt, inv.DueAt,
	)
	if isUniqueViolation(err) {
		return fault.Invariantf("order %s already has an invoice", inv.OrderID)
	}
	return err
}

func (s *PgInvoiceStore) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fault.NotFoundf("invoice %s not found", id)
	}
	return inv, err
}

func (s *PgInvoiceStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fault.NotFoundf("no invoice for order %s", orderID)
	}
	return inv, err
}

func (s *PgInvoiceStore) DeleteByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, bool, error) {
	row := s.pool.QueryRow(ctx,
		`DELETE FROM invoices WHERE order_id = $1 AND status <> 'paid' RETURNING `+invoiceColumns, orderID)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	return inv, true, nil
}

// MarkPaid flips an invoice to paid exactly once. The WHERE clause is the
// guard: a second call matches no row and reports a conflict.
func (s *PgInvoiceStore) MarkPaid(ctx context.Context, id uuid.UUID, method PaymentMethod) (Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE invoices SET status = 'paid', payment_method = $2, paid_at = NOW()
		WHERE id = $1 AND status <> 'paid'
		RETURNING `+invoiceColumns,
		id, string(method),
	)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return Invoice{}, getErr
		}
		return Invoice{}, fault.StateConflictf("invoice %s is already paid", id)
	}
	return inv, err
}

func (s *PgInvoiceStore) List(ctx context.Context, f InvoiceListFilter) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE TRUE`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.CustomerID != nil {
		query += ` AND customer_id = ` + arg(*f.CustomerID)
	}
	if f.ProviderID != nil {
		query += ` AND provider_id = ` + arg(*f.ProviderID)
	}
	if f.Status != nil {
		query += ` AND status = ` + arg(*f.Status)
	}
	query += ` ORDER BY issued_at DESC`
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

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

var _ InvoiceStore = (*PgInvoiceStore)(nil)

// PgEarningsStore persists worker earnings in Postgres.
type PgEarningsStore struct {
	pool *pgxpool.Pool
}

func NewPgEarningsStore(pool *pgxpool.Pool) *PgEarningsStore {
	return &PgEarningsStore{pool: pool}
}

func (s *PgEarningsStore) Create(ctx context.Context, e *WorkerEarnings) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_earnings (id, invoice_id, order_id, provider_id,
			gross_cents, fee_cents, net_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.InvoiceID, e.OrderID, e.ProviderID,
		e.Gross, e.Fee, e.Net, e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fault.Invariantf("invoice %s already has an earnings record", e.InvoiceID)
	}
	return err
}

func (s *PgEarningsStore) GetByInvoice(ctx context.Context, invoiceID uuid.UUID) (WorkerEarnings, error) {
	var e WorkerEarnings
	err := s.pool.QueryRow(ctx, `
		SELECT id, invoice_id, order_id, provider_id, gross_cents, fee_cents, net_cents, created_at
		FROM worker_earnings WHERE invoice_id = $1`, invoiceID,
	).Scan(&e.ID, &e.InvoiceID, &e.OrderID, &e.ProviderID, &e.Gross, &e.Fee, &e.Net, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkerEarnings{}, fault.NotFoundf("no earnings for invoice %s", invoiceID)
	}
	return e, err
}

func (s *PgEarningsStore) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]WorkerEarnings, error) {
	query := `
		SELECT id, invoice_id, order_id, provider_id, gross_cents, fee_cents, net_cents, created_at
		FROM worker_earnings WHERE provider_id = $1 ORDER BY created_at DESC`
	args := []any{providerID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorkerEarnings
	for rows.Next() {
		var e WorkerEarnings
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.OrderID, &e.ProviderID, &e.Gross, &e.Fee, &e.Net, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ EarningsStore = (*PgEarningsStore)(nil)
