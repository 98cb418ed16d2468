package billing

import (
	"context"

	"github.com/google/uuid"
)

// InvoiceListFilter scopes ListInvoices. Nil fields are not applied.
type InvoiceListFilter struct {
	CustomerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     *InvoiceStatus
	Limit      int
	Offset     int
}

// InvoiceStore persists invoices. Create fails with fault.Invariant when the
// order already has an invoice; MarkPaid is a conditional update that fails
// with fault.StateConflict when the invoice is already paid.
type InvoiceStore interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id uuid.UUID) (Invoice, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, error)
	// DeleteByOrder removes the order's invoice if one exists. Reports
	// whether a row was deleted.
	DeleteByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, method PaymentMethod) (Invoice, error)
	List(ctx context.Context, f InvoiceListFilter) ([]Invoice, error)
}

// EarningsStore persists provider earnings. Create fails with fault.Invariant
// when the invoice already has an earnings row.
type EarningsStore interface {
	Create(ctx context.Context, e *WorkerEarnings) error
	GetByInvoice(ctx context.Context, invoiceID uuid.UUID) (WorkerEarnings, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]WorkerEarnings, error)
}
