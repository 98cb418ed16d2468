package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/money"
)

// InvoiceStatus is the stored payment state. Overdue is never stored; it is
// derived from due_at at read time, see EffectiveStatus.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "unpaid"
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"

	// InvoiceOverdue is a derived, display-only status.
	InvoiceOverdue InvoiceStatus = "overdue"
)

type PaymentMethod string

const (
	PayCash     PaymentMethod = "cash"
	PayCard     PaymentMethod = "card"
	PayTransfer PaymentMethod = "bank_transfer"
)

// Invoice is the bill issued to the customer when an order reaches the
// settlement trigger status. At most one invoice exists per order.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	OrderID       uuid.UUID     `json:"order_id"`
	CustomerID    uuid.UUID     `json:"customer_id"`
	ProviderID    uuid.UUID     `json:"provider_id"`
	Amount        money.Cents   `json:"amount"`
	Status        InvoiceStatus `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	IssuedAt      time.Time     `json:"issued_at"`
	DueAt         time.Time     `json:"due_at"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

// EffectiveStatus reports the stored status, or overdue when an unpaid
// invoice is past due.
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if i.Status == InvoiceUnpaid && now.After(i.DueAt) {
		return InvoiceOverdue
	}
	return i.Status
}

// WorkerEarnings is the provider's share of a paid invoice after the platform
// fee. Fee + Net always equals the invoice amount.
type WorkerEarnings struct {
	ID         uuid.UUID   `json:"id"`
	InvoiceID  uuid.UUID   `json:"invoice_id"`
	OrderID    uuid.UUID   `json:"order_id"`
	ProviderID uuid.UUID   `json:"provider_id"`
	Gross      money.Cents `json:"gross"`
	Fee        money.Cents `json:"fee"`
	Net        money.Cents `json:"net"`
	CreatedAt  time.Time   `json:"created_at"`
}

// EventKind distinguishes invoice lifecycle events on the billing bus.
type EventKind string

const (
	EventIssued EventKind = "issued"
	EventPaid   EventKind = "paid"
	EventVoided EventKind = "voided"
)

// Event is published after an invoice is issued, paid, or voided.
type Event struct {
	Kind     EventKind
	Invoice  Invoice
	Previous InvoiceStatus
}
