package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/events"
	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/identity"
	"github.com/khidmahub/khidmahub/internal/money"
	"github.com/khidmahub/khidmahub/internal/orders"
)

// Engine derives billing state from order lifecycle events. It subscribes to
// the order bus for issuance and voiding, and to its own invoice bus for
// earnings derivation. Every reaction is idempotent: replaying an event
// produces no second invoice and no second earnings row.
type Engine struct {
	invoices InvoiceStore
	earnings EarningsStore
	catalog  catalog.Lookup
	bus      *events.Bus[Event]
	log      *zap.Logger

	// trigger is the order status whose reach issues the invoice.
	trigger orders.Status
	dueDays int
}

func NewEngine(invoices InvoiceStore, earnings EarningsStore, cat catalog.Lookup,
	bus *events.Bus[Event], log *zap.Logger, trigger orders.Status, dueDays int) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if trigger == "" {
		trigger = orders.StatusApprovedCompleted
	}
	if dueDays <= 0 {
		dueDays = 7
	}
	return &Engine{
		invoices: invoices,
		earnings: earnings,
		catalog:  cat,
		bus:      bus,
		log:      log,
		trigger:  trigger,
		dueDays:  dueDays,
	}
}

// HandleOrderEvent reacts to a committed order transition. Reaching the
// trigger status issues the invoice; cancellation or decline voids an unpaid
// one.
func (e *Engine) HandleOrderEvent(ctx context.Context, ev orders.Event) error {
	o := ev.Order
	switch {
	case o.Status == e.trigger:
		return e.issueInvoice(ctx, o)
	case o.Status == orders.StatusCancelled || o.Status == orders.StatusDeclined:
		return e.voidInvoice(ctx, o)
	}
	return nil
}

func (e *Engine) issueInvoice(ctx context.Context, o orders.Order) error {
	if o.ProviderID == nil {
		e.log.Warn("order reached settlement trigger without a bound provider",
			zap.String("order_id", o.ID.String()))
		return nil
	}
	amount, err := e.invoiceAmount(ctx, o)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	inv := Invoice{
		ID:         uuid.New(),
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		ProviderID: *o.ProviderID,
		Amount:     amount,
		Status:     InvoiceUnpaid,
		IssuedAt:   now,
		DueAt:      now.AddDate(0, 0, e.dueDays),
	}
	if err := e.invoices.Create(ctx, &inv); err != nil {
		if fault.IsInvariant(err) {
			// Replayed trigger; the invoice already exists.
			return nil
		}
		return err
	}
	e.log.Info("invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("order_id", o.ID.String()),
		zap.String("amount", inv.Amount.String()))
	e.publish(ctx, Event{Kind: EventIssued, Invoice: inv})
	return nil
}

// invoiceAmount is the order's agreed price, falling back to the catalog
// price when the order never carried one.
func (e *Engine) invoiceAmount(ctx context.Context, o orders.Order) (money.Cents, error) {
	if o.OfferedPrice != nil && *o.OfferedPrice > 0 {
		return *o.OfferedPrice, nil
	}
	svc, err := e.catalog.GetService(ctx, o.ServiceID)
	if err != nil {
		return 0, err
	}
	if svc.Price < 1 {
		return 0, fault.Invariantf("service %s has no billable price", o.ServiceID)
	}
	return svc.Price, nil
}

func (e *Engine) voidInvoice(ctx context.Context, o orders.Order) error {
	inv, deleted, err := e.invoices.DeleteByOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	e.log.Info("invoice voided",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("order_id", o.ID.String()))
	e.publish(ctx, Event{Kind: EventVoided, Invoice: inv, Previous: inv.Status})
	return nil
}

// MarkInvoicePaid settles an invoice. Admin-only: payment collection happens
// off-platform and an operator records it.
func (e *Engine) MarkInvoicePaid(ctx context.Context, actor identity.Actor, invoiceID uuid.UUID, method PaymentMethod) (Invoice, error) {
	if !actor.Is(identity.RoleAdmin) {
		return Invoice{}, fault.PermissionDeniedf("only admins can record payments")
	}
	switch method {
	case PayCash, PayCard, PayTransfer:
	default:
		return Invoice{}, fault.Validationf("unknown payment method %q", method)
	}
	inv, err := e.invoices.MarkPaid(ctx, invoiceID, method)
	if err != nil {
		return Invoice{}, err
	}
	e.log.Info("invoice paid",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("method", string(method)))
	e.publish(ctx, Event{Kind: EventPaid, Invoice: inv, Previous: InvoiceUnpaid})
	return inv, nil
}

// HandleInvoiceEvent derives the provider's earnings when an invoice is paid.
func (e *Engine) HandleInvoiceEvent(ctx context.Context, ev Event) error {
	if ev.Kind != EventPaid {
		return nil
	}
	inv := ev.Invoice
	fee, net := money.Split(inv.Amount)
	earn := WorkerEarnings{
		ID:         uuid.New(),
		InvoiceID:  inv.ID,
		OrderID:    inv.OrderID,
		ProviderID: inv.ProviderID,
		Gross:      inv.Amount,
		Fee:        fee,
		Net:        net,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.earnings.Create(ctx, &earn); err != nil {
		if fault.IsInvariant(err) {
			// Replayed paid event; earnings already derived.
			return nil
		}
		return err
	}
	e.log.Info("earnings derived",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("provider_id", inv.ProviderID.String()),
		zap.String("net", earn.Net.String()))
	return nil
}

// GetInvoice enforces read scoping: the invoice's customer, its provider, or
// an admin.
func (e *Engine) GetInvoice(ctx context.Context, actor identity.Actor, id uuid.UUID) (Invoice, error) {
	inv, err := e.invoices.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !actor.Is(identity.RoleAdmin) && actor.ID != inv.CustomerID && actor.ID != inv.ProviderID {
		return Invoice{}, fault.PermissionDeniedf("not allowed to view this invoice")
	}
	return inv, nil
}

func (e *Engine) ListInvoices(ctx context.Context, actor identity.Actor, status *InvoiceStatus, limit, offset int) ([]Invoice, error) {
	f := InvoiceListFilter{Status: status, Limit: limit, Offset: offset}
	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RoleProvider:
		f.ProviderID = &actor.ID
	default:
		f.CustomerID = &actor.ID
	}
	return e.invoices.List(ctx, f)
}

// ListEarnings returns the caller's own earnings; admins may pass any
// provider id.
func (e *Engine) ListEarnings(ctx context.Context, actor identity.Actor, providerID uuid.UUID, limit, offset int) ([]WorkerEarnings, error) {
	if !actor.Is(identity.RoleAdmin) && actor.ID != providerID {
		return nil, fault.PermissionDeniedf("providers can only view their own earnings")
	}
	return e.earnings.ListByProvider(ctx, providerID, limit, offset)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.bus != nil {
		e.bus.Publish(ctx, ev)
	}
}
