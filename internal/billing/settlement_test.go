package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/events"
	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/identity"
	"github.com/khidmahub/khidmahub/internal/money"
	"github.com/khidmahub/khidmahub/internal/orders"
)

// memInvoices mirrors the Postgres store's constraints: one invoice per
// order, MarkPaid exactly once, DeleteByOrder skips paid invoices.
type memInvoices struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]Invoice
	byOrder map[uuid.UUID]uuid.UUID
}

func newMemInvoices() *memInvoices {
	return &memInvoices{byID: make(map[uuid.UUID]Invoice), byOrder: make(map[uuid.UUID]uuid.UUID)}
}

func (m *memInvoices) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byOrder[inv.OrderID]; exists {
		return fault.Invariantf("order %s already has an invoice", inv.OrderID)
	}
	m.byID[inv.ID] = *inv
	m.byOrder[inv.OrderID] = inv.ID
	return nil
}

func (m *memInvoices) Get(_ context.Context, id uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[id]
	if !ok {
		return Invoice{}, fault.NotFoundf("invoice %s not found", id)
	}
	return inv, nil
}

func (m *memInvoices) GetByOrder(_ context.Context, orderID uuid.UUID) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byOrder[orderID]
	if !ok {
		return Invoice{}, fault.NotFoundf("no invoice for order %s", orderID)
	}
	return m.byID[id], nil
}

func (m *memInvoices) DeleteByOrder(_ context.Context, orderID uuid.UUID) (Invoice, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byOrder[orderID]
	if !ok {
		return Invoice{}, false, nil
	}
	inv := m.byID[id]
	if inv.Status == InvoicePaid {
		return Invoice{}, false, nil
	}
	delete(m.byID, id)
	delete(m.byOrder, orderID)
	return inv, true, nil
}

func (m *memInvoices) MarkPaid(_ context.Context, id uuid.UUID, method PaymentMethod) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[id]
	if !ok {
		return Invoice{}, fault.NotFoundf("invoice %s not found", id)
	}
	if inv.Status == InvoicePaid {
		return Invoice{}, fault.StateConflictf("invoice %s is already paid", id)
	}
	now := time.Now().UTC()
	inv.Status = InvoicePaid
	inv.PaymentMethod = method
	inv.PaidAt = &now
	m.byID[id] = inv
	return inv, nil
}

func (m *memInvoices) List(_ context.Context, f InvoiceListFilter) ([]Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invoice
	for _, inv := range m.byID {
		if f.CustomerID != nil && inv.CustomerID != *f.CustomerID {
			continue
		}
		if f.ProviderID != nil && inv.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != nil && inv.Status != *f.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

var _ InvoiceStore = (*memInvoices)(nil)

type memEarnings struct {
	mu        sync.Mutex
	byInvoice map[uuid.UUID]WorkerEarnings
}

func newMemEarnings() *memEarnings {
	return &memEarnings{byInvoice: make(map[uuid.UUID]WorkerEarnings)}
}

func (m *memEarnings) Create(_ context.Context, e *WorkerEarnings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byInvoice[e.InvoiceID]; exists {
		return fault.Invariantf("invoice %s already has an earnings record", e.InvoiceID)
	}
	m.byInvoice[e.InvoiceID] = *e
	return nil
}

func (m *memEarnings) GetByInvoice(_ context.Context, invoiceID uuid.UUID) (WorkerEarnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byInvoice[invoiceID]
	if !ok {
		return WorkerEarnings{}, fault.NotFoundf("no earnings for invoice %s", invoiceID)
	}
	return e, nil
}

func (m *memEarnings) ListByProvider(_ context.Context, providerID uuid.UUID, _, _ int) ([]WorkerEarnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WorkerEarnings
	for _, e := range m.byInvoice {
		if e.ProviderID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ EarningsStore = (*memEarnings)(nil)

type staticCatalog struct {
	svc catalog.Service
}

func (c staticCatalog) GetService(_ context.Context, id uuid.UUID) (catalog.Service, error) {
	if id != c.svc.ID {
		return catalog.Service{}, fault.NotFoundf("service %s not found", id)
	}
	return c.svc, nil
}

type engineFixture struct {
	engine   *Engine
	invoices *memInvoices
	earnings *memEarnings
	svcID    uuid.UUID
	customer uuid.UUID
	provider uuid.UUID
	admin    identity.Actor
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		invoices: newMemInvoices(),
		earnings: newMemEarnings(),
		svcID:    uuid.New(),
		customer: uuid.New(),
		provider: uuid.New(),
		admin:    identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin},
	}
	cat := staticCatalog{svc: catalog.Service{ID: f.svcID, Title: "Deep cleaning", Price: 15000}}
	bus := events.NewBus[Event]("invoices", nil)
	f.engine = NewEngine(f.invoices, f.earnings, cat, bus, nil, orders.StatusApprovedCompleted, 7)
	// Earnings derivation listens on the engine's own bus.
	bus.Subscribe(f.engine.HandleInvoiceEvent)
	return f
}

func (f *engineFixture) order(status orders.Status, offered *money.Cents) orders.Order {
	return orders.Order{
		ID:           uuid.New(),
		CustomerID:   f.customer,
		ProviderID:   &f.provider,
		ServiceID:    f.svcID,
		OfferedPrice: offered,
		Status:       status,
	}
}

func TestInvoiceIssuedOnTrigger(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	price := money.Cents(20000)
	o := f.order(orders.StatusApprovedCompleted, &price)

	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o, Previous: orders.StatusCompleted}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	inv, err := f.invoices.GetByOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if inv.Amount != 20000 {
		t.Fatalf("amount = %s, want 200.00", inv.Amount)
	}
	if inv.Status != InvoiceUnpaid {
		t.Fatalf("status = %s, want unpaid", inv.Status)
	}
	wantDue := inv.IssuedAt.AddDate(0, 0, 7)
	if !inv.DueAt.Equal(wantDue) {
		t.Fatalf("due_at = %v, want issued_at + 7d", inv.DueAt)
	}
	if inv.CustomerID != f.customer || inv.ProviderID != f.provider {
		t.Fatalf("parties = %s / %s", inv.CustomerID, inv.ProviderID)
	}
}

func TestInvoiceFallsBackToServicePrice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusApprovedCompleted, nil)

	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	inv, err := f.invoices.GetByOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetByOrder: %v", err)
	}
	if inv.Amount.String() != "150.00" {
		t.Fatalf("amount = %s, want 150.00 (catalog price)", inv.Amount)
	}
}

func TestInvoiceIssuanceIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusApprovedCompleted, nil)
	ev := orders.Event{Order: o}

	if err := f.engine.HandleOrderEvent(ctx, ev); err != nil {
		t.Fatalf("first event: %v", err)
	}
	first, _ := f.invoices.GetByOrder(ctx, o.ID)

	if err := f.engine.HandleOrderEvent(ctx, ev); err != nil {
		t.Fatalf("replayed event must be swallowed, got %v", err)
	}
	second, _ := f.invoices.GetByOrder(ctx, o.ID)
	if first.ID != second.ID {
		t.Fatal("replay created a second invoice")
	}
}

func TestNoInvoiceWithoutProvider(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusApprovedCompleted, nil)
	o.ProviderID = nil

	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if _, err := f.invoices.GetByOrder(ctx, o.ID); !fault.IsNotFound(err) {
		t.Fatalf("want no invoice, got %v", err)
	}
}

func TestCancellationVoidsUnpaidInvoice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusApprovedCompleted, nil)
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	o.Status = orders.StatusCancelled
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := f.invoices.GetByOrder(ctx, o.ID); !fault.IsNotFound(err) {
		t.Fatalf("invoice should be gone, got %v", err)
	}
}

func TestCancellationKeepsPaidInvoice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusApprovedCompleted, nil)
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	inv, _ := f.invoices.GetByOrder(ctx, o.ID)
	if _, err := f.engine.MarkInvoicePaid(ctx, f.admin, inv.ID, PayCash); err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}

	o.Status = orders.StatusCancelled
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, err := f.invoices.GetByOrder(ctx, o.ID); err != nil {
		t.Fatalf("paid invoice must survive cancellation: %v", err)
	}
}

func TestMarkPaidDerivesEarnings(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	price := money.Cents(20000)
	o := f.order(orders.StatusApprovedCompleted, &price)
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	inv, _ := f.invoices.GetByOrder(ctx, o.ID)

	// Non-admins cannot record payments.
	cust := identity.Actor{ID: f.customer, Role: identity.RoleCustomer}
	if _, err := f.engine.MarkInvoicePaid(ctx, cust, inv.ID, PayCash); fault.KindOf(err) != fault.KindPermissionDenied {
		t.Fatalf("want permission denied, got %v", err)
	}

	paid, err := f.engine.MarkInvoicePaid(ctx, f.admin, inv.ID, PayCard)
	if err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}
	if paid.Status != InvoicePaid || paid.PaidAt == nil {
		t.Fatalf("paid invoice = %+v", paid)
	}

	earn, err := f.earnings.GetByInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetByInvoice: %v", err)
	}
	if earn.Gross != 20000 || earn.Fee != 1000 || earn.Net != 19000 {
		t.Fatalf("split = %s/%s/%s, want 200.00/10.00/190.00", earn.Gross, earn.Fee, earn.Net)
	}
	if earn.Fee+earn.Net != earn.Gross {
		t.Fatal("fee + net != gross")
	}

	// Double payment is a conflict and derives nothing twice.
	if _, err := f.engine.MarkInvoicePaid(ctx, f.admin, inv.ID, PayCash); !fault.IsStateConflict(err) {
		t.Fatalf("want state conflict, got %v", err)
	}
}

func TestEarningsDerivationIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	price := money.Cents(10000)
	o := f.order(orders.StatusApprovedCompleted, &price)
	if err := f.engine.HandleOrderEvent(ctx, orders.Event{Order: o}); err != nil {
		t.Fatalf("issue: %v", err)
	}
	inv, _ := f.invoices.GetByOrder(ctx, o.ID)
	paid, err := f.engine.MarkInvoicePaid(ctx, f.admin, inv.ID, PayTransfer)
	if err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}

	// Replaying the paid event must not create a second row.
	if err := f.engine.HandleInvoiceEvent(ctx, Event{Kind: EventPaid, Invoice: paid}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	list, err := f.earnings.ListByProvider(ctx, f.provider, 0, 0)
	if err != nil {
		t.Fatalf("ListByProvider: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("earnings rows = %d, want 1", len(list))
	}
}

func TestEffectiveStatusOverdue(t *testing.T) {
	due := time.Now().UTC().Add(-time.Hour)
	inv := Invoice{Status: InvoiceUnpaid, DueAt: due}
	if got := inv.EffectiveStatus(time.Now().UTC()); got != InvoiceOverdue {
		t.Fatalf("got %s, want overdue", got)
	}
	inv.Status = InvoicePaid
	if got := inv.EffectiveStatus(time.Now().UTC()); got != InvoicePaid {
		t.Fatalf("got %s, want paid", got)
	}
}

func TestListEarningsScoped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	other := identity.Actor{ID: uuid.New(), Role: identity.RoleProvider}
	if _, err := f.engine.ListEarnings(ctx, other, f.provider, 0, 0); fault.KindOf(err) != fault.KindPermissionDenied {
		t.Fatalf("want permission denied, got %v", err)
	}
	if _, err := f.engine.ListEarnings(ctx, f.admin, f.provider, 0, 0); err != nil {
		t.Fatalf("admin list: %v", err)
	}
}
