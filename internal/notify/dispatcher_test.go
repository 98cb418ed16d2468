package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/billing"
	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/identity"
	"github.com/khidmahub/khidmahub/internal/money"
	"github.com/khidmahub/khidmahub/internal/orders"
)

type memNotifStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]Notification
}

func newMemNotifStore() *memNotifStore {
	return &memNotifStore{items: make(map[uuid.UUID]Notification)}
}

func (m *memNotifStore) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[n.ID] = *n
	return nil
}

func (m *memNotifStore) Get(_ context.Context, id uuid.UUID) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return Notification{}, fault.NotFoundf("notification %s not found", id)
	}
	return n, nil
}

func (m *memNotifStore) ListByRecipient(_ context.Context, r Recipient, f ListFilter) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.items {
		if n.Recipient != r {
			continue
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (m *memNotifStore) CountUnread(ctx context.Context, r Recipient) (int, error) {
	list, err := m.ListByRecipient(ctx, r, ListFilter{UnreadOnly: true})
	return len(list), err
}

func (m *memNotifStore) MarkRead(_ context.Context, r Recipient, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.Recipient != r {
		return fault.NotFoundf("notification %s not found", id)
	}
	now := time.Now().UTC()
	n.Read = true
	n.ReadAt = &now
	m.items[id] = n
	return nil
}

func (m *memNotifStore) MarkAllRead(_ context.Context, r Recipient) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	now := time.Now().UTC()
	for id, n := range m.items {
		if n.Recipient == r && !n.Read {
			n.Read = true
			n.ReadAt = &now
			m.items[id] = n
			count++
		}
	}
	return count, nil
}

func (m *memNotifStore) RecordAction(_ context.Context, r Recipient, id uuid.UUID, action ActionTaken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.Recipient != r {
		return fault.NotFoundf("notification %s not found", id)
	}
	if !n.RequiresAction {
		return fault.StateConflictf("notification %s does not expect an action", id)
	}
	if n.ActionTaken != nil {
		return fault.StateConflictf("notification %s was already resolved", id)
	}
	now := time.Now().UTC()
	n.ActionTaken = &action
	n.ActionTakenAt = &now
	n.Read = true
	m.items[id] = n
	return nil
}

var _ Store = (*memNotifStore)(nil)

type fakeRelay struct {
	mu       sync.Mutex
	enqueued []Notification
	fail     bool
}

func (f *fakeRelay) EnqueueDelivery(_ context.Context, n Notification) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("redis unreachable")
	}
	f.enqueued = append(f.enqueued, n)
	return "task-" + n.ID.String(), nil
}

type notifCatalog struct {
	svc catalog.Service
}

func (c notifCatalog) GetService(_ context.Context, id uuid.UUID) (catalog.Service, error) {
	if id != c.svc.ID {
		return catalog.Service{}, fault.NotFoundf("service %s not found", id)
	}
	return c.svc, nil
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	store      *memNotifStore
	relay      *fakeRelay
	svcID      uuid.UUID
	designated uuid.UUID
	customer   uuid.UUID
	provider   uuid.UUID
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		store:      newMemNotifStore(),
		relay:      &fakeRelay{},
		svcID:      uuid.New(),
		designated: uuid.New(),
		customer:   uuid.New(),
		provider:   uuid.New(),
	}
	cat := notifCatalog{svc: catalog.Service{
		ID: f.svcID, ProviderID: &f.designated, Title: "Plumbing repair", Price: 8000,
	}}
	f.dispatcher = NewDispatcher(f.store, cat, f.relay, nil)
	return f
}

func (f *dispatcherFixture) order(status orders.Status) orders.Order {
	return orders.Order{
		ID:          uuid.New(),
		CustomerID:  f.customer,
		ProviderID:  &f.provider,
		ServiceID:   f.svcID,
		Description: "kitchen sink leaking",
		Status:      status,
	}
}

func (f *dispatcherFixture) feedOf(t *testing.T, r Recipient) []Notification {
	t.Helper()
	list, err := f.store.ListByRecipient(context.Background(), r, ListFilter{})
	if err != nil {
		t.Fatalf("ListByRecipient: %v", err)
	}
	return list
}

func TestOrderCreatedNotifiesBothParties(t *testing.T) {
	f := newDispatcherFixture(t)
	o := f.order(orders.StatusPending)
	o.ProviderID = nil

	err := f.dispatcher.HandleOrderEvent(context.Background(), orders.Event{
		Order: o, Actor: identity.Actor{ID: f.customer, Role: identity.RoleCustomer}, Created: true,
	})
	if err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	prov := f.feedOf(t, Recipient{Kind: ToProvider, ID: f.designated})
	if len(prov) != 1 {
		t.Fatalf("provider feed = %d entries, want 1", len(prov))
	}
	if prov[0].Verb != "order_created" || !prov[0].RequiresAction {
		t.Fatalf("provider notification = %+v", prov[0])
	}
	if prov[0].Context == nil || prov[0].Context.ServiceName != "Plumbing repair" {
		t.Fatalf("context = %+v", prov[0].Context)
	}
	if prov[0].Context.JobDescription != "kitchen sink leaking" {
		t.Fatalf("job description = %q", prov[0].Context.JobDescription)
	}

	cust := f.feedOf(t, Recipient{Kind: ToCustomer, ID: f.customer})
	if len(cust) != 1 || cust[0].Verb != "order_submitted" || cust[0].RequiresAction {
		t.Fatalf("customer feed = %+v", cust)
	}
}

func TestTransitionNotifiesCounterparty(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	providerActor := identity.Actor{ID: f.provider, Role: identity.RoleProvider}
	customerActor := identity.Actor{ID: f.customer, Role: identity.RoleCustomer}

	cases := []struct {
		status orders.Status
		actor  identity.Actor
		want   Recipient
		verb   string
		level  Level
	}{
		{orders.StatusAccepted, providerActor, Recipient{ToCustomer, f.customer}, "order_accepted", LevelSuccess},
		{orders.StatusInProgress, providerActor, Recipient{ToCustomer, f.customer}, "order_started", LevelInfo},
		{orders.StatusCompleted, customerActor, Recipient{ToProvider, f.provider}, "order_completed", LevelInfo},
		{orders.StatusApprovedCompleted, customerActor, Recipient{ToProvider, f.provider}, "order_approved", LevelSuccess},
		{orders.StatusDeclined, providerActor, Recipient{ToCustomer, f.customer}, "order_declined", LevelWarning},
	}
	for _, tc := range cases {
		o := f.order(tc.status)
		o.DeclineReason = "outside service area"
		if err := f.dispatcher.HandleOrderEvent(ctx, orders.Event{Order: o, Actor: tc.actor}); err != nil {
			t.Fatalf("%s: %v", tc.status, err)
		}
		feed := f.feedOf(t, tc.want)
		last := feed[len(feed)-1]
		if last.Verb != tc.verb || last.Level != tc.level {
			t.Fatalf("%s: got %s/%s, want %s/%s", tc.status, last.Verb, last.Level, tc.verb, tc.level)
		}
		if tc.status == orders.StatusDeclined && !strings.Contains(last.Message, "outside service area") {
			t.Fatalf("decline reason missing from %q", last.Message)
		}
	}
}

func TestCancellationNotifiesTheOtherParty(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	o := f.order(orders.StatusCancelled)
	err := f.dispatcher.HandleOrderEvent(ctx, orders.Event{
		Order: o, Actor: identity.Actor{ID: f.customer, Role: identity.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if got := f.feedOf(t, Recipient{Kind: ToProvider, ID: f.provider}); len(got) != 1 {
		t.Fatalf("provider feed = %d, want 1 (customer cancelled)", len(got))
	}

	o2 := f.order(orders.StatusCancelled)
	err = f.dispatcher.HandleOrderEvent(ctx, orders.Event{
		Order: o2, Actor: identity.Actor{ID: f.provider, Role: identity.RoleProvider},
	})
	if err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}
	if got := f.feedOf(t, Recipient{Kind: ToCustomer, ID: f.customer}); len(got) != 1 {
		t.Fatalf("customer feed = %d, want 1 (provider cancelled)", len(got))
	}
}

func TestInvoiceEventsNotify(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	inv := billing.Invoice{
		ID:         uuid.New(),
		OrderID:    uuid.New(),
		CustomerID: f.customer,
		ProviderID: f.provider,
		Amount:     money.Cents(8000),
		DueAt:      time.Now().UTC().AddDate(0, 0, 7),
	}

	if err := f.dispatcher.HandleInvoiceEvent(ctx, billing.Event{Kind: billing.EventIssued, Invoice: inv}); err != nil {
		t.Fatalf("issued: %v", err)
	}
	cust := f.feedOf(t, Recipient{Kind: ToCustomer, ID: f.customer})
	if len(cust) != 1 || cust[0].Verb != "invoice_issued" || !cust[0].RequiresAction {
		t.Fatalf("customer feed = %+v", cust)
	}
	if cust[0].Context == nil || cust[0].Context.Price == nil || *cust[0].Context.Price != 8000 {
		t.Fatalf("context = %+v", cust[0].Context)
	}

	if err := f.dispatcher.HandleInvoiceEvent(ctx, billing.Event{Kind: billing.EventPaid, Invoice: inv}); err != nil {
		t.Fatalf("paid: %v", err)
	}
	prov := f.feedOf(t, Recipient{Kind: ToProvider, ID: f.provider})
	if len(prov) != 1 || prov[0].Verb != "invoice_paid" || prov[0].Level != LevelSuccess {
		t.Fatalf("provider feed = %+v", prov)
	}
}

func TestRelayFailureIsSwallowed(t *testing.T) {
	f := newDispatcherFixture(t)
	f.relay.fail = true
	o := f.order(orders.StatusAccepted)

	err := f.dispatcher.HandleOrderEvent(context.Background(), orders.Event{
		Order: o, Actor: identity.Actor{ID: f.provider, Role: identity.RoleProvider},
	})
	if err != nil {
		t.Fatalf("relay failure must not propagate: %v", err)
	}
	// The notification is still stored.
	if got := f.feedOf(t, Recipient{Kind: ToCustomer, ID: f.customer}); len(got) != 1 {
		t.Fatalf("feed = %d, want 1", len(got))
	}
}

func TestFeedOperationsScopedToCaller(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusAccepted)
	if err := f.dispatcher.HandleOrderEvent(ctx, orders.Event{
		Order: o, Actor: identity.Actor{ID: f.provider, Role: identity.RoleProvider},
	}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	customer := identity.Actor{ID: f.customer, Role: identity.RoleCustomer}
	list, err := f.dispatcher.List(ctx, customer, ListFilter{})
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}

	// Another customer cannot read or mark this notification.
	stranger := identity.Actor{ID: uuid.New(), Role: identity.RoleCustomer}
	if err := f.dispatcher.MarkRead(ctx, stranger, list[0].ID); !fault.IsNotFound(err) {
		t.Fatalf("want not found for stranger, got %v", err)
	}

	if err := f.dispatcher.MarkRead(ctx, customer, list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, err := f.dispatcher.CountUnread(ctx, customer)
	if err != nil || unread != 0 {
		t.Fatalf("unread = %d, %v", unread, err)
	}

	admin := identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}
	if _, err := f.dispatcher.List(ctx, admin, ListFilter{}); fault.KindOf(err) != fault.KindPermissionDenied {
		t.Fatalf("admins have no feed, got %v", err)
	}
}

func TestRecordActionLifecycle(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	o := f.order(orders.StatusPending)
	o.ProviderID = nil
	if err := f.dispatcher.HandleOrderEvent(ctx, orders.Event{
		Order: o, Actor: identity.Actor{ID: f.customer, Role: identity.RoleCustomer}, Created: true,
	}); err != nil {
		t.Fatalf("HandleOrderEvent: %v", err)
	}

	designated := identity.Actor{ID: f.designated, Role: identity.RoleProvider}
	feed, err := f.dispatcher.List(ctx, designated, ListFilter{})
	if err != nil || len(feed) != 1 {
		t.Fatalf("feed = %v, %v", feed, err)
	}
	id := feed[0].ID

	if err := f.dispatcher.RecordAction(ctx, designated, id, "maybe"); fault.KindOf(err) != fault.KindValidation {
		t.Fatalf("bad action: want validation, got %v", err)
	}
	if err := f.dispatcher.RecordAction(ctx, designated, id, ActionAccepted); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if err := f.dispatcher.RecordAction(ctx, designated, id, ActionDeclined); !fault.IsStateConflict(err) {
		t.Fatalf("second action: want state conflict, got %v", err)
	}
}
