package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/events"
	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/identity"
	"github.com/khidmahub/khidmahub/internal/money"
)

// Ledger owns the order state machine. Every mutating operation commits the
// primary state change through the store's conditional update, then publishes
// an Event; subscriber failures never undo the transition.
type Ledger struct {
	store           Store
	catalog         catalog.Lookup
	bus             *events.Bus[Event]
	log             *zap.Logger
	exclusiveOffers bool
}

func NewLedger(store Store, cat catalog.Lookup, bus *events.Bus[Event], log *zap.Logger, exclusiveOffers bool) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, catalog: cat, bus: bus, log: log, exclusiveOffers: exclusiveOffers}
}

// CreateOrderInput is what a customer submits to request work.
type CreateOrderInput struct {
	ServiceID    uuid.UUID    `json:"service_id"`
	Description  string       `json:"description"`
	OfferedPrice *money.Cents `json:"offered_price,omitempty"`
	Location     *Location    `json:"location,omitempty"`
	ScheduledAt  *time.Time   `json:"scheduled_at,omitempty"`
	DueAt        *time.Time   `json:"due_at,omitempty"`
}

func (l *Ledger) CreateOrder(ctx context.Context, actor identity.Actor, in CreateOrderInput) (Order, error) {
	if actor.Is(identity.RoleProvider) {
		return Order{}, fault.ForbiddenRolef("providers cannot create orders, only offers")
	}
	if in.ServiceID == uuid.Nil {
		return Order{}, fault.Validationf("service_id is required")
	}
	if in.OfferedPrice != nil && *in.OfferedPrice < 1 {
		return Order{}, fault.Validationf("offered_price must be at least 0.01")
	}
	if _, err := l.catalog.GetService(ctx, in.ServiceID); err != nil {
		if fault.IsNotFound(err) {
			return Order{}, fault.Validationf("service %s does not exist", in.ServiceID)
		}
		return Order{}, err
	}

	now := time.Now().UTC()
	scheduled := now
	if in.ScheduledAt != nil {
		scheduled = *in.ScheduledAt
	}
	o := Order{
		ID:           uuid.New(),
		CustomerID:   actor.ID,
		ServiceID:    in.ServiceID,
		Description:  in.Description,
		OfferedPrice: in.OfferedPrice,
		Location:     in.Location,
		ScheduledAt:  scheduled,
		DueAt:        in.DueAt,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := l.store.CreateOrder(ctx, &o); err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Created: true})
	return o, nil
}

// AcceptOrder binds the calling provider to a pending order. The bind is a
// compare-and-swap on status; of two concurrent accepts exactly one wins and
// the loser observes a conflict.
func (l *Ledger) AcceptOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	if !actor.Is(identity.RoleProvider) {
		return Order{}, fault.PermissionDeniedf("only providers can accept orders")
	}
	cur, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if cur.ProviderID != nil && *cur.ProviderID != actor.ID {
		return Order{}, fault.AlreadyAssignedf("order %s is already assigned to another provider", orderID)
	}
	o, err := l.store.Transition(ctx, orderID, []Status{StatusPending}, StatusAccepted, TransitionPatch{
		ProviderID:    &actor.ID,
		GuardProvider: &actor.ID,
	})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: StatusPending})
	return o, nil
}

func (l *Ledger) StartOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	if !actor.Is(identity.RoleProvider) {
		return Order{}, fault.PermissionDeniedf("only providers can start orders")
	}
	cur, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !cur.BoundTo(actor.ID) {
		return Order{}, fault.PermissionDeniedf("only the assigned provider can start this order")
	}
	o, err := l.store.Transition(ctx, orderID, []Status{StatusAccepted}, StatusInProgress, TransitionPatch{})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: cur.Status})
	return o, nil
}

// DeclineOrder records a provider's refusal with a mandatory reason. A bound
// provider may decline an accepted order; any provider may decline while the
// order is still pending.
func (l *Ledger) DeclineOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID, reason string) (Order, error) {
	if !actor.Is(identity.RoleProvider) {
		return Order{}, fault.PermissionDeniedf("only providers can decline orders")
	}
	if strings.TrimSpace(reason) == "" {
		return Order{}, fault.Validationf("decline reason is required")
	}
	cur, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if cur.ProviderID != nil && *cur.ProviderID != actor.ID {
		return Order{}, fault.PermissionDeniedf("order %s is assigned to another provider", orderID)
	}
	o, err := l.store.Transition(ctx, orderID, []Status{StatusPending, StatusAccepted}, StatusDeclined, TransitionPatch{
		DeclineReason: &reason,
	})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: cur.Status})
	return o, nil
}

func (l *Ledger) CompleteOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	cur, err := l.customerOwnedOrder(ctx, actor, orderID, "only the customer can mark an order completed")
	if err != nil {
		return Order{}, err
	}
	o, err := l.store.Transition(ctx, orderID, []Status{StatusAccepted, StatusInProgress}, StatusCompleted, TransitionPatch{})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: cur.Status})
	return o, nil
}

func (l *Ledger) ApproveCompletion(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	cur, err := l.customerOwnedOrder(ctx, actor, orderID, "only the customer can approve completion")
	if err != nil {
		return Order{}, err
	}
	o, err := l.store.Transition(ctx, orderID, []Status{StatusCompleted}, StatusApprovedCompleted, TransitionPatch{})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: cur.Status})
	return o, nil
}

// CancelOrder is available to the customer or the bound provider from any
// non-terminal state.
func (l *Ledger) CancelOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	cur, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if cur.CustomerID != actor.ID && !cur.BoundTo(actor.ID) {
		return Order{}, fault.PermissionDeniedf("only the customer or the assigned provider can cancel this order")
	}
	o, err := l.store.Transition(ctx, orderID,
		[]Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted},
		StatusCancelled, TransitionPatch{})
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: actor, Previous: cur.Status})
	return o, nil
}

// SoftDeleteOrder hides the order from listings without erasing settlement
// history.
func (l *Ledger) SoftDeleteOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) error {
	if _, err := l.customerOwnedOrder(ctx, actor, orderID, "only the customer can delete an order"); err != nil {
		return err
	}
	return l.store.SoftDeleteOrder(ctx, orderID)
}

func (l *Ledger) GetOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID) (Order, error) {
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := l.authorizeRead(ctx, actor, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (l *Ledger) ListOrders(ctx context.Context, actor identity.Actor, status *Status, limit, offset int) ([]Order, error) {
	if status != nil && !status.Valid() {
		return nil, fault.Validationf("unknown status %q", *status)
	}
	f := ListFilter{Status: status, Limit: limit, Offset: offset}
	switch actor.Role {
	case identity.RoleAdmin:
	case identity.RoleProvider:
		f.VisibleToProvider = &actor.ID
	default:
		f.CustomerID = &actor.ID
	}
	return l.store.ListOrders(ctx, f)
}

// CreateOffer lets a provider bid on a pending order. The order's own
// customer can never bid on their request.
func (l *Ledger) CreateOffer(ctx context.Context, actor identity.Actor, orderID uuid.UUID, price money.Cents) (Offer, error) {
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Offer{}, err
	}
	if o.CustomerID == actor.ID {
		return Offer{}, fault.ForbiddenRolef("a customer cannot bid on their own order")
	}
	if !actor.Is(identity.RoleProvider) {
		return Offer{}, fault.ForbiddenRolef("only providers can make offers")
	}
	if price < 1 {
		return Offer{}, fault.Validationf("proposed_price must be at least 0.01")
	}
	if o.Status != StatusPending {
		return Offer{}, fault.StateConflictf("offers are only accepted while the order is pending")
	}
	of := Offer{
		ID:            uuid.New(),
		OrderID:       orderID,
		ProviderID:    actor.ID,
		ProposedPrice: price,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.CreateOffer(ctx, &of); err != nil {
		return Offer{}, err
	}
	return of, nil
}

// AcceptOffer binds the offer's provider to the order at the offered price.
func (l *Ledger) AcceptOffer(ctx context.Context, actor identity.Actor, offerID uuid.UUID) (Order, error) {
	of, err := l.store.GetOffer(ctx, offerID)
	if err != nil {
		return Order{}, err
	}
	cur, err := l.visibleOrder(ctx, of.OrderID)
	if err != nil {
		return Order{}, err
	}
	if cur.CustomerID != actor.ID {
		return Order{}, fault.PermissionDeniedf("only the customer can accept an offer")
	}
	o, err := l.store.AcceptOffer(ctx, of, l.exclusiveOffers)
	if err != nil {
		return Order{}, err
	}
	l.publish(ctx, Event{Order: o, Actor: identity.Actor{ID: of.ProviderID, Role: identity.RoleProvider}, Previous: StatusPending})
	return o, nil
}

func (l *Ledger) ListOffers(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]Offer, error) {
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeRead(ctx, actor, o); err != nil {
		return nil, err
	}
	return l.store.ListOffers(ctx, orderID)
}

// CreateNegotiation appends an immutable bargaining message. Only the order's
// customer or a provider with an offer on the order may send one.
func (l *Ledger) CreateNegotiation(ctx context.Context, actor identity.Actor, orderID uuid.UUID, message string, price *money.Cents) (Negotiation, error) {
	if strings.TrimSpace(message) == "" {
		return Negotiation{}, fault.Validationf("message is required")
	}
	if price != nil && *price < 1 {
		return Negotiation{}, fault.Validationf("proposed_price must be at least 0.01")
	}
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Negotiation{}, err
	}
	allowed := o.CustomerID == actor.ID
	if !allowed {
		allowed, err = l.store.HasOffer(ctx, orderID, actor.ID)
		if err != nil {
			return Negotiation{}, err
		}
	}
	if !allowed {
		return Negotiation{}, fault.PermissionDeniedf("only the customer or an offering provider can negotiate")
	}
	n := Negotiation{
		ID:            uuid.New(),
		OrderID:       orderID,
		SenderID:      actor.ID,
		Message:       message,
		ProposedPrice: price,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.store.CreateNegotiation(ctx, &n); err != nil {
		return Negotiation{}, err
	}
	return n, nil
}

func (l *Ledger) ListNegotiations(ctx context.Context, actor identity.Actor, orderID uuid.UUID) ([]Negotiation, error) {
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := l.authorizeRead(ctx, actor, o); err != nil {
		return nil, err
	}
	return l.store.ListNegotiations(ctx, orderID)
}

// visibleOrder loads an order and hides soft-deleted rows from callers.
func (l *Ledger) visibleOrder(ctx context.Context, orderID uuid.UUID) (Order, error) {
	o, err := l.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Deleted {
		return Order{}, fault.NotFoundf("order %s not found", orderID)
	}
	return o, nil
}

func (l *Ledger) customerOwnedOrder(ctx context.Context, actor identity.Actor, orderID uuid.UUID, denyMsg string) (Order, error) {
	o, err := l.visibleOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.CustomerID != actor.ID {
		return Order{}, fault.PermissionDeniedf("%s", denyMsg)
	}
	return o, nil
}

// authorizeRead lets the customer, admins, the bound provider, offering
// providers, and providers browsing pending work read an order.
func (l *Ledger) authorizeRead(ctx context.Context, actor identity.Actor, o Order) error {
	if actor.Is(identity.RoleAdmin) || o.CustomerID == actor.ID || o.BoundTo(actor.ID) {
		return nil
	}
	if actor.Is(identity.RoleProvider) {
		if o.Status == StatusPending && o.ProviderID == nil {
			return nil
		}
		has, err := l.store.HasOffer(ctx, o.ID, actor.ID)
		if err != nil {
			return err
		}
		if has {
			return nil
		}
	}
	return fault.PermissionDeniedf("not allowed to view this order")
}

func (l *Ledger) publish(ctx context.Context, ev Event) {
	if l.bus != nil {
		l.bus.Publish(ctx, ev)
	}
}
