package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/money"
)

// TransitionPatch carries the fields a transition sets alongside the status.
type TransitionPatch struct {
	// ProviderID binds the order to a provider (accept).
	ProviderID *uuid.UUID
	// GuardProvider, when set, requires the row's provider to be NULL or
	// equal to this id for the transition to match. It closes the window
	// where two providers race to accept the same pending order.
	GuardProvider *uuid.UUID
	// OfferedPrice overwrites the order's offered price (offer acceptance).
	OfferedPrice *money.Cents
	// DeclineReason records why a provider declined.
	DeclineReason *string
}

// ListFilter scopes ListOrders. Nil fields are not applied.
type ListFilter struct {
	// CustomerID limits to orders owned by this customer.
	CustomerID *uuid.UUID
	// VisibleToProvider limits to orders bound to this provider plus
	// unassigned pending orders (available work).
	VisibleToProvider *uuid.UUID
	Status            *Status
	Limit             int
	Offset            int
}

// Store is the persistence port for orders, offers and negotiations.
//
// GetOrder and GetOffer return soft-deleted orders' rows with the Deleted
// flag set; visibility policy lives in the Ledger so settlement history stays
// reachable for the engine. Transition and AcceptOffer are compare-and-swap:
// the update matches only while the current status is one of from, and a lost
// race surfaces as fault.StateConflict.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, patch TransitionPatch) (Order, error)
	SoftDeleteOrder(ctx context.Context, id uuid.UUID) error

	CreateOffer(ctx context.Context, of *Offer) error
	GetOffer(ctx context.Context, id uuid.UUID) (Offer, error)
	ListOffers(ctx context.Context, orderID uuid.UUID) ([]Offer, error)
	HasOffer(ctx context.Context, orderID, providerID uuid.UUID) (bool, error)
	// AcceptOffer atomically transitions the offer's order from pending to
	// accepted, binds the offer's provider, copies the proposed price onto
	// the order and flags the offer accepted. When exclusive is true the
	// accepted flag is cleared on every sibling offer.
	AcceptOffer(ctx context.Context, offer Offer, exclusive bool) (Order, error)

	CreateNegotiation(ctx context.Context, n *Negotiation) error
	ListNegotiations(ctx context.Context, orderID uuid.UUID) ([]Negotiation, error)
}
