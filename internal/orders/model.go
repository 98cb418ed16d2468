package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/khidmahub/khidmahub/internal/money"
)

// Status is the order lifecycle state.
//
//	pending -> accepted -> in_progress -> completed -> approved_completed
//
// declined is terminal from pending/accepted; cancelled is terminal from any
// non-terminal state.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusInProgress        Status = "in_progress"
	StatusCompleted         Status = "completed"
	StatusApprovedCompleted Status = "approved_completed"
	StatusDeclined          Status = "declined"
	StatusCancelled         Status = "cancelled"
)

// Statuses lists every valid order status.
var Statuses = []Status{
	StatusPending, StatusAccepted, StatusInProgress, StatusCompleted,
	StatusApprovedCompleted, StatusDeclined, StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApprovedCompleted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

// Location is where the work is to be performed.
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// Order is a single customer service request moving through the lifecycle.
// ProviderID stays nil while the order is pending; once bound on acceptance
// it never changes to a different provider.
type Order struct {
	ID            uuid.UUID    `json:"id"`
	CustomerID    uuid.UUID    `json:"customer_id"`
	ProviderID    *uuid.UUID   `json:"provider_id,omitempty"`
	ServiceID     uuid.UUID    `json:"service_id"`
	Description   string       `json:"description,omitempty"`
	OfferedPrice  *money.Cents `json:"offered_price,omitempty"`
	Location      *Location    `json:"location,omitempty"`
	ScheduledAt   time.Time    `json:"scheduled_at"`
	DueAt         *time.Time   `json:"due_at,omitempty"`
	Status        Status       `json:"status"`
	DeclineReason string       `json:"decline_reason,omitempty"`
	Deleted       bool         `json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// BoundTo reports whether the order is assigned to the given provider.
func (o Order) BoundTo(providerID uuid.UUID) bool {
	return o.ProviderID != nil && *o.ProviderID == providerID
}

// Offer is a provider's price proposal against a pending order.
type Offer struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"order_id"`
	ProviderID    uuid.UUID   `json:"provider_id"`
	ProposedPrice money.Cents `json:"proposed_price"`
	Accepted      bool        `json:"accepted"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Negotiation is an immutable bargaining message on an order, optionally
// carrying a counter-price. Ordered by creation time.
type Negotiation struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"order_id"`
	SenderID      uuid.UUID    `json:"sender_id"`
	Message       string       `json:"message"`
	ProposedPrice *money.Cents `json:"proposed_price,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
