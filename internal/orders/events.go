package orders

import "github.com/khidmahub/khidmahub/internal/identity"

// Event is published on the order bus after a committed create or transition.
// Subscribers (settlement engine, notification dispatcher) run synchronously
// in registration order.
type Event struct {
	Order    Order
	Actor    identity.Actor
	Previous Status
	Created  bool
}
