package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/billing"
	"github.com/khidmahub/khidmahub/internal/catalog"
	"github.com/khidmahub/khidmahub/internal/fault"
	"github.com/khidmahub/khidmahub/internal/identity"
	"github.com/khidmahub/khidmahub/internal/orders"
)

// Enqueuer hands a stored notification to the out-of-process delivery relay.
// Delivery is best-effort: enqueue failures are logged, never propagated.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, n Notification) (string, error)
}

// Dispatcher turns order and invoice events into feed notifications and owns
// the feed's read operations.
type Dispatcher struct {
	store   Store
	catalog catalog.Lookup
	relay   Enqueuer
	log     *zap.Logger
}

func NewDispatcher(store Store, cat catalog.Lookup, relay Enqueuer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{store: store, catalog: cat, relay: relay, log: log}
}

// HandleOrderEvent fans an order transition out to the affected parties.
func (d *Dispatcher) HandleOrderEvent(ctx context.Context, ev orders.Event) error {
	if ev.Created {
		return d.orderCreated(ctx, ev)
	}
	return d.orderTransitioned(ctx, ev)
}

func (d *Dispatcher) orderCreated(ctx context.Context, ev orders.Event) error {
	o := ev.Order
	nctx, serviceName := d.orderContext(ctx, o)

	// The designated provider, if the service has one, is asked to respond.
	if svc, err := d.catalog.GetService(ctx, o.ServiceID); err == nil && svc.ProviderID != nil {
		d.deliver(ctx, Notification{
			Recipient:      Recipient{Kind: ToProvider, ID: *svc.ProviderID},
			ActorID:        &o.CustomerID,
			Verb:           "order_created",
			Message:        fmt.Sprintf("New order for %s", serviceName),
			ShortMessage:   "New order",
			Level:          LevelInfo,
			RequiresAction: true,
			Context:        nctx,
		})
	}

	d.deliver(ctx, Notification{
		Recipient:    Recipient{Kind: ToCustomer, ID: o.CustomerID},
		Verb:         "order_submitted",
		Message:      fmt.Sprintf("Your order for %s was submitted", serviceName),
		ShortMessage: "Order submitted",
		Level:        LevelInfo,
		Context:      nctx,
	})
	return nil
}

func (d *Dispatcher) orderTransitioned(ctx context.Context, ev orders.Event) error {
	o := ev.Order
	nctx, serviceName := d.orderContext(ctx, o)

	var (
		recipient Recipient
		verb      string
		message   string
		short     string
		level     Level
	)
	switch o.Status {
	case orders.StatusAccepted:
		recipient = Recipient{Kind: ToCustomer, ID: o.CustomerID}
		verb, level = "order_accepted", LevelSuccess
		message = fmt.Sprintf("Your order for %s was accepted", serviceName)
		short = "Order accepted"
	case orders.StatusInProgress:
		recipient = Recipient{Kind: ToCustomer, ID: o.CustomerID}
		verb, level = "order_started", LevelInfo
		message = fmt.Sprintf("Work on %s has started", serviceName)
		short = "Work started"
	case orders.StatusCompleted:
		if o.ProviderID == nil {
			return nil
		}
		recipient = Recipient{Kind: ToProvider, ID: *o.ProviderID}
		verb, level = "order_completed", LevelInfo
		message = fmt.Sprintf("The customer marked %s as completed", serviceName)
		short = "Marked completed"
	case orders.StatusApprovedCompleted:
		if o.ProviderID == nil {
			return nil
		}
		recipient = Recipient{Kind: ToProvider, ID: *o.ProviderID}
		verb, level = "order_approved", LevelSuccess
		message = fmt.Sprintf("Completion of %s was approved", serviceName)
		short = "Completion approved"
	case orders.StatusDeclined:
		recipient = Recipient{Kind: ToCustomer, ID: o.CustomerID}
		verb, level = "order_declined", LevelWarning
		message = fmt.Sprintf("Your order for %s was declined: %s", serviceName, o.DeclineReason)
		short = "Order declined"
	case orders.StatusCancelled:
		// Tell whichever party did not cancel.
		if ev.Actor.ID == o.CustomerID {
			if o.ProviderID == nil {
				return nil
			}
			recipient = Recipient{Kind: ToProvider, ID: *o.ProviderID}
		} else {
			recipient = Recipient{Kind: ToCustomer, ID: o.CustomerID}
		}
		verb, level = "order_cancelled", LevelWarning
		message = fmt.Sprintf("The order for %s was cancelled", serviceName)
		short = "Order cancelled"
	default:
		return nil
	}

	actorID := ev.Actor.ID
	d.deliver(ctx, Notification{
		Recipient:    recipient,
		ActorID:      &actorID,
		Verb:         verb,
		Message:      message,
		ShortMessage: short,
		Level:        level,
		Context:      nctx,
	})
	return nil
}

// HandleInvoiceEvent notifies the customer of an issued invoice and the
// provider of a settled one.
func (d *Dispatcher) HandleInvoiceEvent(ctx context.Context, ev billing.Event) error {
	inv := ev.Invoice
	amount := inv.Amount
	nctx := &Context{OrderID: inv.OrderID, InvoiceID: &inv.ID, Price: &amount}

	switch ev.Kind {
	case billing.EventIssued:
		d.deliver(ctx, Notification{
			Recipient:      Recipient{Kind: ToCustomer, ID: inv.CustomerID},
			Verb:           "invoice_issued",
			Message:        fmt.Sprintf("Invoice of %s is due by %s", amount, inv.DueAt.Format("2 Jan 2006")),
			ShortMessage:   "Invoice issued",
			Level:          LevelInfo,
			RequiresAction: true,
			Context:        nctx,
		})
	case billing.EventPaid:
		d.deliver(ctx, Notification{
			Recipient:    Recipient{Kind: ToProvider, ID: inv.ProviderID},
			Verb:         "invoice_paid",
			Message:      fmt.Sprintf("Invoice of %s was paid", amount),
			ShortMessage: "Invoice paid",
			Level:        LevelSuccess,
			Context:      nctx,
		})
	case billing.EventVoided:
		d.deliver(ctx, Notification{
			Recipient:    Recipient{Kind: ToCustomer, ID: inv.CustomerID},
			Verb:         "invoice_voided",
			Message:      fmt.Sprintf("Invoice of %s was voided", amount),
			ShortMessage: "Invoice voided",
			Level:        LevelInfo,
			Context:      nctx,
		})
	}
	return nil
}

// deliver stores the notification and hands it to the relay. Neither failure
// can affect the transition that triggered it.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	if err := d.store.Create(ctx, &n); err != nil {
		d.log.Error("failed to store notification",
			zap.String("verb", n.Verb),
			zap.String("recipient", n.Recipient.ID.String()),
			zap.Error(err))
		return
	}
	if d.relay == nil {
		return
	}
	taskID, err := d.relay.EnqueueDelivery(ctx, n)
	if err != nil {
		d.log.Warn("failed to enqueue notification delivery",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err))
		return
	}
	d.log.Debug("notification delivery enqueued",
		zap.String("notification_id", n.ID.String()),
		zap.String("task_id", taskID))
}

func (d *Dispatcher) orderContext(ctx context.Context, o orders.Order) (*Context, string) {
	serviceName := "the requested service"
	if svc, err := d.catalog.GetService(ctx, o.ServiceID); err == nil {
		serviceName = svc.Title
	}
	c := &Context{
		OrderID:        o.ID,
		ServiceName:    serviceName,
		JobDescription: o.Description,
	}
	if o.OfferedPrice != nil {
		p := *o.OfferedPrice
		c.Price = &p
	}
	if o.Location != nil {
		c.Location = o.Location.Address
	}
	return c, serviceName
}

// recipientOf maps an authenticated caller onto their feed partition.
func recipientOf(actor identity.Actor) (Recipient, error) {
	switch actor.Role {
	case identity.RoleCustomer:
		return Recipient{Kind: ToCustomer, ID: actor.ID}, nil
	case identity.RoleProvider:
		return Recipient{Kind: ToProvider, ID: actor.ID}, nil
	}
	return Recipient{}, fault.PermissionDeniedf("role %s has no notification feed", actor.Role)
}

func (d *Dispatcher) List(ctx context.Context, actor identity.Actor, f ListFilter) ([]Notification, error) {
	r, err := recipientOf(actor)
	if err != nil {
		return nil, err
	}
	return d.store.ListByRecipient(ctx, r, f)
}

func (d *Dispatcher) CountUnread(ctx context.Context, actor identity.Actor) (int, error) {
	r, err := recipientOf(actor)
	if err != nil {
		return 0, err
	}
	return d.store.CountUnread(ctx, r)
}

func (d *Dispatcher) MarkRead(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	r, err := recipientOf(actor)
	if err != nil {
		return err
	}
	return d.store.MarkRead(ctx, r, id)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, actor identity.Actor) (int, error) {
	r, err := recipientOf(actor)
	if err != nil {
		return 0, err
	}
	return d.store.MarkAllRead(ctx, r)
}

func (d *Dispatcher) RecordAction(ctx context.Context, actor identity.Actor, id uuid.UUID, action ActionTaken) error {
	if action != ActionAccepted && action != ActionDeclined {
		return fault.Validationf("unknown action %q", action)
	}
	r, err := recipientOf(actor)
	if err != nil {
		return err
	}
	return d.store.RecordAction(ctx, r, id, action)
}
