package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"limoride/webhook-service/internal/eventlog"
	"limoride/webhook-service/internal/notify"
	"limoride/webhook-service/pkg/contracts"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

// Gateway is the slice of the payment gateway the dispatcher needs. Each
// lookup hop fails independently.
type Gateway interface {
	SessionByIntent(ctx context.Context, intentID string) (*stripe.CheckoutSession, error)
	Charge(ctx context.Context, chargeID string) (*stripe.Charge, error)
	UpdateIntentMetadata(ctx context.Context, intentID string, metadata map[string]string) error
}

// Notifier sends the admin, customer and voice notifications. A transport
// error and a Success=false result are both treated as a failed send.
type Notifier interface {
	SendAdminNotification(ctx context.Context, n notify.AdminNotification) (notify.SendResult, error)
	SendCustomerNotification(ctx context.Context, n notify.CustomerNotification) (notify.SendResult, error)
	SendVoiceNotification(ctx context.Context, n notify.VoiceNotification) (notify.SendResult, error)
}

// EventLog records verified events and is the primary idempotency store.
type EventLog interface {
	Record(ctx context.Context, entry eventlog.Entry) error
	NotificationsSent(ctx context.Context, eventID string) (bool, error)
	MarkNotified(ctx context.Context, eventID string) error
	MarkError(ctx context.Context, eventID, message string) error
	EnqueueSummary(ctx context.Context, evt contracts.PaymentEventProcessed) error
}

// Feed receives a status update per handled event, for the live payment feed.
type Feed interface {
	BroadcastPaymentUpdate(intentID, eventType, status string)
}

type handlerFunc func(ctx context.Context, event stripe.Event) map[string]any

// Dispatcher verifies inbound gateway notifications, classifies them by type
// and runs one handler per recognized event type. Handlers never fail the
// acknowledgement: the gateway redelivers indefinitely on non-2xx, and a
// duplicate notification is worse than a missed one for an event it already
// delivered.
type Dispatcher struct {
	secret   string
	gateway  Gateway
	notifier Notifier
	events   EventLog
	feed     Feed
	logger   *slog.Logger
	now      func() time.Time

	handlers map[string]handlerFunc
}

func NewDispatcher(secret string, gateway Gateway, notifier Notifier, events EventLog, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		secret:   secret,
		gateway:  gateway,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
	d.handlers = map[string]handlerFunc{
		"payment_intent.succeeded":       d.handlePaymentSucceeded,
		"payment_intent.payment_failed":  d.handlePaymentFailed,
		"payment_intent.requires_action": d.handleRequiresAction,
		"payment_intent.canceled":        d.handlePaymentCanceled,
		"charge.dispute.created":         d.handleDisputeCreated,
		"charge.dispute.closed":          d.handleDisputeClosed,
		"charge.refunded":                d.handleChargeRefunded,
		"charge.expired":                 d.handleChargeExpired,
	}
	return d
}

// AttachFeed wires the live payment feed. Optional.
func (d *Dispatcher) AttachFeed(feed Feed) {
	d.feed = feed
}

// Dispatch verifies the signature over the raw body and runs the matching
// handler. The returned status and body are written to the gateway as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signature string) (int, map[string]any) {
	if d.secret == "" {
		d.logger.Error("webhook secret not configured")
		return http.StatusInternalServerError, map[string]any{
			"error":   "configuration_error",
			"message": "webhook secret not configured",
		}
	}
	if signature == "" {
		d.logger.Warn("missing webhook signature")
		return http.StatusBadRequest, map[string]any{
			"error":   "missing_signature",
			"message": "signature header is required",
		}
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, d.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		d.logger.Warn("webhook signature verification failed", "err", err)
		return http.StatusBadRequest, map[string]any{
			"error":   "signature_verification_failed",
			"message": err.Error(),
		}
	}

	// A signed body without a data member still verifies; reject it before
	// the handlers reach into the payload.
	if event.Data == nil {
		d.logger.Warn("webhook event has no data object", "event_id", event.ID, "type", event.Type)
		return http.StatusBadRequest, map[string]any{
			"error":   "malformed_event",
			"message": "event data object is required",
		}
	}

	d.logger.Info("webhook event received", "event_id", event.ID, "type", event.Type)
	d.record(ctx, event)

	handler, ok := d.handlers[string(event.Type)]
	if !ok {
		return http.StatusOK, map[string]any{
			"received": true,
			"type":     string(event.Type),
			"handled":  false,
		}
	}

	return http.StatusOK, handler(ctx, event)
}

func (d *Dispatcher) record(ctx context.Context, event stripe.Event) {
	entry := eventlog.Entry{
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   event.Data.Raw,
	}
	entry.PaymentIntentID, entry.ChargeID = objectIDs(event)

	if err := d.events.Record(ctx, entry); err != nil {
		d.logger.Warn("record webhook event failed", "event_id", event.ID, "err", err)
	}
}

// objectIDs pulls the intent/charge id out of the payload without committing
// to an object shape: payment_intent.* events carry an intent, charge.* and
// dispute events carry charge references.
func objectIDs(event stripe.Event) (intentID, chargeID string) {
	obj := event.Data.Object
	if obj == nil {
		return "", ""
	}
	id, _ := obj["id"].(string)
	switch {
	case len(id) > 3 && id[:3] == "pi_":
		intentID = id
	case len(id) > 3 && id[:3] == "ch_":
		chargeID = id
		if pi, ok := obj["payment_intent"].(string); ok {
			intentID = pi
		}
	default:
		if ch, ok := obj["charge"].(string); ok {
			chargeID = ch
		}
		if pi, ok := obj["payment_intent"].(string); ok {
			intentID = pi
		}
	}
	return intentID, chargeID
}
