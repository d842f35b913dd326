package webhook

import (
	"context"
	"strings"
	"time"

	"limoride/webhook-service/internal/reservation"
	"limoride/webhook-service/pkg/contracts"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

func eventTimestamp(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(timestampLayout)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// moneyAmount converts the gateway's minor units to a major-unit figure.
func moneyAmount(n int64) float64 {
	return float64(n) / 100
}

func currencyCode(c string) string {
	return strings.ToUpper(c)
}

func paymentMethod(types []string) string {
	if len(types) > 0 {
		return types[0]
	}
	return "card"
}

func ack(event stripe.Event) map[string]any {
	return map[string]any{
		"received": true,
		"type":     string(event.Type),
	}
}

// buildReservation fetches the session for the intent and normalizes its
// metadata. A missing session degrades to an empty metadata bag; a failed
// lookup aborts the branch's notification attempt (ok=false), the event is
// still acknowledged by the caller.
func (d *Dispatcher) buildReservation(ctx context.Context, event stripe.Event, intentID string, payment reservation.PaymentDetails) (reservation.Info, bool) {
	var metadata map[string]string
	if intentID != "" {
		sess, err := d.gateway.SessionByIntent(ctx, intentID)
		if err != nil {
			d.logger.Error("session lookup failed",
				"event_id", event.ID, "payment_intent_id", intentID, "err", err)
			d.markError(ctx, event.ID, "session lookup failed: "+err.Error())
			return reservation.Info{}, false
		}
		if sess == nil {
			d.logger.Warn("no checkout session for intent", "payment_intent_id", intentID)
		} else {
			metadata = sess.Metadata
		}
	}
	return reservation.Build(metadata, payment), true
}

func (d *Dispatcher) markNotified(ctx context.Context, eventID string) {
	if err := d.events.MarkNotified(ctx, eventID); err != nil {
		d.logger.Warn("mark event notified failed", "event_id", eventID, "err", err)
	}
}

func (d *Dispatcher) markError(ctx context.Context, eventID, message string) {
	if err := d.events.MarkError(ctx, eventID, message); err != nil {
		d.logger.Warn("mark event error failed", "event_id", eventID, "err", err)
	}
}

// finish stages the processed-event summary for the outbox relay and pushes
// a live-feed update.
func (d *Dispatcher) finish(ctx context.Context, event stripe.Event, intentID, chargeID, status string, amount float64, currency string) {
	summary := contracts.PaymentEventProcessed{
		EventID:         uuid.New().String(),
		GatewayEventID:  event.ID,
		EventType:       string(event.Type),
		PaymentIntentID: intentID,
		ChargeID:        chargeID,
		Status:          status,
		Amount:          amount,
		Currency:        currency,
		Processed:       d.now().UTC(),
	}
	if err := d.events.EnqueueSummary(ctx, summary); err != nil {
		d.logger.Warn("enqueue summary failed", "event_id", event.ID, "err", err)
	}
	if d.feed != nil && intentID != "" {
		d.feed.BroadcastPaymentUpdate(intentID, string(event.Type), status)
	}
}
