package contracts

import "time"

// PaymentEventProcessed is published on the webhook events exchange after a
// gateway event has been handled. Downstream consumers (ops dashboard,
// analytics) key on GatewayEventID for their own deduplication.
type PaymentEventProcessed struct {
	EventID         string    `json:"event_id"`
	GatewayEventID  string    `json:"gateway_event_id"`
	EventType       string    `json:"event_type"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ChargeID        string    `json:"charge_id,omitempty"`
	Status          string    `json:"status"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Processed       time.Time `json:"processed_at"`
}
