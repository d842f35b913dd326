package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"limoride/webhook-service/pkg/contracts"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notify status values for a logged event.
const (
	StatusNone   = "none"
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Entry is one verified gateway event as recorded in webhook_events.
type Entry struct {
	EventID         string
	EventType       string
	PaymentIntentID string
	ChargeID        string
	Payload         []byte
}

// Store persists verified webhook events. It is the primary idempotency
// record: a success event whose row is already marked sent is not
// re-notified, regardless of what the gateway-side metadata says.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Record inserts the event, keeping the original row on redelivery.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	payload := entry.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, payment_intent_id, charge_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		entry.EventID, entry.EventType, entry.PaymentIntentID, entry.ChargeID, payload,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

func (s *Store) NotificationsSent(ctx context.Context, eventID string) (bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT notify_status FROM webhook_events WHERE event_id = $1`,
		eventID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select webhook event: %w", err)
	}
	return status == StatusSent, nil
}

func (s *Store) MarkNotified(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET notify_status = $2, processed_at = NOW()
		WHERE event_id = $1`,
		eventID, StatusSent,
	)
	if err != nil {
		return fmt.Errorf("mark event notified: %w", err)
	}
	return nil
}

func (s *Store) MarkError(ctx context.Context, eventID, message string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET notify_status = $2, error = $3, processed_at = NOW()
		WHERE event_id = $1`,
		eventID, StatusFailed, message,
	)
	if err != nil {
		return fmt.Errorf("mark event error: %w", err)
	}
	return nil
}

// LatestStatus returns the notify status of the most recent event logged for
// a payment intent, or empty when none exist.
func (s *Store) LatestStatus(ctx context.Context, intentID string) (string, error) {
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT notify_status
		FROM webhook_events
		WHERE payment_intent_id = $1
		ORDER BY received_at DESC
		LIMIT 1`,
		intentID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select latest status: %w", err)
	}
	return status, nil
}

// EnqueueSummary stages a processed-event summary for the outbox relay.
func (s *Store) EnqueueSummary(ctx context.Context, evt contracts.PaymentEventProcessed) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO webhook_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)`,
		evt.EventID, evt.EventType, payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
