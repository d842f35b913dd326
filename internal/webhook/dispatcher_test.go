package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"limoride/webhook-service/internal/eventlog"
	"limoride/webhook-service/internal/notify"
	"limoride/webhook-service/pkg/contracts"

	"github.com/stripe/stripe-go/v76"
)

const testSecret = "whsec_test_secret"

type fakeGateway struct {
	session      *stripe.CheckoutSession
	sessionErr   error
	sessionCalls int
	charge       *stripe.Charge
	chargeErr    error
	updates      []map[string]string
}

func (g *fakeGateway) SessionByIntent(_ context.Context, _ string) (*stripe.CheckoutSession, error) {
	g.sessionCalls++
	return g.session, g.sessionErr
}

func (g *fakeGateway) Charge(_ context.Context, _ string) (*stripe.Charge, error) {
	return g.charge, g.chargeErr
}

func (g *fakeGateway) UpdateIntentMetadata(_ context.Context, _ string, metadata map[string]string) error {
	g.updates = append(g.updates, metadata)
	return nil
}

type fakeNotifier struct {
	adminRes notify.SendResult
	adminErr error
	custRes  notify.SendResult
	custErr  error
	voiceRes notify.SendResult
	voiceErr error

	admin    []notify.AdminNotification
	customer []notify.CustomerNotification
	voice    []notify.VoiceNotification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		adminRes: notify.SendResult{Success: true, MessageID: "msg_admin"},
		custRes:  notify.SendResult{Success: true, MessageID: "msg_cust"},
		voiceRes: notify.SendResult{Success: true, CallID: "call_1"},
	}
}

func (n *fakeNotifier) SendAdminNotification(_ context.Context, m notify.AdminNotification) (notify.SendResult, error) {
	n.admin = append(n.admin, m)
	return n.adminRes, n.adminErr
}

func (n *fakeNotifier) SendCustomerNotification(_ context.Context, m notify.CustomerNotification) (notify.SendResult, error) {
	n.customer = append(n.customer, m)
	return n.custRes, n.custErr
}

func (n *fakeNotifier) SendVoiceNotification(_ context.Context, m notify.VoiceNotification) (notify.SendResult, error) {
	n.voice = append(n.voice, m)
	return n.voiceRes, n.voiceErr
}

type memLog struct {
	recorded  []eventlog.Entry
	sent      map[string]bool
	failed    map[string]string
	summaries []contracts.PaymentEventProcessed
}

func newMemLog() *memLog {
	return &memLog{sent: map[string]bool{}, failed: map[string]string{}}
}

func (m *memLog) Record(_ context.Context, e eventlog.Entry) error {
	m.recorded = append(m.recorded, e)
	return nil
}

func (m *memLog) NotificationsSent(_ context.Context, id string) (bool, error) {
	return m.sent[id], nil
}

func (m *memLog) MarkNotified(_ context.Context, id string) error {
	m.sent[id] = true
	return nil
}

func (m *memLog) MarkError(_ context.Context, id, msg string) error {
	m.failed[id] = msg
	return nil
}

func (m *memLog) EnqueueSummary(_ context.Context, e contracts.PaymentEventProcessed) error {
	m.summaries = append(m.summaries, e)
	return nil
}

func newTestDispatcher(gw *fakeGateway, n *fakeNotifier, log *memLog) *Dispatcher {
	d := NewDispatcher(testSecret, gw, n, log, discardLogger())
	d.now = func() time.Time { return time.Unix(1700000100, 0) }
	return d
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedHeader(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func dispatch(d *Dispatcher, payload []byte) (int, map[string]any) {
	return d.Dispatch(context.Background(), payload, signedHeader(payload, time.Now()))
}

func eventJSON(id, typ string, created int64, object string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"created":%d,"data":{"object":%s}}`,
		id, typ, created, object,
	))
}

func sessionWithMetadata(metadata map[string]string) *stripe.CheckoutSession {
	return &stripe.CheckoutSession{ID: "cs_1", Metadata: metadata}
}

func TestDispatchMissingSignature(t *testing.T) {
	gw := &fakeGateway{}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	status, resp := d.Dispatch(context.Background(), []byte(`{}`), "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp["error"] != "missing_signature" {
		t.Errorf("error = %v, want missing_signature", resp["error"])
	}
	if len(n.admin)+len(n.customer)+len(n.voice) != 0 {
		t.Errorf("notifications sent on missing signature")
	}
}

func TestDispatchInvalidSignature(t *testing.T) {
	gw := &fakeGateway{}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	status, resp := d.Dispatch(context.Background(), payload, "t=1,v1=deadbeef")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp["error"] != "signature_verification_failed" {
		t.Errorf("error = %v, want signature_verification_failed", resp["error"])
	}
	if len(n.admin)+len(n.customer)+len(n.voice) != 0 {
		t.Errorf("notifications sent on invalid signature")
	}
	if len(gw.updates) != 0 {
		t.Errorf("metadata written on invalid signature")
	}
}

func TestDispatchEventWithoutData(t *testing.T) {
	gw := &fakeGateway{}
	n := newFakeNotifier()
	log := newMemLog()
	d := newTestDispatcher(gw, n, log)

	// Signed and structurally valid JSON, but no data member at all.
	payload := []byte(`{"id":"evt_nodata","object":"event","type":"payment_intent.succeeded","created":1700000000}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if resp["error"] != "malformed_event" {
		t.Errorf("error = %v, want malformed_event", resp["error"])
	}
	if len(log.recorded) != 0 {
		t.Errorf("event recorded despite missing data object")
	}
	if len(n.admin)+len(n.customer)+len(n.voice) != 0 {
		t.Errorf("notifications sent for event without data object")
	}
	if len(gw.updates) != 0 {
		t.Errorf("metadata written for event without data object")
	}
}

func TestDispatchMissingSecret(t *testing.T) {
	d := NewDispatcher("", &fakeGateway{}, newFakeNotifier(), newMemLog(), discardLogger())

	status, resp := d.Dispatch(context.Background(), []byte(`{}`), "t=1,v1=abc")
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if resp["error"] != "configuration_error" {
		t.Errorf("error = %v, want configuration_error", resp["error"])
	}
}

func TestDispatchUnknownType(t *testing.T) {
	n := newFakeNotifier()
	d := newTestDispatcher(&fakeGateway{}, n, newMemLog())

	payload := eventJSON("evt_x", "customer.created", 1700000000, `{"id":"cus_1"}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp["received"] != true || resp["handled"] != false {
		t.Errorf("resp = %v, want received:true handled:false", resp)
	}
	if len(n.admin) != 0 {
		t.Errorf("notification sent for unknown type")
	}
}

func TestSuccessScenario(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{
		"email":   "a@b.com",
		"pickup":  "Zurich",
		"dropoff": "Geneva",
		"date":    "2025-01-01",
		"time":    "10:00",
	})}
	n := newFakeNotifier()
	log := newMemLog()
	d := newTestDispatcher(gw, n, log)

	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp["received"] != true || resp["type"] != "payment_intent.succeeded" || resp["paymentIntentId"] != "pi_1" {
		t.Errorf("unexpected response: %v", resp)
	}
	if _, skipped := resp["status"]; skipped {
		t.Errorf("first delivery reported as skipped: %v", resp)
	}

	if len(n.admin) != 1 || len(n.customer) != 1 || len(n.voice) != 1 {
		t.Fatalf("sends = admin %d customer %d voice %d, want 1/1/1",
			len(n.admin), len(n.customer), len(n.voice))
	}
	res := n.admin[0].Reservation
	if res.Pickup != "Zurich" || res.Dropoff != "Geneva" || res.Email != "a@b.com" {
		t.Errorf("reservation not built from session metadata: %+v", res)
	}
	if res.Payment.Amount != 250.00 || res.Payment.Currency != "CHF" {
		t.Errorf("payment = %.2f %s, want 250.00 CHF", res.Payment.Amount, res.Payment.Currency)
	}

	if len(gw.updates) != 1 {
		t.Fatalf("metadata updates = %d, want 1", len(gw.updates))
	}
	md := gw.updates[0]
	if md["emailsSent"] != "true" {
		t.Errorf("emailsSent = %q, want true", md["emailsSent"])
	}
	if md["lastSuccessEmailTimestamp"] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("lastSuccessEmailTimestamp = %q", md["lastSuccessEmailTimestamp"])
	}
	if !log.sent["evt_1"] {
		t.Errorf("event not marked notified")
	}
	if len(log.summaries) != 1 || log.summaries[0].Status != StatusPaid {
		t.Errorf("summary not enqueued: %v", log.summaries)
	}
}

func TestSuccessRedelivery(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	log := newMemLog()
	d := newTestDispatcher(gw, n, log)

	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	dispatch(d, payload)

	_, resp := dispatch(d, payload)
	if resp["status"] != "skipped_already_processed" {
		t.Fatalf("redelivery status = %v, want skipped_already_processed", resp["status"])
	}
	if len(n.admin) != 1 || len(n.customer) != 1 || len(n.voice) != 1 {
		t.Errorf("redelivery sent additional notifications: admin %d customer %d voice %d",
			len(n.admin), len(n.customer), len(n.voice))
	}
}

func TestSuccessSkipsWhenMetadataFlagged(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(nil)}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	// Intent metadata already carries this exact event timestamp, e.g. the
	// owned log was wiped but the gateway-side flags survived.
	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf",
		  "metadata":{"emailsSent":"true","lastSuccessEmailTimestamp":"2023-11-14T22:13:20.000Z"}}`)
	_, resp := dispatch(d, payload)
	if resp["status"] != "skipped_already_processed" {
		t.Fatalf("status = %v, want skipped_already_processed", resp["status"])
	}
	if len(n.admin) != 0 {
		t.Errorf("notification sent despite metadata flags")
	}
}

func TestSuccessDistinctEventsNotifyTwice(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	first := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	dispatch(d, first)

	// Same intent, later success with a different timestamp: a retry after an
	// earlier decline. Must notify again even though evt_1 was processed.
	second := eventJSON("evt_2", "payment_intent.succeeded", 1700000500,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf",
		  "metadata":{"emailsSent":"true","lastSuccessEmailTimestamp":"2023-11-14T22:13:20.000Z"}}`)
	_, resp := dispatch(d, second)
	if _, skipped := resp["status"]; skipped {
		t.Fatalf("distinct success event skipped: %v", resp)
	}
	if len(n.admin) != 2 {
		t.Errorf("admin sends = %d, want 2", len(n.admin))
	}
}

func TestSuccessAdminGate(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	n.adminRes = notify.SendResult{Success: false, Error: "smtp down"}
	log := newMemLog()
	d := newTestDispatcher(gw, n, log)

	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["received"] != true {
		t.Fatalf("failed admin send must still acknowledge: %d %v", status, resp)
	}
	if len(n.customer) != 0 || len(n.voice) != 0 {
		t.Errorf("customer/voice attempted after failed admin send")
	}
	if len(gw.updates) != 0 {
		t.Errorf("idempotency flags written after failed admin send")
	}
	if log.sent["evt_1"] {
		t.Errorf("event marked notified after failed admin send")
	}
}

func TestSuccessNoCustomerEmail(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"pickup": "Zurich"})}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "payment_intent.succeeded", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	dispatch(d, payload)

	if len(n.customer) != 0 {
		t.Errorf("customer notification sent without an email address")
	}
	if len(n.admin) != 1 || len(n.voice) != 1 {
		t.Errorf("admin/voice sends = %d/%d, want 1/1", len(n.admin), len(n.voice))
	}
}

func TestFailureBranch(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "payment_intent.payment_failed", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{},
		  "last_payment_error":{"code":"card_declined","decline_code":"insufficient_funds","message":"Your card was declined."}}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["paymentIntentId"] != "pi_1" {
		t.Fatalf("unexpected ack: %d %v", status, resp)
	}

	if len(gw.updates) != 1 {
		t.Fatalf("metadata updates = %d, want 1", len(gw.updates))
	}
	if gw.updates[0]["lastFailureReason"] != "card_declined" {
		t.Errorf("lastFailureReason = %q", gw.updates[0]["lastFailureReason"])
	}
	if gw.updates[0]["lastFailureTimestamp"] != "2023-11-14T22:13:20.000Z" {
		t.Errorf("lastFailureTimestamp = %q", gw.updates[0]["lastFailureTimestamp"])
	}

	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	if !n.admin[0].IsUrgent {
		t.Errorf("failure notification not urgent")
	}
	if !strings.Contains(n.admin[0].Subject, "250.00 CHF") {
		t.Errorf("subject = %q, want amount and currency", n.admin[0].Subject)
	}
	pd := n.admin[0].Reservation.Payment
	if pd.Status != StatusFailed || pd.ErrorCode != "card_declined" || pd.DeclineCode != "insufficient_funds" {
		t.Errorf("payment details = %+v", pd)
	}
	if len(n.customer) != 0 {
		t.Errorf("customer notified about a failure")
	}
}

func TestFailureAlwaysWritesBack(t *testing.T) {
	// No error detail at all: reason defaults to unknown, write-back still
	// happens on every failure.
	gw := &fakeGateway{session: sessionWithMetadata(nil)}
	d := newTestDispatcher(gw, newFakeNotifier(), newMemLog())

	payload := eventJSON("evt_1", "payment_intent.payment_failed", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	dispatch(d, payload)

	if len(gw.updates) != 1 || gw.updates[0]["lastFailureReason"] != "unknown" {
		t.Errorf("updates = %v, want lastFailureReason unknown", gw.updates)
	}
}

func TestRequiresActionNoSideEffects(t *testing.T) {
	gw := &fakeGateway{}
	n := newFakeNotifier()
	log := newMemLog()
	d := newTestDispatcher(gw, n, log)

	payload := eventJSON("evt_1", "payment_intent.requires_action", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["paymentIntentId"] != "pi_1" {
		t.Fatalf("unexpected ack: %d %v", status, resp)
	}
	if gw.sessionCalls != 0 || len(gw.updates) != 0 || len(n.admin) != 0 || len(log.summaries) != 0 {
		t.Errorf("requires_action produced side effects")
	}
}

func TestCanceledBranch(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "payment_intent.canceled", 1700000000,
		`{"id":"pi_1","object":"payment_intent","amount":25000,"currency":"chf","metadata":{}}`)
	dispatch(d, payload)

	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	if !strings.Contains(n.admin[0].Subject, "No reason provided") {
		t.Errorf("subject = %q, want default cancellation reason", n.admin[0].Subject)
	}
	if n.admin[0].Reservation.Payment.Status != StatusCanceled {
		t.Errorf("status = %q, want %q", n.admin[0].Reservation.Payment.Status, StatusCanceled)
	}
	if len(n.customer) != 0 {
		t.Errorf("customer notified about a cancellation")
	}
}

func TestDisputeCreated(t *testing.T) {
	gw := &fakeGateway{
		session: sessionWithMetadata(map[string]string{"email": "a@b.com", "pickup": "Zurich"}),
		charge:  &stripe.Charge{ID: "ch_1", PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"}},
	}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.dispute.created", 1700000000,
		`{"id":"dp_1","object":"dispute","amount":25000,"currency":"chf","charge":"ch_1",
		  "reason":"fraudulent","status":"needs_response"}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["disputeId"] != "dp_1" {
		t.Fatalf("unexpected ack: %d %v", status, resp)
	}

	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	if !n.admin[0].IsUrgent {
		t.Errorf("dispute notification not urgent")
	}
	pd := n.admin[0].Reservation.Payment
	if pd.DisputeID != "dp_1" || pd.DisputeReason != "fraudulent" || pd.DisputeStatus != "needs_response" {
		t.Errorf("dispute details = %+v", pd)
	}
	if pd.EvidenceDueBy != "Not specified" {
		t.Errorf("evidenceDueBy = %q, want Not specified", pd.EvidenceDueBy)
	}
	if n.admin[0].Reservation.Pickup != "Zurich" {
		t.Errorf("session metadata not resolved through charge hop")
	}
}

func TestDisputeClosedSkipsSessionLookup(t *testing.T) {
	gw := &fakeGateway{}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.dispute.closed", 1700000000,
		`{"id":"dp_1","object":"dispute","amount":25000,"currency":"chf","charge":"ch_1","status":"won"}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["disputeId"] != "dp_1" || resp["chargeId"] != "ch_1" {
		t.Fatalf("unexpected ack: %d %v", status, resp)
	}
	if gw.sessionCalls != 0 {
		t.Errorf("dispute resolution reconstructed reservation info")
	}
	if len(n.admin) != 1 || !strings.Contains(n.admin[0].Subject, "won") {
		t.Errorf("admin subject = %v, want outcome in subject", n.admin)
	}
}

func TestRefundPartialAmount(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(map[string]string{"email": "a@b.com"})}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.refunded", 1700000000,
		`{"id":"ch_1","object":"charge","amount":10000,"amount_refunded":2500,"currency":"chf",
		  "payment_intent":"pi_1",
		  "refunds":{"object":"list","data":[{"id":"re_1","object":"refund","reason":"requested_by_customer"}]}}`)
	dispatch(d, payload)

	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	pd := n.admin[0].Reservation.Payment
	if pd.Amount != 25.00 {
		t.Errorf("refund amount = %.2f, want 25.00 (partial figure, not original)", pd.Amount)
	}
	if pd.Reason != "requested_by_customer" {
		t.Errorf("refund reason = %q", pd.Reason)
	}
	if len(n.customer) != 1 || n.customer[0].Kind != notify.CustomerKindRefundReceipt {
		t.Errorf("customer receipt = %v, want one refund_receipt", n.customer)
	}
}

func TestRefundBranchIsolation(t *testing.T) {
	gw := &fakeGateway{sessionErr: fmt.Errorf("gateway timeout")}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.refunded", 1700000000,
		`{"id":"ch_1","object":"charge","amount":10000,"amount_refunded":2500,"currency":"chf","payment_intent":"pi_1"}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite lookup failure", status)
	}
	if resp["received"] != true || resp["type"] != "charge.refunded" || resp["chargeId"] != "ch_1" {
		t.Errorf("resp = %v", resp)
	}
	if len(n.admin)+len(n.customer) != 0 {
		t.Errorf("notifications attempted after failed lookup")
	}
}

func TestRefundNoReason(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(nil)}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.refunded", 1700000000,
		`{"id":"ch_1","object":"charge","amount":10000,"amount_refunded":10000,"currency":"chf","payment_intent":"pi_1"}`)
	dispatch(d, payload)

	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	if n.admin[0].Reservation.Payment.Reason != "No reason provided" {
		t.Errorf("reason = %q", n.admin[0].Reservation.Payment.Reason)
	}
}

func TestChargeExpired(t *testing.T) {
	gw := &fakeGateway{session: sessionWithMetadata(nil)}
	n := newFakeNotifier()
	d := newTestDispatcher(gw, n, newMemLog())

	payload := eventJSON("evt_1", "charge.expired", 1700000600,
		`{"id":"ch_1","object":"charge","amount":25000,"currency":"chf","created":1700000000,"payment_intent":"pi_1"}`)
	status, resp := dispatch(d, payload)
	if status != http.StatusOK || resp["chargeId"] != "ch_1" {
		t.Fatalf("unexpected ack: %d %v", status, resp)
	}
	if len(n.admin) != 1 {
		t.Fatalf("admin sends = %d, want 1", len(n.admin))
	}
	pd := n.admin[0].Reservation.Payment
	if pd.Status != StatusExpired {
		t.Errorf("status = %q, want %q", pd.Status, StatusExpired)
	}
	// Timestamp reports the charge's creation, not the event delivery.
	if pd.Timestamp != "2023-11-14T22:13:20.000Z" {
		t.Errorf("timestamp = %q", pd.Timestamp)
	}
}

func TestEventTimestampFormat(t *testing.T) {
	if got := eventTimestamp(1700000000); got != "2023-11-14T22:13:20.000Z" {
		t.Errorf("eventTimestamp = %q", got)
	}
}
