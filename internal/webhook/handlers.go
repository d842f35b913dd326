package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"limoride/webhook-service/internal/notify"
	"limoride/webhook-service/internal/reservation"

	"github.com/stripe/stripe-go/v76"
)

// Payment status values as reported to notifications, the summary stream and
// the live feed.
const (
	StatusPaid          = "Paid"
	StatusFailed        = "Failed"
	StatusDisputed      = "Disputed"
	StatusDisputeClosed = "DisputeClosed"
	StatusRefunded      = "Refunded"
	StatusCanceled      = "Canceled"
	StatusExpired       = "Expired"
)

func (d *Dispatcher) handlePaymentSucceeded(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		d.logger.Error("malformed payment intent payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["paymentIntentId"] = intent.ID

	// The event's own timestamp is the idempotency key component: the same
	// logical success can be redelivered, a later retry-after-decline success
	// arrives with a different timestamp and must notify again.
	eventTime := eventTimestamp(event.Created)

	sent, err := d.events.NotificationsSent(ctx, event.ID)
	if err != nil {
		d.logger.Warn("idempotency lookup failed", "event_id", event.ID, "err", err)
	}
	alreadyFlagged := intent.Metadata["emailsSent"] == "true" &&
		intent.Metadata["lastSuccessEmailTimestamp"] == eventTime
	if sent || alreadyFlagged {
		d.logger.Info("success notifications already sent",
			"payment_intent_id", intent.ID, "event_time", eventTime)
		resp["status"] = "skipped_already_processed"
		return resp
	}

	info, ok := d.buildReservation(ctx, event, intent.ID, reservation.PaymentDetails{
		Method:    paymentMethod(intent.PaymentMethodTypes),
		Amount:    moneyAmount(intent.Amount),
		Currency:  currencyCode(string(intent.Currency)),
		Timestamp: eventTime,
		Reference: intent.ID,
		Status:    StatusPaid,
	})
	if !ok {
		return resp
	}

	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject:     fmt.Sprintf("Booking paid: %.2f %s", info.Payment.Amount, info.Payment.Currency),
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"payment_intent_id", intent.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	// Customer email and the voice call are gated on the admin send: a dead
	// primary channel points at a systemic problem, not something to page on.
	if info.Email == "" {
		d.logger.Info("no customer email on reservation, skipping customer notification",
			"payment_intent_id", intent.ID)
	} else {
		custRes, err := d.notifier.SendCustomerNotification(ctx, notify.CustomerNotification{
			Kind:        notify.CustomerKindConfirmation,
			Reservation: info,
		})
		if err != nil || !custRes.Success {
			d.logger.Error("customer notification failed",
				"payment_intent_id", intent.ID, "err", err, "send_error", custRes.Error)
		}
	}
	voiceRes, err := d.notifier.SendVoiceNotification(ctx, notify.VoiceNotification{Reservation: info})
	if err != nil || !voiceRes.Success {
		d.logger.Error("voice notification failed",
			"payment_intent_id", intent.ID, "err", err, "send_error", voiceRes.Error)
	}

	metadata := map[string]string{
		"emailsSent":                "true",
		"emailSentTimestamp":        isoTime(d.now()),
		"lastSuccessEmailTimestamp": eventTime,
	}
	if err := d.gateway.UpdateIntentMetadata(ctx, intent.ID, metadata); err != nil {
		d.logger.Warn("metadata write-back failed", "payment_intent_id", intent.ID, "err", err)
	}
	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, intent.ID, "", StatusPaid, info.Payment.Amount, info.Payment.Currency)
	return resp
}

func (d *Dispatcher) handlePaymentFailed(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		d.logger.Error("malformed payment intent payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["paymentIntentId"] = intent.ID

	reason := "unknown"
	var errMsg, errCode, declineCode string
	if intent.LastPaymentError != nil {
		errMsg = intent.LastPaymentError.Msg
		errCode = string(intent.LastPaymentError.Code)
		declineCode = string(intent.LastPaymentError.DeclineCode)
		if errCode != "" {
			reason = errCode
		}
	}

	// Every failure is distinct and actionable, so no idempotency gate here.
	metadata := map[string]string{
		"lastFailureTimestamp": eventTimestamp(event.Created),
		"lastFailureReason":    reason,
	}
	if err := d.gateway.UpdateIntentMetadata(ctx, intent.ID, metadata); err != nil {
		d.logger.Warn("metadata write-back failed", "payment_intent_id", intent.ID, "err", err)
	}

	info, ok := d.buildReservation(ctx, event, intent.ID, reservation.PaymentDetails{
		Method:      paymentMethod(intent.PaymentMethodTypes),
		Amount:      moneyAmount(intent.Amount),
		Currency:    currencyCode(string(intent.Currency)),
		Timestamp:   eventTimestamp(event.Created),
		Reference:   intent.ID,
		Status:      StatusFailed,
		Error:       errMsg,
		ErrorCode:   errCode,
		DeclineCode: declineCode,
	})
	if !ok {
		return resp
	}

	// Failures are admin-only: the customer already saw the decline in the
	// checkout UI.
	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject:     fmt.Sprintf("Payment failed: %.2f %s", info.Payment.Amount, info.Payment.Currency),
		IsUrgent:    true,
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"payment_intent_id", intent.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, intent.ID, "", StatusFailed, info.Payment.Amount, info.Payment.Currency)
	return resp
}

// requires_action is an intermediate state the checkout frontend already
// handles interactively; acknowledged without side effects.
func (d *Dispatcher) handleRequiresAction(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		d.logger.Error("malformed payment intent payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["paymentIntentId"] = intent.ID
	d.logger.Info("payment requires action, no notification", "payment_intent_id", intent.ID)
	return resp
}

func (d *Dispatcher) handlePaymentCanceled(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		d.logger.Error("malformed payment intent payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["paymentIntentId"] = intent.ID

	reason := string(intent.CancellationReason)
	if reason == "" {
		reason = "No reason provided"
	}

	info, ok := d.buildReservation(ctx, event, intent.ID, reservation.PaymentDetails{
		Method:    paymentMethod(intent.PaymentMethodTypes),
		Amount:    moneyAmount(intent.Amount),
		Currency:  currencyCode(string(intent.Currency)),
		Timestamp: eventTimestamp(event.Created),
		Reference: intent.ID,
		Status:    StatusCanceled,
		Reason:    reason,
	})
	if !ok {
		return resp
	}

	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject: fmt.Sprintf("Booking canceled: %.2f %s (%s)",
			info.Payment.Amount, info.Payment.Currency, reason),
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"payment_intent_id", intent.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, intent.ID, "", StatusCanceled, info.Payment.Amount, info.Payment.Currency)
	return resp
}

func (d *Dispatcher) handleDisputeCreated(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		d.logger.Error("malformed dispute payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["disputeId"] = dispute.ID

	// Disputes carry a charge reference, not an intent: one extra hop.
	var chargeID, intentID string
	if dispute.Charge != nil {
		chargeID = dispute.Charge.ID
		resp["chargeId"] = chargeID
	}
	if chargeID != "" {
		ch, err := d.gateway.Charge(ctx, chargeID)
		if err != nil {
			d.logger.Error("charge lookup failed",
				"event_id", event.ID, "charge_id", chargeID, "err", err)
			d.markError(ctx, event.ID, "charge lookup failed: "+err.Error())
			return resp
		}
		if ch.PaymentIntent != nil {
			intentID = ch.PaymentIntent.ID
		}
	}

	dueBy := "Not specified"
	if dispute.EvidenceDetails != nil && dispute.EvidenceDetails.DueBy > 0 {
		dueBy = eventTimestamp(dispute.EvidenceDetails.DueBy)
	}

	info, ok := d.buildReservation(ctx, event, intentID, reservation.PaymentDetails{
		Method:        "card",
		Amount:        moneyAmount(dispute.Amount),
		Currency:      currencyCode(string(dispute.Currency)),
		Timestamp:     eventTimestamp(event.Created),
		Reference:     chargeID,
		Status:        StatusDisputed,
		DisputeID:     dispute.ID,
		DisputeReason: string(dispute.Reason),
		DisputeStatus: string(dispute.Status),
		EvidenceDueBy: dueBy,
	})
	if !ok {
		return resp
	}

	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject:     fmt.Sprintf("Payment disputed: %.2f %s", info.Payment.Amount, info.Payment.Currency),
		IsUrgent:    true,
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"dispute_id", dispute.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, intentID, chargeID, StatusDisputed, info.Payment.Amount, info.Payment.Currency)
	return resp
}

// Dispute resolution reports only the dispute facts. The original booking
// context is no longer actionable at this point, so no session lookup.
func (d *Dispatcher) handleDisputeClosed(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		d.logger.Error("malformed dispute payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["disputeId"] = dispute.ID

	var chargeID string
	if dispute.Charge != nil {
		chargeID = dispute.Charge.ID
		resp["chargeId"] = chargeID
	}

	outcome := string(dispute.Status)
	info := reservation.Build(nil, reservation.PaymentDetails{
		Method:        "card",
		Amount:        moneyAmount(dispute.Amount),
		Currency:      currencyCode(string(dispute.Currency)),
		Timestamp:     eventTimestamp(event.Created),
		Reference:     chargeID,
		Status:        StatusDisputeClosed,
		DisputeID:     dispute.ID,
		DisputeStatus: outcome,
	})

	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject: fmt.Sprintf("Dispute %s: %.2f %s",
			outcome, info.Payment.Amount, info.Payment.Currency),
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"dispute_id", dispute.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, "", chargeID, StatusDisputeClosed, info.Payment.Amount, info.Payment.Currency)
	return resp
}

func (d *Dispatcher) handleChargeRefunded(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		d.logger.Error("malformed charge payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["chargeId"] = charge.ID

	var intentID string
	if charge.PaymentIntent != nil {
		intentID = charge.PaymentIntent.ID
	}

	reason := "No reason provided"
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		if r := string(charge.Refunds.Data[0].Reason); r != "" {
			reason = r
		}
	}

	// A partial refund reports the refunded figure, not the original charge.
	info, ok := d.buildReservation(ctx, event, intentID, reservation.PaymentDetails{
		Method:    "card",
		Amount:    moneyAmount(charge.AmountRefunded),
		Currency:  currencyCode(string(charge.Currency)),
		Timestamp: eventTimestamp(event.Created),
		Reference: charge.ID,
		Status:    StatusRefunded,
		Reason:    reason,
	})
	if !ok {
		return resp
	}

	notified := false
	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject:     fmt.Sprintf("Payment refunded: %.2f %s", info.Payment.Amount, info.Payment.Currency),
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"charge_id", charge.ID, "err", err, "send_error", adminRes.Error)
	} else {
		notified = true
	}

	// The refund receipt is not gated on the admin send.
	if info.Email != "" {
		custRes, err := d.notifier.SendCustomerNotification(ctx, notify.CustomerNotification{
			Kind:        notify.CustomerKindRefundReceipt,
			Reservation: info,
		})
		if err != nil || !custRes.Success {
			d.logger.Error("customer notification failed",
				"charge_id", charge.ID, "err", err, "send_error", custRes.Error)
		} else {
			notified = true
		}
	}

	if notified {
		d.markNotified(ctx, event.ID)
	} else {
		d.markError(ctx, event.ID, "all notification sends failed")
	}
	d.finish(ctx, event, intentID, charge.ID, StatusRefunded, info.Payment.Amount, info.Payment.Currency)
	return resp
}

func (d *Dispatcher) handleChargeExpired(ctx context.Context, event stripe.Event) map[string]any {
	resp := ack(event)

	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		d.logger.Error("malformed charge payload", "event_id", event.ID, "err", err)
		return resp
	}
	resp["chargeId"] = charge.ID

	var intentID string
	if charge.PaymentIntent != nil {
		intentID = charge.PaymentIntent.ID
	}

	info, ok := d.buildReservation(ctx, event, intentID, reservation.PaymentDetails{
		Method:    "card",
		Amount:    moneyAmount(charge.Amount),
		Currency:  currencyCode(string(charge.Currency)),
		Timestamp: eventTimestamp(charge.Created),
		Reference: charge.ID,
		Status:    StatusExpired,
	})
	if !ok {
		return resp
	}

	adminRes, err := d.notifier.SendAdminNotification(ctx, notify.AdminNotification{
		Subject:     fmt.Sprintf("Checkout expired: %.2f %s", info.Payment.Amount, info.Payment.Currency),
		Reservation: info,
	})
	if err != nil || !adminRes.Success {
		d.logger.Error("admin notification failed",
			"charge_id", charge.ID, "err", err, "send_error", adminRes.Error)
		d.markError(ctx, event.ID, "admin notification failed")
		return resp
	}

	d.markNotified(ctx, event.ID)
	d.finish(ctx, event, intentID, charge.ID, StatusExpired, info.Payment.Amount, info.Payment.Currency)
	return resp
}
