package notify

import "limoride/webhook-service/internal/reservation"

// SendResult is the shape every sender returns. Success false with an empty
// Error still counts as a failed send.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	CallID    string `json:"callId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AdminNotification is an email to the dispatch desk.
type AdminNotification struct {
	Subject     string           `json:"subject"`
	IsUrgent    bool             `json:"isUrgent"`
	AdminEmail  string           `json:"adminEmail"`
	Reservation reservation.Info `json:"reservation"`
}

// CustomerNotification is a customer-facing email. Kind distinguishes the
// booking confirmation from the refund receipt.
type CustomerNotification struct {
	Kind        string           `json:"kind"`
	Reservation reservation.Info `json:"reservation"`
}

const (
	CustomerKindConfirmation  = "confirmation"
	CustomerKindRefundReceipt = "refund_receipt"
)

// VoiceNotification triggers an automated call to the dispatch desk phone.
type VoiceNotification struct {
	AdminPhone  string           `json:"adminPhone"`
	Reservation reservation.Info `json:"reservation"`
}
