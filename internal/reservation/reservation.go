package reservation

// RouteInfo carries the pre-computed route estimate from the booking flow.
// It is only attached when both values were stored on the session.
type RouteInfo struct {
	Distance string `json:"distance"`
	Duration string `json:"duration"`
}

// PaymentDetails is the payment slice of a reservation. Amount and currency
// come from the triggering event's payload, not from session metadata; the
// event-specific fields are filled by the branch that builds the record.
type PaymentDetails struct {
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Timestamp string  `json:"timestamp"`
	Reference string  `json:"reference"`
	Status    string  `json:"status"`

	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	DeclineCode string `json:"declineCode,omitempty"`

	DisputeID     string `json:"disputeId,omitempty"`
	DisputeReason string `json:"disputeReason,omitempty"`
	DisputeStatus string `json:"disputeStatus,omitempty"`
	EvidenceDueBy string `json:"evidenceDueBy,omitempty"`

	Reason string `json:"reason,omitempty"`

	BookingSource    string `json:"bookingSource,omitempty"`
	BookingTimestamp string `json:"bookingTimestamp,omitempty"`
	Locale           string `json:"locale,omitempty"`
}

// Info is the normalized reservation record handed to the notification
// senders. Built fresh per event, never persisted.
type Info struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Phone     string `json:"phone"`

	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Pickup     string   `json:"pickup"`
	Dropoff    string   `json:"dropoff"`
	ExtraStops []string `json:"extraStops"`

	IsHourly         bool   `json:"isHourly"`
	IsSpecialRequest bool   `json:"isSpecialRequest"`
	Hours            string `json:"hours,omitempty"`

	VehicleID   string `json:"vehicleId"`
	VehicleName string `json:"vehicleName"`

	Passengers   int `json:"passengers"`
	Bags         int `json:"bags"`
	BoosterSeats int `json:"boosterSeats"`
	ChildSeats   int `json:"childSeats"`
	SkiEquipment int `json:"skiEquipment"`

	FlightNumber          string `json:"flightNumber,omitempty"`
	MeetingBoard          string `json:"meetingBoard,omitempty"`
	PlannedActivities     string `json:"plannedActivities,omitempty"`
	SpecialRequestDetails string `json:"specialRequestDetails,omitempty"`
	AdditionalRequests    string `json:"additionalRequests,omitempty"`
	ReferenceNumber       string `json:"referenceNumber,omitempty"`
	ReceiveReceipt        bool   `json:"receiveReceipt"`

	Route *RouteInfo `json:"routeInfo,omitempty"`

	Payment PaymentDetails `json:"paymentDetails"`
}
