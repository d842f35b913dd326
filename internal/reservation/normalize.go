package reservation

import (
	"encoding/json"
	"strconv"
)

// Build maps the flat string metadata stored on a checkout session into a
// structured reservation record. Missing or malformed values never abort the
// build: strings default to empty, counts to zero, flags to false and
// extraStops to an empty list. The booking passthrough fields on payment are
// filled from metadata here; everything else on payment stays as given.
func Build(metadata map[string]string, payment PaymentDetails) Info {
	if metadata == nil {
		metadata = map[string]string{}
	}

	payment.BookingSource = metadata["bookingSource"]
	payment.BookingTimestamp = metadata["bookingTimestamp"]
	payment.Locale = metadata["locale"]

	info := Info{
		Email:     metadata["email"],
		FirstName: metadata["firstName"],
		Phone:     metadata["phone"],

		Date:       metadata["date"],
		Time:       metadata["time"],
		Pickup:     metadata["pickup"],
		Dropoff:    metadata["dropoff"],
		ExtraStops: parseStops(metadata["extraStops"]),

		IsHourly:         metadata["isHourly"] == "true",
		IsSpecialRequest: metadata["isSpecialRequest"] == "true",
		Hours:            metadata["hours"],

		VehicleID:   metadata["vehicleId"],
		VehicleName: metadata["vehicleName"],

		Passengers:   parseCount(metadata["passengers"]),
		Bags:         parseCount(metadata["bags"]),
		BoosterSeats: parseCount(metadata["boosterSeats"]),
		ChildSeats:   parseCount(metadata["childSeats"]),
		SkiEquipment: parseCount(metadata["skiEquipment"]),

		FlightNumber:          metadata["flightNumber"],
		MeetingBoard:          metadata["meetingBoard"],
		PlannedActivities:     metadata["plannedActivities"],
		SpecialRequestDetails: metadata["specialRequestDetails"],
		AdditionalRequests:    metadata["additionalRequests"],
		ReferenceNumber:       metadata["referenceNumber"],
		ReceiveReceipt:        metadata["receiveReceipt"] == "true",

		Payment: payment,
	}

	// Partial route info is useless downstream, attach only when complete.
	distance, duration := metadata["routeDistance"], metadata["routeDuration"]
	if distance != "" && duration != "" {
		info.Route = &RouteInfo{Distance: distance, Duration: duration}
	}

	return info
}

func parseStops(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var stops []string
	if err := json.Unmarshal([]byte(raw), &stops); err != nil || stops == nil {
		return []string{}
	}
	return stops
}

func parseCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
