package notify

import "time"

type EventType string

const (
	EventInterestCreated        EventType = "interest.created"
	EventInterestPromoted       EventType = "interest.promoted"
	EventInterestWithdrawn      EventType = "interest.withdrawn"
	EventInterestRemoved        EventType = "interest.removed"
	EventListingStatusChanged   EventType = "listing.status_changed"
	EventCertificationRequested EventType = "certification.requested"
	EventDocumentSubmitted      EventType = "certification.submitted"
	EventCertificationReviewed  EventType = "certification.reviewed"
	EventSchedulingApproved     EventType = "scheduling.approved"
	EventOpenDayCreated         EventType = "visit.open_day_created"
	EventVisitBooked            EventType = "visit.booked"
	EventBookingConfirmed       EventType = "visit.booking_confirmed"
	EventBookingCancelled       EventType = "visit.booking_cancelled"
	EventAttendanceRecorded     EventType = "visit.attendance_recorded"
	EventTenantBlocked          EventType = "tenant.blocked"
)

// Event is a notification for one recipient
type Event struct {
	Type        EventType `json:"type"`
	RecipientID uint      `json:"recipient_id"`
	ListingID   uint      `json:"listing_id,omitempty"`
	InterestID  uint      `json:"interest_id,omitempty"`
	Message     string    `json:"message"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher hands events to the delivery channels. Dispatch never blocks
// on delivery and never reports delivery failures to the caller.
type Dispatcher interface {
	Dispatch(events ...Event)
}

// Discard drops every event
type Discard struct{}

func (Discard) Dispatch(...Event) {}
