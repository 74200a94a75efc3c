package appointment

import (
	"errors"
	"time"

	"lexhub.org/internal/money"
	"lexhub.org/internal/workflow"
)

// Consultation channels.
const (
	TypeChat  = "chat"
	TypeVoice = "voice"
	TypeVideo = "video"
)

// Lifecycle statuses.
const (
	StatusPending   workflow.Status = "pending"
	StatusConfirmed workflow.Status = "confirmed"
	StatusCancelled workflow.Status = "cancelled"
	StatusCompleted workflow.Status = "completed"
	StatusNoShow    workflow.Status = "no_show"
)

// Lifecycle actions.
const (
	ActionConfirm  workflow.Action = "confirm"
	ActionComplete workflow.Action = "complete"
	ActionCancel   workflow.Action = "cancel"
	ActionNoShow   workflow.Action = "no_show"
)

// Transitions is the appointment state machine.
var Transitions = workflow.New("appointment",
	workflow.Edge{From: StatusPending, Action: ActionConfirm, To: StatusConfirmed},
	workflow.Edge{From: StatusPending, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusConfirmed, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusConfirmed, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusConfirmed, Action: ActionNoShow, To: StatusNoShow},
)

// Payment states tracked on the appointment itself.
const (
	PaymentUnpaid   = "unpaid"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Durations (minutes) a consultation may be booked for.
var allowedDurations = map[int]bool{15: true, 30: true, 45: true, 60: true}

// CancelCutoff is how long before the scheduled time cancellation closes.
const CancelCutoff = 2 * time.Hour

// Fees is the consultation fee breakdown in minor units.
type Fees struct {
	Consultation int64 `json:"consultation"`
	Platform     int64 `json:"platform"`
	Total        int64 `json:"total"`
}

// ComputeFees derives the platform surcharge and total from a consultation fee.
func ComputeFees(consultation int64) Fees {
	platform := money.PlatformFee(consultation)
	return Fees{
		Consultation: consultation,
		Platform:     platform,
		Total:        consultation + platform,
	}
}

// Appointment is one booked consultation.
type Appointment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	LawyerID      string          `json:"lawyer_id"`
	Type          string          `json:"consultation_type"`
	ScheduledAt   time.Time       `json:"scheduled_at"`
	Duration      int             `json:"duration"` // minutes
	Status        workflow.Status `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Fees          Fees            `json:"fees"`
	MeetingRoom   string          `json:"meeting_room,omitempty"`
	Rating        int             `json:"rating,omitempty"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

// CanBeCancelled reports whether the appointment may still be cancelled at
// the given instant: more than the cutoff before the scheduled time and not
// already terminal.
func (a *Appointment) CanBeCancelled(now time.Time) bool {
	if !Transitions.Can(a.Status, ActionCancel) {
		return false
	}
	return a.ScheduledAt.Sub(now) > CancelCutoff
}

var (
	ErrNotFound          = errors.New("appointment: not found")
	ErrForbidden         = errors.New("appointment: forbidden")
	ErrInvalidInput      = errors.New("appointment: invalid input")
	ErrLawyerUnavailable = errors.New("appointment: lawyer is not accepting bookings")
	ErrSlotUnavailable   = errors.New("appointment: requested slot is not available")
	ErrCancelWindow      = errors.New("appointment: cancellation window has closed")
)
