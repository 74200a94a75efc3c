package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/directory"
	"lexhub.org/internal/ids"
	"lexhub.org/internal/workflow"
)

// Service defines the appointment booking workflow.
type Service interface {
	Create(ctx context.Context, userID, lawyerID, consultationType string, scheduledAt time.Time, duration int) (Appointment, error)
	Confirm(ctx context.Context, actorID, id string) (Appointment, error)
	Complete(ctx context.Context, actorID, id string, rating int) (Appointment, error)
	Cancel(ctx context.Context, actorID, id, reason string) (Appointment, error)
	MarkNoShow(ctx context.Context, actorID, id string) (Appointment, error)
	MarkPaid(ctx context.Context, id string) (Appointment, error)
	Get(ctx context.Context, actorID, id string) (Appointment, error)
	ListForUser(ctx context.Context, userID string) ([]Appointment, error)
	ListForLawyer(ctx context.Context, lawyerID string) ([]Appointment, error)
	CancelOpenForUser(ctx context.Context, userID, reason string) (int, error)
}

// InMemory implements Service with in-process concurrency safety. All status
// transitions are serialized under the store mutex, so two simultaneous
// confirms cannot both succeed.
type InMemory struct {
	mu        sync.RWMutex
	appts     map[string]*Appointment
	directory directory.Service
	now       func() time.Time
}

// NewInMemory creates an appointment service backed by the given directory.
func NewInMemory(dir directory.Service) *InMemory {
	return &InMemory{
		appts:     make(map[string]*Appointment),
		directory: dir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Only intended for test use.
func (s *InMemory) SetClock(now func() time.Time) { s.now = now }

func (s *InMemory) Create(ctx context.Context, userID, lawyerID, consultationType string, scheduledAt time.Time, duration int) (Appointment, error) {
	consultationType = strings.ToLower(strings.TrimSpace(consultationType))
	if consultationType != TypeChat && consultationType != TypeVoice && consultationType != TypeVideo {
		return Appointment{}, fmt.Errorf("%w: consultation type %q", ErrInvalidInput, consultationType)
	}
	if !allowedDurations[duration] {
		return Appointment{}, fmt.Errorf("%w: duration must be 15, 30, 45 or 60 minutes", ErrInvalidInput)
	}
	now := s.now()
	scheduledAt = scheduledAt.UTC()
	if !scheduledAt.After(now) {
		return Appointment{}, fmt.Errorf("%w: scheduled time is in the past", ErrInvalidInput)
	}

	lawyer, err := s.directory.GetLawyer(ctx, lawyerID)
	if err != nil {
		return Appointment{}, ErrNotFound
	}
	if !lawyer.Bookable() {
		return Appointment{}, ErrLawyerUnavailable
	}
	if !slotWithinAvailability(lawyer.Availability, scheduledAt, duration) {
		return Appointment{}, ErrSlotUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slotTakenLocked(lawyerID, scheduledAt, duration) {
		return Appointment{}, ErrSlotUnavailable
	}

	a := &Appointment{
		ID:            ids.New(),
		UserID:        userID,
		LawyerID:      lawyerID,
		Type:          consultationType,
		ScheduledAt:   scheduledAt,
		Duration:      duration,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		Fees:          ComputeFees(lawyer.ConsultationFee),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	s.appts[a.ID] = a
	return *a, nil
}

func (s *InMemory) Confirm(ctx context.Context, actorID, id string) (Appointment, error) {
	return s.transition(id, ActionConfirm, func(a *Appointment) error {
		if a.LawyerID != actorID {
			return ErrForbidden
		}
		a.MeetingRoom = "room-" + ids.New()
		return nil
	})
}

func (s *InMemory) Complete(ctx context.Context, actorID, id string, rating int) (Appointment, error) {
	if rating != 0 && (rating < 1 || rating > 5) {
		return Appointment{}, fmt.Errorf("%w: rating must be 1..5", ErrInvalidInput)
	}
	appt, err := s.transition(id, ActionComplete, func(a *Appointment) error {
		if a.LawyerID != actorID {
			return ErrForbidden
		}
		a.Rating = rating
		return nil
	})
	if err != nil {
		return Appointment{}, err
	}
	if rating != 0 {
		if _, err := s.directory.RecordRating(ctx, appt.LawyerID, rating); err != nil {
			return appt, fmt.Errorf("record rating: %w", err)
		}
	}
	return appt, nil
}

func (s *InMemory) Cancel(ctx context.Context, actorID, id, reason string) (Appointment, error) {
	return s.transition(id, ActionCancel, func(a *Appointment) error {
		if a.UserID != actorID && a.LawyerID != actorID {
			return ErrForbidden
		}
		if !a.CanBeCancelled(s.now()) {
			return ErrCancelWindow
		}
		a.CancelReason = strings.TrimSpace(reason)
		return nil
	})
}

func (s *InMemory) MarkNoShow(ctx context.Context, actorID, id string) (Appointment, error) {
	return s.transition(id, ActionNoShow, func(a *Appointment) error {
		if a.LawyerID != actorID {
			return ErrForbidden
		}
		if s.now().Before(a.ScheduledAt) {
			return fmt.Errorf("%w: appointment has not started yet", ErrInvalidInput)
		}
		return nil
	})
}

// MarkPaid records a successful gateway payment against the appointment.
// Called from the payment verification side-effect dispatch, not a handler.
func (s *InMemory) MarkPaid(ctx context.Context, id string) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	a.PaymentStatus = PaymentPaid
	a.UpdatedAt = s.now()
	a.Version++
	return *a, nil
}

func (s *InMemory) Get(ctx context.Context, actorID, id string) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	if a.UserID != actorID && a.LawyerID != actorID {
		return Appointment{}, ErrForbidden
	}
	return *a, nil
}

func (s *InMemory) ListForUser(ctx context.Context, userID string) ([]Appointment, error) {
	return s.list(func(a *Appointment) bool { return a.UserID == userID }), nil
}

func (s *InMemory) ListForLawyer(ctx context.Context, lawyerID string) ([]Appointment, error) {
	return s.list(func(a *Appointment) bool { return a.LawyerID == lawyerID }), nil
}

// CancelOpenForUser is the account-deletion cascade: every still-open
// appointment owned by the user is cancelled regardless of the cutoff.
func (s *InMemory) CancelOpenForUser(ctx context.Context, userID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appts {
		if a.UserID != userID {
			continue
		}
		next, err := Transitions.Apply(a.Status, ActionCancel)
		if err != nil {
			continue
		}
		a.Status = next
		a.CancelReason = reason
		a.UpdatedAt = s.now()
		a.Version++
		n++
	}
	return n, nil
}

// transition applies one lifecycle action under the store lock. The check
// callback runs after the transition is validated but before it commits.
func (s *InMemory) transition(id string, action workflow.Action, check func(*Appointment) error) (Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	next, err := Transitions.Apply(a.Status, action)
	if err != nil {
		return Appointment{}, err
	}
	if check != nil {
		if err := check(a); err != nil {
			return Appointment{}, err
		}
	}
	a.Status = next
	a.UpdatedAt = s.now()
	a.Version++
	return *a, nil
}

func (s *InMemory) list(match func(*Appointment) bool) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.appts {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
	return out
}

// slotTakenLocked reports whether the lawyer already has a live appointment
// overlapping [scheduledAt, scheduledAt+duration).
func (s *InMemory) slotTakenLocked(lawyerID string, scheduledAt time.Time, duration int) bool {
	start := scheduledAt
	end := scheduledAt.Add(time.Duration(duration) * time.Minute)
	for _, a := range s.appts {
		if a.LawyerID != lawyerID {
			continue
		}
		if a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		aStart := a.ScheduledAt
		aEnd := a.ScheduledAt.Add(time.Duration(a.Duration) * time.Minute)
		if start.Before(aEnd) && aStart.Before(end) {
			return true
		}
	}
	return false
}

// slotWithinAvailability checks the requested slot fits entirely inside one
// of the lawyer's windows for that weekday.
func slotWithinAvailability(availability map[time.Weekday][]directory.TimeRange, scheduledAt time.Time, duration int) bool {
	ranges := availability[scheduledAt.Weekday()]
	if len(ranges) == 0 {
		return false
	}
	startMin := scheduledAt.Hour()*60 + scheduledAt.Minute()
	endMin := startMin + duration
	for _, r := range ranges {
		rs, err1 := time.Parse("15:04", r.Start)
		re, err2 := time.Parse("15:04", r.End)
		if err1 != nil || err2 != nil {
			continue
		}
		rsMin := rs.Hour()*60 + rs.Minute()
		reMin := re.Hour()*60 + re.Minute()
		if startMin >= rsMin && endMin <= reMin {
			return true
		}
	}
	return false
}
