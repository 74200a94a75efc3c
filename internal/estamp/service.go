package estamp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/ids"
	"lexhub.org/internal/payment"
	"lexhub.org/internal/workflow"
)

// Service defines the e-stamp issuance workflow.
type Service interface {
	Create(ctx context.Context, userID, state, stampType string, parties []Party, consideration, stampValue int64) (EStamp, error)
	InitiatePayment(ctx context.Context, actorID, id, orderID string) (EStamp, error)
	VerifyPayment(ctx context.Context, actorID, id, paymentID, signature string) (EStamp, error)
	MarkPaid(ctx context.Context, id, paymentID string) (EStamp, error)
	Complete(ctx context.Context, actorID, id string) (EStamp, error)
	Cancel(ctx context.Context, actorID, id string) (EStamp, error)
	Get(ctx context.Context, actorID, id string) (EStamp, error)
	ListForUser(ctx context.Context, userID string) ([]EStamp, error)
	VerifyCertificate(ctx context.Context, certificateNumber string) (EStamp, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	stamps map[string]*EStamp
	byCert map[string]string // certificate number -> stamp id
	secret string            // gateway secret for callback signatures
	now    func() time.Time
}

// NewInMemory creates an e-stamp service. secret is the shared gateway
// secret used to check payment callback signatures.
func NewInMemory(secret string) *InMemory {
	return &InMemory{
		stamps: make(map[string]*EStamp),
		byCert: make(map[string]string),
		secret: secret,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Only intended for test use.
func (s *InMemory) SetClock(now func() time.Time) { s.now = now }

// Create registers a draft. When stampValue is zero it is derived from the
// static per-state rate table.
func (s *InMemory) Create(ctx context.Context, userID, state, stampType string, parties []Party, consideration, stampValue int64) (EStamp, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return EStamp{}, fmt.Errorf("%w: state is required", ErrInvalidInput)
	}
	if stampType = strings.TrimSpace(stampType); stampType == "" {
		return EStamp{}, fmt.Errorf("%w: stamp type is required", ErrInvalidInput)
	}
	if len(parties) < 2 {
		return EStamp{}, fmt.Errorf("%w: at least two parties are required", ErrInvalidInput)
	}
	if consideration < 0 || stampValue < 0 {
		return EStamp{}, fmt.Errorf("%w: amounts must be >= 0", ErrInvalidInput)
	}
	if stampValue == 0 {
		stampValue = DefaultStampValue(state, consideration)
	}

	now := s.now()
	e := &EStamp{
		ID:            ids.New(),
		UserID:        userID,
		State:         state,
		StampType:     stampType,
		StampValue:    stampValue,
		Consideration: consideration,
		Parties:       append([]Party(nil), parties...),
		Payment:       PaymentInfo{Status: "unpaid"},
		Status:        StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
	s.mu.Lock()
	s.stamps[e.ID] = e
	s.mu.Unlock()
	return *e, nil
}

// InitiatePayment attaches the gateway order and opens the payment window.
func (s *InMemory) InitiatePayment(ctx context.Context, actorID, id, orderID string) (EStamp, error) {
	if orderID = strings.TrimSpace(orderID); orderID == "" {
		return EStamp{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	return s.transition(id, ActionInitiatePayment, func(e *EStamp) error {
		if e.UserID != actorID {
			return ErrForbidden
		}
		e.Payment.OrderID = orderID
		return nil
	})
}

// VerifyPayment checks the HMAC callback signature over "orderID|paymentID"
// and, on success, issues the certificate.
func (s *InMemory) VerifyPayment(ctx context.Context, actorID, id, paymentID, signature string) (EStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stamps[id]
	if !ok {
		return EStamp{}, ErrNotFound
	}
	if e.UserID != actorID {
		return EStamp{}, ErrForbidden
	}
	if !payment.VerifySignature(e.Payment.OrderID, paymentID, signature, s.secret) {
		return EStamp{}, ErrBadSignature
	}
	return s.stampLocked(e, paymentID)
}

// MarkPaid records a payment already verified by the payment ledger. Called
// from the side-effect dispatch, not a handler.
func (s *InMemory) MarkPaid(ctx context.Context, id, paymentID string) (EStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stamps[id]
	if !ok {
		return EStamp{}, ErrNotFound
	}
	return s.stampLocked(e, paymentID)
}

// stampLocked issues the certificate and transitions to stamped. The
// certificate number is generated only here, once. Caller holds the lock.
func (s *InMemory) stampLocked(e *EStamp, paymentID string) (EStamp, error) {
	next, err := Transitions.Apply(e.Status, ActionStamp)
	if err != nil {
		return EStamp{}, err
	}
	e.Status = next
	e.Payment.PaymentID = strings.TrimSpace(paymentID)
	e.Payment.Status = "paid"

	issuedAt := s.now()
	number, err := certificateNumber(issuedAt)
	if err != nil {
		return EStamp{}, err
	}
	// Probabilistically unique; regenerate on the rare collision.
	for s.byCert[number] != "" {
		if number, err = certificateNumber(issuedAt); err != nil {
			return EStamp{}, err
		}
	}
	e.Certificate = &Certificate{
		Number:    number,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(CertificateValidity),
	}
	s.byCert[number] = e.ID
	e.UpdatedAt = issuedAt
	e.Version++
	return *e, nil
}

func (s *InMemory) Complete(ctx context.Context, actorID, id string) (EStamp, error) {
	return s.transition(id, ActionComplete, func(e *EStamp) error {
		if e.UserID != actorID {
			return ErrForbidden
		}
		return nil
	})
}

func (s *InMemory) Cancel(ctx context.Context, actorID, id string) (EStamp, error) {
	return s.transition(id, ActionCancel, func(e *EStamp) error {
		if e.UserID != actorID {
			return ErrForbidden
		}
		return nil
	})
}

func (s *InMemory) Get(ctx context.Context, actorID, id string) (EStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.stamps[id]
	if !ok {
		return EStamp{}, ErrNotFound
	}
	if e.UserID != actorID {
		return EStamp{}, ErrForbidden
	}
	return *e, nil
}

func (s *InMemory) ListForUser(ctx context.Context, userID string) ([]EStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EStamp
	for _, e := range s.stamps {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// VerifyCertificate is the public, unauthenticated lookup by certificate
// number.
func (s *InMemory) VerifyCertificate(ctx context.Context, certificateNumber string) (EStamp, error) {
	certificateNumber = strings.TrimSpace(certificateNumber)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCert[certificateNumber]
	if !ok {
		return EStamp{}, ErrNotFound
	}
	return *s.stamps[id], nil
}

func (s *InMemory) transition(id string, action workflow.Action, check func(*EStamp) error) (EStamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stamps[id]
	if !ok {
		return EStamp{}, ErrNotFound
	}
	next, err := Transitions.Apply(e.Status, action)
	if err != nil {
		return EStamp{}, err
	}
	if check != nil {
		if err := check(e); err != nil {
			return EStamp{}, err
		}
	}
	e.Status = next
	e.UpdatedAt = s.now()
	e.Version++
	return *e, nil
}

// certificateNumber formats "EST-<unix-millis>-<4 random digits>".
func certificateNumber(issuedAt time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("certificate number: %w", err)
	}
	return fmt.Sprintf("EST-%d-%04d", issuedAt.UnixMilli(), n.Int64()), nil
}
