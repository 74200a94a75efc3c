package payment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/ids"
	"lexhub.org/internal/money"
	"lexhub.org/internal/obs"
)

// SideEffect is invoked after a payment completes so the owning workflow
// (appointment, document, e-stamp) can record the payment. Wired at startup.
type SideEffect func(ctx context.Context, kind, refID, gatewayPaymentID string) error

// Service defines the payment ledger.
type Service interface {
	CreateOrder(ctx context.Context, userID, kind, refID string, amount int64, currency string) (Payment, error)
	Verify(ctx context.Context, actorID, id, gatewayPaymentID, signature string) (Payment, error)
	RefundPayment(ctx context.Context, actorID, id string, amount int64, reason string) (Payment, error)
	Get(ctx context.Context, actorID, id string) (Payment, error)
	ListForUser(ctx context.Context, userID string) ([]Payment, error)
}

// Snapshots receives write-through copies of mutated payments. *pg.Store
// implements it; a nil sink keeps the ledger memory-only.
type Snapshots interface {
	SavePayment(ctx context.Context, p Payment) error
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	gateway  Gateway
	secret   string
	onPaid   SideEffect
	sink     Snapshots
	now      func() time.Time
}

// NewInMemory creates a payment ledger fronting the given gateway. secret is
// the shared gateway secret used for callback signature checks.
func NewInMemory(gw Gateway, secret string) *InMemory {
	return &InMemory{
		payments: make(map[string]*Payment),
		gateway:  gw,
		secret:   secret,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// OnCompleted registers the side-effect dispatch. Must be called before the
// service handles traffic.
func (s *InMemory) OnCompleted(fn SideEffect) { s.onPaid = fn }

// Persist enables write-through persistence. Must be called before the
// service handles traffic.
func (s *InMemory) Persist(sink Snapshots) { s.sink = sink }

// Warm preloads payments from a snapshot store. Called once on boot.
func (s *InMemory) Warm(payments []Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range payments {
		p := payments[i]
		s.payments[p.ID] = &p
	}
}

// persist writes a snapshot through to the sink. The in-memory copy is
// authoritative; a failed write is logged, not propagated.
func (s *InMemory) persist(ctx context.Context, p Payment) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SavePayment(ctx, p); err != nil {
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "payment_persist_failed",
			"payment_id": p.ID,
			"error":      err.Error(),
		})
	}
}

func (s *InMemory) CreateOrder(ctx context.Context, userID, kind, refID string, amount int64, currency string) (Payment, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != KindAppointment && kind != KindDocument && kind != KindEStamp {
		return Payment{}, fmt.Errorf("%w: kind %q", ErrInvalidInput, kind)
	}
	if refID = strings.TrimSpace(refID); refID == "" {
		return Payment{}, fmt.Errorf("%w: ref_id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be > 0", ErrInvalidInput)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "INR"
	}

	order, err := s.gateway.CreateOrder(ctx, amount, currency, refID)
	if err != nil {
		return Payment{}, err
	}

	now := s.now()
	p := &Payment{
		ID:             ids.New(),
		UserID:         userID,
		Kind:           kind,
		RefID:          refID,
		Amount:         amount,
		Currency:       currency,
		Status:         StatusPending,
		GatewayOrderID: order.ID,
		MaxRetries:     DefaultMaxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	// Appointment payments carry the lawyer payout split.
	if kind == KindAppointment {
		payee, platform := money.Split(amount)
		p.Fees = Fees{Payee: payee, Platform: platform}
	}

	s.mu.Lock()
	s.payments[p.ID] = p
	snapshot := *p
	s.mu.Unlock()
	s.persist(ctx, snapshot)
	return snapshot, nil
}

// Verify checks the gateway callback signature. Success completes the payment
// and dispatches the workflow side effect; each failure consumes one retry,
// and the payment fails permanently once retries are exhausted.
func (s *InMemory) Verify(ctx context.Context, actorID, id, gatewayPaymentID, signature string) (Payment, error) {
	s.mu.Lock()
	p, ok := s.payments[id]
	if !ok {
		s.mu.Unlock()
		return Payment{}, ErrNotFound
	}
	if p.UserID != actorID {
		s.mu.Unlock()
		return Payment{}, ErrForbidden
	}
	if p.Status == StatusPending {
		next, err := Transitions.Apply(p.Status, ActionProcess)
		if err != nil {
			s.mu.Unlock()
			return Payment{}, err
		}
		p.Status = next
	}
	if p.Status != StatusProcessing {
		s.mu.Unlock()
		return Payment{}, fmt.Errorf("%w: payment %s cannot verify while %s", ErrInvalidInput, p.ID, p.Status)
	}
	if p.RetryCount >= p.MaxRetries {
		s.mu.Unlock()
		return Payment{}, ErrRetriesExceeded
	}

	if !VerifySignature(p.GatewayOrderID, gatewayPaymentID, signature, s.secret) {
		p.RetryCount++
		if p.RetryCount >= p.MaxRetries {
			if next, err := Transitions.Apply(p.Status, ActionFail); err == nil {
				p.Status = next
			}
		}
		p.UpdatedAt = s.now()
		p.Version++
		failed := *p
		s.mu.Unlock()
		s.persist(ctx, failed)
		return Payment{}, ErrBadSignature
	}

	next, err := Transitions.Apply(p.Status, ActionComplete)
	if err != nil {
		s.mu.Unlock()
		return Payment{}, err
	}
	p.Status = next
	p.GatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	p.UpdatedAt = s.now()
	p.Version++
	snapshot := *p
	s.mu.Unlock()
	s.persist(ctx, snapshot)

	if s.onPaid != nil {
		if err := s.onPaid(ctx, snapshot.Kind, snapshot.RefID, snapshot.GatewayPaymentID); err != nil {
			return snapshot, fmt.Errorf("dispatch %s/%s: %w", snapshot.Kind, snapshot.RefID, err)
		}
	}
	return snapshot, nil
}

// RefundPayment refunds a completed payment. The refundable amount is capped
// at the original amount less the 2% processing fee; zero means "refund the
// maximum".
func (s *InMemory) RefundPayment(ctx context.Context, actorID, id string, amount int64, reason string) (Payment, error) {
	s.mu.Lock()
	p, ok := s.payments[id]
	if !ok {
		s.mu.Unlock()
		return Payment{}, ErrNotFound
	}
	if p.UserID != actorID {
		s.mu.Unlock()
		return Payment{}, ErrForbidden
	}
	next, err := Transitions.Apply(p.Status, ActionRefund)
	if err != nil {
		s.mu.Unlock()
		return Payment{}, err
	}
	cap := money.RefundCap(p.Amount)
	if amount == 0 {
		amount = cap
	}
	if amount < 0 || amount > cap {
		s.mu.Unlock()
		return Payment{}, fmt.Errorf("%w: max refundable is %d", ErrRefundTooLarge, cap)
	}
	// Commit the transition before calling out so a concurrent refund of
	// the same payment is refused instead of paying out twice.
	prev := p.Status
	p.Status = next
	p.UpdatedAt = s.now()
	p.Version++
	gatewayPaymentID := p.GatewayPaymentID
	s.mu.Unlock()

	if err := s.gateway.Refund(ctx, gatewayPaymentID, amount); err != nil {
		s.mu.Lock()
		var rollback Payment
		if cur, ok := s.payments[id]; ok && cur.Status == next {
			cur.Status = prev
			cur.UpdatedAt = s.now()
			cur.Version++
			rollback = *cur
		}
		s.mu.Unlock()
		if rollback.ID != "" {
			s.persist(ctx, rollback)
		}
		return Payment{}, err
	}

	s.mu.Lock()
	p, ok = s.payments[id]
	if !ok {
		s.mu.Unlock()
		return Payment{}, ErrNotFound
	}
	p.Refund = &Refund{Amount: amount, Reason: strings.TrimSpace(reason), At: s.now()}
	p.UpdatedAt = s.now()
	p.Version++
	snapshot := *p
	s.mu.Unlock()
	s.persist(ctx, snapshot)
	return snapshot, nil
}

func (s *InMemory) Get(ctx context.Context, actorID, id string) (Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	if p.UserID != actorID {
		return Payment{}, ErrForbidden
	}
	return *p, nil
}

func (s *InMemory) ListForUser(ctx context.Context, userID string) ([]Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Payment
	for _, p := range s.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
