package document

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/directory"
	"lexhub.org/internal/ids"
	"lexhub.org/internal/mail"
	"lexhub.org/internal/workflow"
)

// Service defines the document review and signing workflow.
type Service interface {
	Create(ctx context.Context, ownerID, title, docType, contentRef string, base, additional int64) (Document, error)
	Update(ctx context.Context, actorID, id, title, contentRef string, base, additional *int64) (Document, error)
	SubmitForReview(ctx context.Context, actorID, id, lawyerID string) (Document, error)
	StartReview(ctx context.Context, actorID, id string) (Document, error)
	Review(ctx context.Context, actorID, id, verdict, note string) (Document, error)
	RequestSignatures(ctx context.Context, actorID, id string, signerIDs []string) (Document, error)
	Sign(ctx context.Context, actorID, id, otp string) (Document, error)
	Cancel(ctx context.Context, actorID, id, reason string) (Document, error)
	Get(ctx context.Context, actorID, id string) (Document, error)
	ListForActor(ctx context.Context, actorID string) ([]Document, error)
	CancelOpenForUser(ctx context.Context, userID, reason string) (int, error)
}

type record struct {
	doc Document
	// otps maps an expected signer to the code issued for them. Codes do not
	// expire; a new request-signatures call replaces them.
	otps map[string]string
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu        sync.RWMutex
	docs      map[string]*record
	directory directory.Service
	mailer    mail.Mailer
	now       func() time.Time
}

// NewInMemory creates a document service backed by the given directory and mailer.
func NewInMemory(dir directory.Service, mailer mail.Mailer) *InMemory {
	return &InMemory{
		docs:      make(map[string]*record),
		directory: dir,
		mailer:    mailer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemory) Create(ctx context.Context, ownerID, title, docType, contentRef string, base, additional int64) (Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if base < 0 || additional < 0 {
		return Document{}, fmt.Errorf("%w: pricing must be >= 0", ErrInvalidInput)
	}
	now := s.now()
	d := Document{
		ID:         ids.New(),
		OwnerID:    ownerID,
		Title:      title,
		DocType:    strings.TrimSpace(docType),
		ContentRef: strings.TrimSpace(contentRef),
		Status:     StatusDraft,
		Pricing:    ComputePricing(base, additional),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	d.Audit = append(d.Audit, AuditEntry{Action: "create", ActorID: ownerID, At: now})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = &record{doc: d}
	return d, nil
}

func (s *InMemory) Update(ctx context.Context, actorID, id, title, contentRef string, base, additional *int64) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d := &rec.doc
	if d.OwnerID != actorID {
		return Document{}, ErrForbidden
	}
	if d.Status != StatusDraft && d.Status != StatusNeedsRevision {
		return Document{}, ErrLocked
	}
	if title = strings.TrimSpace(title); title != "" {
		d.Title = title
	}
	if contentRef = strings.TrimSpace(contentRef); contentRef != "" {
		d.ContentRef = contentRef
	}
	if base != nil || additional != nil {
		b, add := d.Pricing.Base, d.Pricing.Additional
		if base != nil {
			b = *base
		}
		if additional != nil {
			add = *additional
		}
		if b < 0 || add < 0 {
			return Document{}, fmt.Errorf("%w: pricing must be >= 0", ErrInvalidInput)
		}
		d.Pricing = ComputePricing(b, add)
	}
	s.touch(d, "update", actorID, "")
	return *d, nil
}

func (s *InMemory) SubmitForReview(ctx context.Context, actorID, id, lawyerID string) (Document, error) {
	lawyer, err := s.directory.GetLawyer(ctx, lawyerID)
	if err != nil {
		return Document{}, fmt.Errorf("%w: lawyer", ErrNotFound)
	}
	if !lawyer.Bookable() {
		return Document{}, fmt.Errorf("%w: lawyer is not accepting work", ErrInvalidInput)
	}
	return s.transition(id, ActionSubmit, func(d *Document) error {
		if d.OwnerID != actorID {
			return ErrForbidden
		}
		d.LawyerID = lawyerID
		return nil
	}, "submit_for_review", actorID, "")
}

func (s *InMemory) StartReview(ctx context.Context, actorID, id string) (Document, error) {
	return s.transition(id, ActionStartReview, func(d *Document) error {
		if d.LawyerID != actorID {
			return ErrForbidden
		}
		return nil
	}, "start_review", actorID, "")
}

func (s *InMemory) Review(ctx context.Context, actorID, id, verdict, note string) (Document, error) {
	var action workflow.Action
	switch strings.ToLower(strings.TrimSpace(verdict)) {
	case "approved":
		action = ActionApprove
	case "rejected":
		action = ActionReject
	case "needs_revision":
		action = ActionRevise
	default:
		return Document{}, fmt.Errorf("%w: verdict must be approved, rejected or needs_revision", ErrInvalidInput)
	}
	return s.transition(id, action, func(d *Document) error {
		if d.LawyerID != actorID {
			return ErrForbidden
		}
		d.ReviewNote = strings.TrimSpace(note)
		return nil
	}, "review:"+string(action), actorID, note)
}

// RequestSignatures issues a fresh 6-digit code per signer and emails it.
// Only approved documents can collect signatures.
func (s *InMemory) RequestSignatures(ctx context.Context, actorID, id string, signerIDs []string) (Document, error) {
	if len(signerIDs) == 0 {
		return Document{}, fmt.Errorf("%w: at least one signer is required", ErrInvalidInput)
	}

	s.mu.Lock()
	rec, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return Document{}, ErrNotFound
	}
	if rec.doc.OwnerID != actorID {
		s.mu.Unlock()
		return Document{}, ErrForbidden
	}
	if rec.doc.Status != StatusApproved {
		s.mu.Unlock()
		return Document{}, fmt.Errorf("%w: document must be approved before signing", workflow.ErrInvalidTransition)
	}
	title := rec.doc.Title
	s.mu.Unlock()

	// Resolve every signer and deliver the codes before touching the
	// document, so a bad signer id or a mail failure leaves it unchanged.
	emails := make([]string, len(signerIDs))
	for i, signerID := range signerIDs {
		u, err := s.directory.GetUser(ctx, signerID)
		if err != nil {
			return Document{}, fmt.Errorf("%w: signer %s", ErrNotFound, signerID)
		}
		emails[i] = u.Email
	}
	otps := make(map[string]string, len(signerIDs))
	for i, signerID := range signerIDs {
		otp, err := numericOTP()
		if err != nil {
			return Document{}, err
		}
		otps[signerID] = otp
		msg := mail.Message{
			To:      emails[i],
			Subject: "Signature code for " + title,
			Body:    "Your one-time signing code is " + otp + ".",
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			return Document{}, fmt.Errorf("send otp: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok = s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d := &rec.doc
	// The document may have moved on while the codes were in flight.
	if d.Status != StatusApproved {
		return Document{}, fmt.Errorf("%w: document must be approved before signing", workflow.ErrInvalidTransition)
	}
	d.Signers = append([]string(nil), signerIDs...)
	d.Signatures = nil
	rec.otps = otps
	s.touch(d, "request_signatures", actorID, "")
	return *d, nil
}

// Sign verifies the code issued to the signer and appends their signature.
// When every expected signer has signed, the document completes.
func (s *InMemory) Sign(ctx context.Context, actorID, id, otp string) (Document, error) {
	signer, err := s.directory.GetUser(ctx, actorID)
	if err != nil {
		return Document{}, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d := &rec.doc
	if d.Status != StatusApproved {
		return Document{}, fmt.Errorf("%w: document is not collecting signatures", workflow.ErrInvalidTransition)
	}
	expected, isSigner := rec.otps[actorID]
	if !isSigner {
		return Document{}, ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(otp))) != 1 {
		return Document{}, ErrBadOTP
	}
	for _, sig := range d.Signatures {
		if sig.SignerID == actorID {
			return Document{}, fmt.Errorf("%w: already signed", ErrInvalidInput)
		}
	}
	d.Signatures = append(d.Signatures, Signature{
		SignerID: actorID,
		Name:     signer.Name,
		SignedAt: s.now(),
	})
	s.touch(d, "sign", actorID, "")

	if len(d.Signatures) == len(d.Signers) {
		next, err := Transitions.Apply(d.Status, ActionComplete)
		if err != nil {
			return Document{}, err
		}
		d.Status = next
		s.touch(d, "complete", actorID, "all signatures collected")
	}
	return *d, nil
}

func (s *InMemory) Cancel(ctx context.Context, actorID, id, reason string) (Document, error) {
	return s.transition(id, ActionCancel, func(d *Document) error {
		if d.OwnerID != actorID {
			return ErrForbidden
		}
		return nil
	}, "cancel", actorID, reason)
}

func (s *InMemory) Get(ctx context.Context, actorID, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d := rec.doc
	if d.OwnerID != actorID && d.LawyerID != actorID && !isSignerOf(&d, actorID) {
		return Document{}, ErrForbidden
	}
	return d, nil
}

func (s *InMemory) ListForActor(ctx context.Context, actorID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, rec := range s.docs {
		if rec.doc.OwnerID == actorID || rec.doc.LawyerID == actorID {
			out = append(out, rec.doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CancelOpenForUser is the account-deletion cascade for documents.
func (s *InMemory) CancelOpenForUser(ctx context.Context, userID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.docs {
		d := &rec.doc
		if d.OwnerID != userID {
			continue
		}
		next, err := Transitions.Apply(d.Status, ActionCancel)
		if err != nil {
			continue
		}
		d.Status = next
		s.touch(d, "cancel", userID, reason)
		n++
	}
	return n, nil
}

func (s *InMemory) transition(id string, action workflow.Action, check func(*Document) error, auditAction, actorID, note string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	d := &rec.doc
	next, err := Transitions.Apply(d.Status, action)
	if err != nil {
		return Document{}, err
	}
	if check != nil {
		if err := check(d); err != nil {
			return Document{}, err
		}
	}
	d.Status = next
	s.touch(d, auditAction, actorID, note)
	return *d, nil
}

// touch appends an audit entry and bumps bookkeeping fields. Caller holds the lock.
func (s *InMemory) touch(d *Document, action, actorID, note string) {
	now := s.now()
	d.Audit = append(d.Audit, AuditEntry{Action: action, ActorID: actorID, At: now, Note: strings.TrimSpace(note)})
	d.UpdatedAt = now
	d.Version++
}

func isSignerOf(d *Document, actorID string) bool {
	for _, id := range d.Signers {
		if id == actorID {
			return true
		}
	}
	return false
}

// numericOTP returns a random zero-padded 6-digit code.
func numericOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
