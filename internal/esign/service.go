package esign

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/ids"
	lexmail "lexhub.org/internal/mail"
	"lexhub.org/internal/workflow"
)

// Service defines the multi-party e-signature workflow.
type Service interface {
	Create(ctx context.Context, requesterID, documentID, title string, signers []Signer) (Request, error)
	Send(ctx context.Context, actorID, id string) (Request, error)
	Sign(ctx context.Context, id, email, otp, signatureRef string) (Request, error)
	Cancel(ctx context.Context, actorID, id string) (Request, error)
	Get(ctx context.Context, actorID, id string) (Request, error)
	ListForRequester(ctx context.Context, requesterID string) ([]Request, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	reqs   map[string]*Request
	mailer lexmail.Mailer
	now    func() time.Time
}

// NewInMemory creates an e-signature service using the given mailer for OTP delivery.
func NewInMemory(mailer lexmail.Mailer) *InMemory {
	return &InMemory{
		reqs:   make(map[string]*Request),
		mailer: mailer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create registers the request and issues one random hex code per signer.
// Codes do not expire.
func (s *InMemory) Create(ctx context.Context, requesterID, documentID, title string, signers []Signer) (Request, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Request{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(signers) == 0 {
		return Request{}, fmt.Errorf("%w: at least one signer is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(signers))
	prepared := make([]Signer, 0, len(signers))
	for i, sg := range signers {
		email := strings.ToLower(strings.TrimSpace(sg.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return Request{}, fmt.Errorf("%w: signer email %q", ErrInvalidInput, sg.Email)
		}
		if seen[email] {
			return Request{}, fmt.Errorf("%w: duplicate signer %s", ErrInvalidInput, email)
		}
		seen[email] = true
		otp, err := hexOTP()
		if err != nil {
			return Request{}, err
		}
		order := sg.Order
		if order == 0 {
			order = i + 1
		}
		prepared = append(prepared, Signer{
			Email:  email,
			Name:   strings.TrimSpace(sg.Name),
			OTP:    otp,
			Status: SignerPending,
			Order:  order,
		})
	}
	sort.Slice(prepared, func(i, j int) bool { return prepared[i].Order < prepared[j].Order })

	now := s.now()
	r := &Request{
		ID:          ids.New(),
		DocumentID:  strings.TrimSpace(documentID),
		RequesterID: requesterID,
		Title:       title,
		Signers:     prepared,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	s.mu.Lock()
	s.reqs[r.ID] = r
	s.mu.Unlock()
	return *r, nil
}

// Send emails each signer their code, then moves the request to sent. The
// transition commits only after every code is delivered; a failed send keeps
// the request in draft with the already-notified signers marked otp_sent.
func (s *InMemory) Send(ctx context.Context, actorID, id string) (Request, error) {
	s.mu.Lock()
	r, ok := s.reqs[id]
	if !ok {
		s.mu.Unlock()
		return Request{}, ErrNotFound
	}
	if r.RequesterID != actorID {
		s.mu.Unlock()
		return Request{}, ErrForbidden
	}
	if _, err := Transitions.Apply(r.Status, ActionSend); err != nil {
		s.mu.Unlock()
		return Request{}, err
	}
	title := r.Title
	signers := append([]Signer(nil), r.Signers...)
	s.mu.Unlock()

	delivered := 0
	var sendErr error
	for _, sg := range signers {
		msg := lexmail.Message{
			To:      sg.Email,
			Subject: "Signature requested: " + title,
			Body:    "Your one-time signing code is " + sg.OTP + ".",
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			sendErr = fmt.Errorf("send otp to %s: %w", sg.Email, err)
			break
		}
		delivered++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok = s.reqs[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	for i := 0; i < delivered && i < len(r.Signers); i++ {
		r.Signers[i].Status = SignerOTPSent
	}
	if sendErr != nil {
		if delivered > 0 {
			r.UpdatedAt = s.now()
			r.Version++
		}
		return Request{}, sendErr
	}
	next, err := Transitions.Apply(r.Status, ActionSend)
	if err != nil {
		return Request{}, err
	}
	r.Status = next
	r.UpdatedAt = s.now()
	r.Version++
	return *r, nil
}

// Sign matches the signer by email, checks the code, and records the
// signature. The request completes once every signer has signed; the same
// path serves uploaded signature images via signatureRef.
func (s *InMemory) Sign(ctx context.Context, id, email, otp, signatureRef string) (Request, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.Status != StatusSent && r.Status != StatusInProgress {
		return Request{}, fmt.Errorf("%w: esignature is not open for signing", workflow.ErrInvalidTransition)
	}

	idx := -1
	for i := range r.Signers {
		if r.Signers[i].Email == email {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Request{}, ErrUnknownSigner
	}
	sg := &r.Signers[idx]
	if sg.Status == SignerSigned {
		return Request{}, fmt.Errorf("%w: already signed", ErrInvalidInput)
	}
	if subtle.ConstantTimeCompare([]byte(sg.OTP), []byte(strings.TrimSpace(otp))) != 1 {
		return Request{}, ErrBadOTP
	}

	sg.Status = SignerSigned
	sg.SignatureRef = strings.TrimSpace(signatureRef)
	sg.SignedAt = s.now()
	r.CompletionPercentage = r.Completion()

	if r.SignedCount() == len(r.Signers) {
		next, err := Transitions.Apply(r.Status, ActionComplete)
		if err != nil {
			return Request{}, err
		}
		r.Status = next
	} else if r.Status == StatusSent {
		next, err := Transitions.Apply(r.Status, ActionProgress)
		if err != nil {
			return Request{}, err
		}
		r.Status = next
	}
	r.UpdatedAt = s.now()
	r.Version++
	return *r, nil
}

func (s *InMemory) Cancel(ctx context.Context, actorID, id string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.RequesterID != actorID {
		return Request{}, ErrForbidden
	}
	next, err := Transitions.Apply(r.Status, ActionCancel)
	if err != nil {
		return Request{}, err
	}
	r.Status = next
	r.UpdatedAt = s.now()
	r.Version++
	return *r, nil
}

func (s *InMemory) Get(ctx context.Context, actorID, id string) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reqs[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	if r.RequesterID != actorID {
		return Request{}, ErrForbidden
	}
	return *r, nil
}

func (s *InMemory) ListForRequester(ctx context.Context, requesterID string) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Request
	for _, r := range s.reqs {
		if r.RequesterID == requesterID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// hexOTP returns a random 6-byte code in hex (12 characters).
func hexOTP() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
