package esign

import (
	"errors"
	"math"
	"time"

	"lexhub.org/internal/workflow"
)

// Request lifecycle statuses.
const (
	StatusDraft      workflow.Status = "draft"
	StatusSent       workflow.Status = "sent"
	StatusInProgress workflow.Status = "in_progress"
	StatusCompleted  workflow.Status = "completed"
	StatusCancelled  workflow.Status = "cancelled"
)

// Request lifecycle actions.
const (
	ActionSend     workflow.Action = "send"
	ActionProgress workflow.Action = "progress"
	ActionComplete workflow.Action = "complete"
	ActionCancel   workflow.Action = "cancel"
)

// Transitions is the e-signature request state machine.
var Transitions = workflow.New("esignature",
	workflow.Edge{From: StatusDraft, Action: ActionSend, To: StatusSent},
	workflow.Edge{From: StatusSent, Action: ActionProgress, To: StatusInProgress},
	workflow.Edge{From: StatusSent, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusInProgress, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusDraft, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusSent, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusInProgress, Action: ActionCancel, To: StatusCancelled},
)

// Per-signer statuses.
const (
	SignerPending = "pending"
	SignerOTPSent = "otp_sent"
	SignerSigned  = "signed"
)

// Signer is one party expected to sign.
type Signer struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	OTP          string    `json:"-"` // issued code; never serialized
	Status       string    `json:"status"`
	Order        int       `json:"order"`
	SignatureRef string    `json:"signature_ref,omitempty"` // drawn/typed data or uploaded image
	SignedAt     time.Time `json:"signed_at,omitzero"`
}

// Request is one multi-party signature collection.
type Request struct {
	ID                   string          `json:"id"`
	DocumentID           string          `json:"document_id"`
	RequesterID          string          `json:"requester_id"`
	Title                string          `json:"title"`
	Signers              []Signer        `json:"signers"`
	Status               workflow.Status `json:"status"`
	CompletionPercentage int             `json:"completion_percentage"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Version              int64           `json:"version"`
}

// SignedCount returns how many signers have signed.
func (r *Request) SignedCount() int {
	n := 0
	for _, s := range r.Signers {
		if s.Status == SignerSigned {
			n++
		}
	}
	return n
}

// Completion returns the rounded signed percentage.
func (r *Request) Completion() int {
	if len(r.Signers) == 0 {
		return 0
	}
	return int(math.Round(float64(r.SignedCount()) / float64(len(r.Signers)) * 100))
}

var (
	ErrNotFound      = errors.New("esign: not found")
	ErrForbidden     = errors.New("esign: forbidden")
	ErrInvalidInput  = errors.New("esign: invalid input")
	ErrUnknownSigner = errors.New("esign: no matching signer")
	ErrBadOTP        = errors.New("esign: otp mismatch")
)
