package document

import (
	"errors"
	"time"

	"lexhub.org/internal/money"
	"lexhub.org/internal/workflow"
)

// Lifecycle statuses.
const (
	StatusDraft         workflow.Status = "draft"
	StatusPendingReview workflow.Status = "pending_review"
	StatusUnderReview   workflow.Status = "under_review"
	StatusApproved      workflow.Status = "approved"
	StatusRejected      workflow.Status = "rejected"
	StatusNeedsRevision workflow.Status = "needs_revision"
	StatusCompleted     workflow.Status = "completed"
	StatusCancelled     workflow.Status = "cancelled"
)

// Lifecycle actions.
const (
	ActionSubmit      workflow.Action = "submit_for_review"
	ActionStartReview workflow.Action = "start_review"
	ActionApprove     workflow.Action = "approve"
	ActionReject      workflow.Action = "reject"
	ActionRevise      workflow.Action = "request_revision"
	ActionComplete    workflow.Action = "complete"
	ActionCancel      workflow.Action = "cancel"
)

// Transitions is the document review state machine.
var Transitions = workflow.New("document",
	workflow.Edge{From: StatusDraft, Action: ActionSubmit, To: StatusPendingReview},
	workflow.Edge{From: StatusNeedsRevision, Action: ActionSubmit, To: StatusPendingReview},
	workflow.Edge{From: StatusPendingReview, Action: ActionStartReview, To: StatusUnderReview},
	workflow.Edge{From: StatusUnderReview, Action: ActionApprove, To: StatusApproved},
	workflow.Edge{From: StatusUnderReview, Action: ActionReject, To: StatusRejected},
	workflow.Edge{From: StatusUnderReview, Action: ActionRevise, To: StatusNeedsRevision},
	workflow.Edge{From: StatusApproved, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusDraft, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusPendingReview, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusUnderReview, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusApproved, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusRejected, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusNeedsRevision, Action: ActionCancel, To: StatusCancelled},
)

// Pricing is the document fee breakdown in minor units. Tax is 18% GST on
// base plus additional charges.
type Pricing struct {
	Base       int64 `json:"base_price"`
	Additional int64 `json:"additional_charges"`
	Tax        int64 `json:"tax"`
	Total      int64 `json:"total_amount"`
}

// ComputePricing derives tax and total from base and additional charges.
func ComputePricing(base, additional int64) Pricing {
	tax := money.GST(base, additional)
	return Pricing{
		Base:       base,
		Additional: additional,
		Tax:        tax,
		Total:      base + additional + tax,
	}
}

// Signature is one completed signature on a document.
type Signature struct {
	SignerID string    `json:"signer_id"`
	Name     string    `json:"name"`
	SignedAt time.Time `json:"signed_at"`
}

// AuditEntry records one mutating action on a document.
type AuditEntry struct {
	Action  string    `json:"action"`
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
	Note    string    `json:"note,omitempty"`
}

// Document is one legal instrument moving through drafting, review, and
// signature.
type Document struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	LawyerID   string          `json:"lawyer_id,omitempty"`
	Title      string          `json:"title"`
	DocType    string          `json:"doc_type"`
	ContentRef string          `json:"content_ref,omitempty"`
	Status     workflow.Status `json:"status"`
	Pricing    Pricing         `json:"pricing"`
	Signers    []string        `json:"signers,omitempty"` // user ids expected to sign
	Signatures []Signature     `json:"signatures,omitempty"`
	Audit      []AuditEntry    `json:"audit_trail"`
	ReviewNote string          `json:"review_note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Version    int64           `json:"version"`
}

// Terminal reports whether no further mutation is allowed.
func (d *Document) Terminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusCancelled
}

var (
	ErrNotFound     = errors.New("document: not found")
	ErrForbidden    = errors.New("document: forbidden")
	ErrInvalidInput = errors.New("document: invalid input")
	ErrLocked       = errors.New("document: no longer editable")
	ErrBadOTP       = errors.New("document: signature code mismatch")
)
