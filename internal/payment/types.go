package payment

import (
	"errors"
	"time"

	"lexhub.org/internal/workflow"
)

// What a payment is for. The kind selects the side-effect dispatched after a
// successful verification.
const (
	KindAppointment = "appointment"
	KindDocument    = "document"
	KindEStamp      = "estamp"
)

// Lifecycle statuses.
const (
	StatusPending    workflow.Status = "pending"
	StatusProcessing workflow.Status = "processing"
	StatusCompleted  workflow.Status = "completed"
	StatusFailed     workflow.Status = "failed"
	StatusRefunded   workflow.Status = "refunded"
	StatusCancelled  workflow.Status = "cancelled"
)

// Lifecycle actions.
const (
	ActionProcess  workflow.Action = "process"
	ActionComplete workflow.Action = "complete"
	ActionFail     workflow.Action = "fail"
	ActionRefund   workflow.Action = "refund"
	ActionCancel   workflow.Action = "cancel"
)

// Transitions is the payment state machine. A failed verification keeps the
// record in processing until retries are exhausted.
var Transitions = workflow.New("payment",
	workflow.Edge{From: StatusPending, Action: ActionProcess, To: StatusProcessing},
	workflow.Edge{From: StatusPending, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusPending, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusProcessing, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusProcessing, Action: ActionFail, To: StatusFailed},
	workflow.Edge{From: StatusProcessing, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusCompleted, Action: ActionRefund, To: StatusRefunded},
)

// DefaultMaxRetries bounds failed verification attempts per payment.
const DefaultMaxRetries = 3

// Fees is the payout split recorded for appointment payments.
type Fees struct {
	Platform int64 `json:"platform"`
	Payee    int64 `json:"payee"`
}

// Refund records a processed refund.
type Refund struct {
	Amount int64     `json:"amount"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Payment is one ledger entry against the gateway.
type Payment struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Kind             string          `json:"kind"`
	RefID            string          `json:"ref_id"` // appointment/document/estamp id
	Amount           int64           `json:"amount"` // minor units
	Currency         string          `json:"currency"`
	Status           workflow.Status `json:"status"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	Fees             Fees            `json:"fees"`
	RetryCount       int             `json:"retry_count"`
	MaxRetries       int             `json:"max_retries"`
	Refund           *Refund         `json:"refund,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int64           `json:"version"`
}

var (
	ErrNotFound        = errors.New("payment: not found")
	ErrForbidden       = errors.New("payment: forbidden")
	ErrInvalidInput    = errors.New("payment: invalid input")
	ErrBadSignature    = errors.New("payment: signature verification failed")
	ErrRetriesExceeded = errors.New("payment: retry limit exceeded")
	ErrRefundTooLarge  = errors.New("payment: refund exceeds cap")
	ErrGateway         = errors.New("payment: gateway error")
)
