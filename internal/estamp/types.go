package estamp

import (
	"errors"
	"time"

	"lexhub.org/internal/workflow"
)

// Lifecycle statuses.
const (
	StatusDraft          workflow.Status = "draft"
	StatusPaymentPending workflow.Status = "payment_pending"
	StatusStamped        workflow.Status = "stamped"
	StatusCompleted      workflow.Status = "completed"
	StatusCancelled      workflow.Status = "cancelled"
)

// Lifecycle actions.
const (
	ActionInitiatePayment workflow.Action = "initiate_payment"
	ActionStamp           workflow.Action = "stamp"
	ActionComplete        workflow.Action = "complete"
	ActionCancel          workflow.Action = "cancel"
)

// Transitions is the e-stamp state machine.
var Transitions = workflow.New("estamp",
	workflow.Edge{From: StatusDraft, Action: ActionInitiatePayment, To: StatusPaymentPending},
	workflow.Edge{From: StatusPaymentPending, Action: ActionStamp, To: StatusStamped},
	workflow.Edge{From: StatusStamped, Action: ActionComplete, To: StatusCompleted},
	workflow.Edge{From: StatusDraft, Action: ActionCancel, To: StatusCancelled},
	workflow.Edge{From: StatusPaymentPending, Action: ActionCancel, To: StatusCancelled},
)

// CertificateValidity is how long an issued certificate stays valid.
const CertificateValidity = 365 * 24 * time.Hour

// Party is one party to the stamped instrument.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role"` // e.g. first_party, second_party, witness
}

// PaymentInfo tracks the gateway order backing the stamp duty payment.
type PaymentInfo struct {
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status"` // unpaid | paid
}

// Certificate is the issued stamp certificate. Number is generated exactly
// once, on the first transition into stamped.
type Certificate struct {
	Number    string    `json:"certificate_number"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EStamp is one stamp duty instrument.
type EStamp struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	State         string          `json:"state"`
	StampType     string          `json:"stamp_type"`
	StampValue    int64           `json:"stamp_value"` // minor units
	Consideration int64           `json:"consideration_amount,omitempty"`
	Parties       []Party         `json:"parties"`
	Payment       PaymentInfo     `json:"payment"`
	Certificate   *Certificate    `json:"certificate,omitempty"`
	Status        workflow.Status `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int64           `json:"version"`
}

var (
	ErrNotFound     = errors.New("estamp: not found")
	ErrForbidden    = errors.New("estamp: forbidden")
	ErrInvalidInput = errors.New("estamp: invalid input")
	ErrUnknownState = errors.New("estamp: no duty rate for state")
	ErrBadSignature = errors.New("estamp: payment signature verification failed")
)
