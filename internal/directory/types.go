package directory

import (
	"errors"
	"time"
)

// User statuses.
const (
	UserActive    = "active"
	UserSuspended = "suspended"
	UserDeleted   = "deleted"
)

// KYC review states for lawyer profiles.
const (
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCRejected = "rejected"
)

// User is a client, lawyer, or admin account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// KYCDocument is one uploaded verification document.
type KYCDocument struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // e.g. bar_certificate, id_proof
	FileRef     string    `json:"file_ref"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TimeRange is a daily availability window, minutes-resolution, "15:04" format.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Rating is a running average over all completed consultations.
type Rating struct {
	Average float64 `json:"average"` // rounded to 1 decimal
	Count   int64   `json:"count"`
}

// LawyerProfile extends a user with marketplace-facing lawyer data.
type LawyerProfile struct {
	UserID          string                       `json:"user_id"`
	BarNumber       string                       `json:"bar_number"`
	PracticeAreas   []string                     `json:"practice_areas"`
	ConsultationFee int64                        `json:"consultation_fee"` // minor units
	KYCStatus       string                       `json:"kyc_status"`
	KYCNote         string                       `json:"kyc_note,omitempty"`
	KYCDocuments    []KYCDocument                `json:"kyc_documents,omitempty"`
	Rating          Rating                       `json:"rating"`
	Availability    map[time.Weekday][]TimeRange `json:"availability,omitempty"`
	Active          bool                         `json:"active"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
	Version         int64                        `json:"version"`
}

// Bookable reports whether the lawyer can accept new appointments.
func (p *LawyerProfile) Bookable() bool {
	return p != nil && p.Active && p.KYCStatus == KYCVerified
}

var (
	ErrNotFound       = errors.New("directory: not found")
	ErrAlreadyExists  = errors.New("directory: already exists")
	ErrInvalidInput   = errors.New("directory: invalid input")
	ErrForbidden      = errors.New("directory: forbidden")
	ErrBadCredentials = errors.New("directory: bad credentials")
)
