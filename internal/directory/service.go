package directory

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"lexhub.org/internal/auth"
	"lexhub.org/internal/ids"
	"lexhub.org/internal/obs"
)

// Service defines directory operations over users and lawyer profiles.
type Service interface {
	Register(ctx context.Context, email, password, role, name string) (User, error)
	Authenticate(ctx context.Context, email, password string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, id, name, phone string) (User, error)
	Suspend(ctx context.Context, id string) (User, error)
	Deactivate(ctx context.Context, id string) (User, error)

	UpsertLawyerProfile(ctx context.Context, userID string, barNumber string, areas []string, fee int64) (LawyerProfile, error)
	GetLawyer(ctx context.Context, userID string) (LawyerProfile, error)
	ListLawyers(ctx context.Context, practiceArea string) ([]LawyerProfile, error)
	SubmitKYCDocument(ctx context.Context, userID, kind, fileRef string) (LawyerProfile, error)
	ReviewKYC(ctx context.Context, userID, verdict, note string) (LawyerProfile, error)
	SetAvailability(ctx context.Context, userID string, availability map[time.Weekday][]TimeRange) (LawyerProfile, error)
	RecordRating(ctx context.Context, userID string, rating int) (LawyerProfile, error)
}

// Snapshots receives write-through copies of mutated records. *pg.Store
// implements it; a nil sink keeps the directory memory-only.
type Snapshots interface {
	SaveUser(ctx context.Context, u User) error
	SaveLawyerProfile(ctx context.Context, p LawyerProfile) error
}

// InMemory implements Service with in-process concurrency safety. The
// in-memory state is authoritative; an attached sink is written through on
// every mutation and read back on boot via Warm.
type InMemory struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
	lawyers map[string]*LawyerProfile
	sink    Snapshots
}

// NewInMemory creates an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		lawyers: make(map[string]*LawyerProfile),
	}
}

// Persist enables write-through persistence. Must be called before the
// service handles traffic.
func (s *InMemory) Persist(sink Snapshots) { s.sink = sink }

// Warm preloads users and lawyer profiles from a snapshot store. Called once
// on boot.
func (s *InMemory) Warm(users []User, profiles []LawyerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
		s.byEmail[u.Email] = u.ID
	}
	for i := range profiles {
		p := profiles[i]
		s.lawyers[p.UserID] = &p
	}
}

// persistUser writes a snapshot through to the sink. Failures are logged;
// the in-memory copy stays authoritative.
func (s *InMemory) persistUser(ctx context.Context, u User) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveUser(ctx, u); err != nil {
		obs.LogRequest(map[string]any{
			"level":   "error",
			"msg":     "user_persist_failed",
			"user_id": u.ID,
			"error":   err.Error(),
		})
	}
}

func (s *InMemory) persistProfile(ctx context.Context, p LawyerProfile) {
	if s.sink == nil {
		return
	}
	if err := s.sink.SaveLawyerProfile(ctx, p); err != nil {
		obs.LogRequest(map[string]any{
			"level":   "error",
			"msg":     "lawyer_profile_persist_failed",
			"user_id": p.UserID,
			"error":   err.Error(),
		})
	}
}

func (s *InMemory) Register(ctx context.Context, email, password, role, name string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != auth.RoleClient && role != auth.RoleLawyer && role != auth.RoleAdmin {
		return User{}, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	if _, taken := s.byEmail[email]; taken {
		s.mu.Unlock()
		return User{}, ErrAlreadyExists
	}
	now := time.Now().UTC()
	u := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Name:         strings.TrimSpace(name),
		Status:       UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	var profile *LawyerProfile
	if role == auth.RoleLawyer {
		p := &LawyerProfile{
			UserID:    u.ID,
			KYCStatus: KYCPending,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		}
		s.lawyers[u.ID] = p
		clone := cloneProfile(p)
		profile = &clone
	}
	out := *u
	s.mu.Unlock()

	s.persistUser(ctx, out)
	if profile != nil {
		s.persistProfile(ctx, *profile)
	}
	return out, nil
}

func (s *InMemory) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	id, ok := s.byEmail[email]
	var u User
	if ok {
		u = *s.users[id]
	}
	s.mu.RUnlock()
	if !ok || u.Status == UserDeleted {
		return User{}, ErrBadCredentials
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrBadCredentials
	}
	if u.Status == UserSuspended {
		return User{}, ErrForbidden
	}
	return u, nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok || u.Status == UserDeleted {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *InMemory) UpdateUser(ctx context.Context, id, name, phone string) (User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok || u.Status == UserDeleted {
		s.mu.Unlock()
		return User{}, ErrNotFound
	}
	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	if phone = strings.TrimSpace(phone); phone != "" {
		u.Phone = phone
	}
	u.UpdatedAt = time.Now().UTC()
	u.Version++
	out := *u
	s.mu.Unlock()
	s.persistUser(ctx, out)
	return out, nil
}

func (s *InMemory) Suspend(ctx context.Context, id string) (User, error) {
	return s.setStatus(ctx, id, UserSuspended)
}

// Deactivate marks the account deleted. The caller is responsible for the
// cancellation cascade across open appointments and documents.
func (s *InMemory) Deactivate(ctx context.Context, id string) (User, error) {
	return s.setStatus(ctx, id, UserDeleted)
}

func (s *InMemory) setStatus(ctx context.Context, id, status string) (User, error) {
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok || u.Status == UserDeleted {
		s.mu.Unlock()
		return User{}, ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	u.Version++
	var profile *LawyerProfile
	if p, ok := s.lawyers[id]; ok && status != UserActive {
		p.Active = false
		p.Version++
		clone := cloneProfile(p)
		profile = &clone
	}
	out := *u
	s.mu.Unlock()

	s.persistUser(ctx, out)
	if profile != nil {
		s.persistProfile(ctx, *profile)
	}
	return out, nil
}

func (s *InMemory) UpsertLawyerProfile(ctx context.Context, userID string, barNumber string, areas []string, fee int64) (LawyerProfile, error) {
	if fee < 0 {
		return LawyerProfile{}, fmt.Errorf("%w: consultation fee must be >= 0", ErrInvalidInput)
	}
	s.mu.Lock()
	p, ok := s.lawyers[userID]
	if !ok {
		s.mu.Unlock()
		return LawyerProfile{}, ErrNotFound
	}
	if barNumber = strings.TrimSpace(barNumber); barNumber != "" {
		p.BarNumber = barNumber
	}
	if len(areas) > 0 {
		normalized := make([]string, 0, len(areas))
		for _, a := range areas {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				normalized = append(normalized, a)
			}
		}
		p.PracticeAreas = normalized
	}
	if fee > 0 {
		p.ConsultationFee = fee
	}
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	out := cloneProfile(p)
	s.mu.Unlock()
	s.persistProfile(ctx, out)
	return out, nil
}

func (s *InMemory) GetLawyer(ctx context.Context, userID string) (LawyerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.lawyers[userID]
	if !ok {
		return LawyerProfile{}, ErrNotFound
	}
	return cloneProfile(p), nil
}

// ListLawyers returns verified, active lawyers, optionally filtered by
// practice area, sorted by rating (best first).
func (s *InMemory) ListLawyers(ctx context.Context, practiceArea string) ([]LawyerProfile, error) {
	practiceArea = strings.ToLower(strings.TrimSpace(practiceArea))
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LawyerProfile
	for _, p := range s.lawyers {
		if !p.Bookable() {
			continue
		}
		if practiceArea != "" && !containsArea(p.PracticeAreas, practiceArea) {
			continue
		}
		out = append(out, cloneProfile(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating.Average != out[j].Rating.Average {
			return out[i].Rating.Average > out[j].Rating.Average
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *InMemory) SubmitKYCDocument(ctx context.Context, userID, kind, fileRef string) (LawyerProfile, error) {
	kind = strings.TrimSpace(kind)
	fileRef = strings.TrimSpace(fileRef)
	if kind == "" || fileRef == "" {
		return LawyerProfile{}, fmt.Errorf("%w: kind and file_ref are required", ErrInvalidInput)
	}
	s.mu.Lock()
	p, ok := s.lawyers[userID]
	if !ok {
		s.mu.Unlock()
		return LawyerProfile{}, ErrNotFound
	}
	p.KYCDocuments = append(p.KYCDocuments, KYCDocument{
		ID:          ids.New(),
		Kind:        kind,
		FileRef:     fileRef,
		SubmittedAt: time.Now().UTC(),
	})
	// A fresh submission reopens review after a rejection.
	if p.KYCStatus == KYCRejected {
		p.KYCStatus = KYCPending
		p.KYCNote = ""
	}
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	out := cloneProfile(p)
	s.mu.Unlock()
	s.persistProfile(ctx, out)
	return out, nil
}

func (s *InMemory) ReviewKYC(ctx context.Context, userID, verdict, note string) (LawyerProfile, error) {
	verdict = strings.ToLower(strings.TrimSpace(verdict))
	if verdict != KYCVerified && verdict != KYCRejected {
		return LawyerProfile{}, fmt.Errorf("%w: verdict must be %s or %s", ErrInvalidInput, KYCVerified, KYCRejected)
	}
	s.mu.Lock()
	p, ok := s.lawyers[userID]
	if !ok {
		s.mu.Unlock()
		return LawyerProfile{}, ErrNotFound
	}
	if len(p.KYCDocuments) == 0 {
		s.mu.Unlock()
		return LawyerProfile{}, fmt.Errorf("%w: no documents submitted", ErrInvalidInput)
	}
	p.KYCStatus = verdict
	p.KYCNote = strings.TrimSpace(note)
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	out := cloneProfile(p)
	s.mu.Unlock()
	s.persistProfile(ctx, out)
	return out, nil
}

func (s *InMemory) SetAvailability(ctx context.Context, userID string, availability map[time.Weekday][]TimeRange) (LawyerProfile, error) {
	for day, ranges := range availability {
		if day < time.Sunday || day > time.Saturday {
			return LawyerProfile{}, fmt.Errorf("%w: weekday %d", ErrInvalidInput, day)
		}
		for _, r := range ranges {
			start, err1 := time.Parse("15:04", r.Start)
			end, err2 := time.Parse("15:04", r.End)
			if err1 != nil || err2 != nil || !end.After(start) {
				return LawyerProfile{}, fmt.Errorf("%w: range %s-%s", ErrInvalidInput, r.Start, r.End)
			}
		}
	}
	s.mu.Lock()
	p, ok := s.lawyers[userID]
	if !ok {
		s.mu.Unlock()
		return LawyerProfile{}, ErrNotFound
	}
	p.Availability = availability
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	out := cloneProfile(p)
	s.mu.Unlock()
	s.persistProfile(ctx, out)
	return out, nil
}

// RecordRating folds one 1..5 rating into the lawyer's running average,
// rounded to one decimal.
func (s *InMemory) RecordRating(ctx context.Context, userID string, rating int) (LawyerProfile, error) {
	if rating < 1 || rating > 5 {
		return LawyerProfile{}, fmt.Errorf("%w: rating must be 1..5", ErrInvalidInput)
	}
	s.mu.Lock()
	p, ok := s.lawyers[userID]
	if !ok {
		s.mu.Unlock()
		return LawyerProfile{}, ErrNotFound
	}
	sum := p.Rating.Average*float64(p.Rating.Count) + float64(rating)
	p.Rating.Count++
	p.Rating.Average = math.Round(sum/float64(p.Rating.Count)*10) / 10
	p.UpdatedAt = time.Now().UTC()
	p.Version++
	out := cloneProfile(p)
	s.mu.Unlock()
	s.persistProfile(ctx, out)
	return out, nil
}

func containsArea(areas []string, want string) bool {
	for _, a := range areas {
		if a == want {
			return true
		}
	}
	return false
}

func cloneProfile(p *LawyerProfile) LawyerProfile {
	out := *p
	out.PracticeAreas = append([]string(nil), p.PracticeAreas...)
	out.KYCDocuments = append([]KYCDocument(nil), p.KYCDocuments...)
	if p.Availability != nil {
		out.Availability = make(map[time.Weekday][]TimeRange, len(p.Availability))
		for day, ranges := range p.Availability {
			out.Availability[day] = append([]TimeRange(nil), ranges...)
		}
	}
	return out
}
