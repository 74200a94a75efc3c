package directory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func registerLawyer(t *testing.T, s *InMemory) LawyerProfile {
	t.Helper()
	ctx := context.Background()
	u, err := s.Register(ctx, "adv@example.com", "secret-pass", "lawyer", "Adv. Rao")
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.UpsertLawyerProfile(ctx, u.ID, "KA/123/2020", []string{"Property"}, 100000)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	if _, err := s.Register(ctx, "a@example.com", "secret-pass", "client", "A"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(ctx, "A@Example.com", "secret-pass", "client", "A2"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	u, err := s.Register(ctx, "a@example.com", "secret-pass", "client", "A")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Authenticate(ctx, "a@example.com", "secret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user: %s", got.ID)
	}

	if _, err := s.Authenticate(ctx, "a@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}

	if _, err := s.Suspend(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Authenticate(ctx, "a@example.com", "secret-pass"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for suspended user, got %v", err)
	}
}

func TestKYCReviewFlow(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	p := registerLawyer(t, s)

	// Review without documents must fail.
	if _, err := s.ReviewKYC(ctx, p.UserID, KYCVerified, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if _, err := s.SubmitKYCDocument(ctx, p.UserID, "bar_certificate", "s3://kyc/1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReviewKYC(ctx, p.UserID, KYCRejected, "illegible scan")
	if err != nil {
		t.Fatal(err)
	}
	if got.KYCStatus != KYCRejected {
		t.Fatalf("kyc status=%s, want rejected", got.KYCStatus)
	}

	// Resubmission reopens review.
	got, err = s.SubmitKYCDocument(ctx, p.UserID, "bar_certificate", "s3://kyc/2")
	if err != nil {
		t.Fatal(err)
	}
	if got.KYCStatus != KYCPending {
		t.Fatalf("kyc status=%s, want pending after resubmission", got.KYCStatus)
	}

	got, err = s.ReviewKYC(ctx, p.UserID, KYCVerified, "")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Bookable() {
		t.Fatal("verified active lawyer must be bookable")
	}
}

func TestListLawyersFiltersUnverified(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	p := registerLawyer(t, s)

	lawyers, err := s.ListLawyers(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(lawyers) != 0 {
		t.Fatalf("unverified lawyer listed: %v", lawyers)
	}

	if _, err := s.SubmitKYCDocument(ctx, p.UserID, "bar_certificate", "s3://kyc/1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReviewKYC(ctx, p.UserID, KYCVerified, ""); err != nil {
		t.Fatal(err)
	}

	lawyers, err = s.ListLawyers(ctx, "property")
	if err != nil {
		t.Fatal(err)
	}
	if len(lawyers) != 1 {
		t.Fatalf("expected 1 lawyer, got %d", len(lawyers))
	}
	if lawyers, _ = s.ListLawyers(ctx, "tax"); len(lawyers) != 0 {
		t.Fatalf("practice-area filter leaked: %v", lawyers)
	}
}

func TestRecordRatingRunningAverage(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	p := registerLawyer(t, s)

	// Prior average 4.0 over 2 ratings, new rating 5 => 4.3 over 3.
	if _, err := s.RecordRating(ctx, p.UserID, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordRating(ctx, p.UserID, 4); err != nil {
		t.Fatal(err)
	}
	got, err := s.RecordRating(ctx, p.UserID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rating.Average != 4.3 || got.Rating.Count != 3 {
		t.Fatalf("rating=%v, want avg 4.3 count 3", got.Rating)
	}

	if _, err := s.RecordRating(ctx, p.UserID, 6); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for rating 6, got %v", err)
	}
}

func TestSetAvailabilityValidation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	p := registerLawyer(t, s)

	bad := map[time.Weekday][]TimeRange{
		time.Monday: {{Start: "18:00", End: "09:00"}},
	}
	if _, err := s.SetAvailability(ctx, p.UserID, bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	good := map[time.Weekday][]TimeRange{
		time.Monday: {{Start: "09:00", End: "13:00"}, {Start: "15:00", End: "18:00"}},
	}
	got, err := s.SetAvailability(ctx, p.UserID, good)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Availability[time.Monday]) != 2 {
		t.Fatalf("availability not stored: %v", got.Availability)
	}
}

// recordingSink captures write-through snapshots.
type recordingSink struct {
	users    []User
	profiles []LawyerProfile
}

func (r *recordingSink) SaveUser(ctx context.Context, u User) error {
	r.users = append(r.users, u)
	return nil
}

func (r *recordingSink) SaveLawyerProfile(ctx context.Context, p LawyerProfile) error {
	r.profiles = append(r.profiles, p)
	return nil
}

func TestWriteThroughAndWarm(t *testing.T) {
	sink := &recordingSink{}
	s := NewInMemory()
	s.Persist(sink)
	ctx := context.Background()

	u, err := s.Register(ctx, "adv@example.com", "secret-pass", "lawyer", "Adv. Rao")
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.users) != 1 || len(sink.profiles) != 1 {
		t.Fatalf("register snapshots: users=%d profiles=%d, want 1/1", len(sink.users), len(sink.profiles))
	}

	if _, err := s.SubmitKYCDocument(ctx, u.ID, "bar_certificate", "s3://kyc/1"); err != nil {
		t.Fatal(err)
	}
	p, err := s.ReviewKYC(ctx, u.ID, KYCVerified, "ok")
	if err != nil {
		t.Fatal(err)
	}
	if got := sink.profiles[len(sink.profiles)-1]; got.KYCStatus != KYCVerified || got.Version != p.Version {
		t.Fatalf("latest profile snapshot stale: %+v", got)
	}

	// A fresh directory warmed from the snapshots serves logins and lookups.
	warmed := NewInMemory()
	warmed.Warm(sink.users, sink.profiles[len(sink.profiles)-1:])
	got, err := warmed.Authenticate(ctx, "adv@example.com", "secret-pass")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("warmed login returned wrong user: %s", got.ID)
	}
	profile, err := warmed.GetLawyer(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if profile.KYCStatus != KYCVerified {
		t.Fatalf("warmed profile mismatch: %+v", profile)
	}
}

func TestDeactivateHidesUser(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	u, err := s.Register(ctx, "gone@example.com", "secret-pass", "client", "G")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Deactivate(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after deactivation, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "gone@example.com", "secret-pass"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials after deactivation, got %v", err)
	}
}
