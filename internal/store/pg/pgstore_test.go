package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"lexhub.org/internal/directory"
	"lexhub.org/internal/payment"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestSaveUserUpsert(t *testing.T) {
	s, mock := newStore(t)
	u := directory.User{
		ID: "u1", Email: "a@b.c", PasswordHash: "hash", Role: "client",
		Name: "A", Status: directory.UserActive,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), Version: 2,
	}

	mock.ExpectExec("insert into users").
		WithArgs(u.ID, u.Email, u.PasswordHash, u.Role, u.Name, u.Phone, u.Status, u.CreatedAt, u.UpdatedAt, u.Version).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	// A write that affects no rows lost the version race.
	mock.ExpectExec("insert into users").
		WithArgs(u.ID, u.Email, u.PasswordHash, u.Role, u.Name, u.Phone, u.Status, u.CreatedAt, u.UpdatedAt, u.Version).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.SaveUser(context.Background(), u); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery("select id, email, password_hash").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := s.GetUser(context.Background(), "missing"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUserRoundTrip(t *testing.T) {
	s, mock := newStore(t)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select id, email, password_hash").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "email", "password_hash", "role", "name", "phone", "status", "created_at", "updated_at", "version",
		}).AddRow("u1", "a@b.c", "hash", "lawyer", "A", "", directory.UserActive, created, created, int64(3)))

	u, err := s.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Role != "lawyer" || u.Version != 3 || !u.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestSavePaymentAndList(t *testing.T) {
	s, mock := newStore(t)
	now := time.Now().UTC()
	p := payment.Payment{
		ID: "p1", UserID: "u1", Kind: payment.KindAppointment, RefID: "a1",
		Amount: 110000, Currency: "INR", Status: payment.StatusCompleted,
		GatewayOrderID: "order_1", GatewayPaymentID: "pay_1",
		Fees:       payment.Fees{Platform: 11000, Payee: 99000},
		MaxRetries: payment.DefaultMaxRetries,
		CreatedAt:  now, UpdatedAt: now, Version: 3,
	}

	mock.ExpectExec("insert into payments").
		WithArgs(p.ID, p.UserID, p.Kind, p.RefID, p.Amount, p.Currency, string(p.Status),
			p.GatewayOrderID, p.GatewayPaymentID, p.Fees.Platform, p.Fees.Payee,
			p.RetryCount, p.MaxRetries, sqlmock.AnyArg(), p.CreatedAt, p.UpdatedAt, p.Version).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.SavePayment(context.Background(), p); err != nil {
		t.Fatalf("SavePayment: %v", err)
	}

	cols := []string{
		"id", "user_id", "kind", "ref_id", "amount", "currency", "status",
		"gateway_order_id", "gateway_payment_id", "platform_fee", "payee_amount",
		"retry_count", "max_retries", "refund", "created_at", "updated_at", "version",
	}
	mock.ExpectQuery("select id, user_id, kind").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			p.ID, p.UserID, p.Kind, p.RefID, p.Amount, p.Currency, string(p.Status),
			p.GatewayOrderID, p.GatewayPaymentID, p.Fees.Platform, p.Fees.Payee,
			p.RetryCount, p.MaxRetries, []byte(`{"amount":98000,"reason":"cancelled"}`), p.CreatedAt, p.UpdatedAt, p.Version))

	got, err := s.ListPaymentsForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListPaymentsForUser: %v", err)
	}
	if len(got) != 1 || got[0].Status != payment.StatusCompleted {
		t.Fatalf("unexpected payments: %+v", got)
	}
	if got[0].Refund == nil || got[0].Refund.Amount != 98000 {
		t.Fatalf("refund not decoded: %+v", got[0].Refund)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListLawyerProfilesWarm(t *testing.T) {
	s, mock := newStore(t)
	now := time.Now().UTC()
	cols := []string{
		"user_id", "bar_number", "practice_areas", "consultation_fee", "kyc_status", "kyc_note",
		"kyc_documents", "rating", "availability", "active", "created_at", "updated_at", "version",
	}
	mock.ExpectQuery("select user_id, bar_number").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"u1", "KA/123/2020", []byte(`["property"]`), int64(100000), directory.KYCVerified, "",
			[]byte(`[]`), []byte(`{"average":4.3,"count":3}`), []byte(`{}`), true, now, now, int64(5)))

	got, err := s.ListLawyerProfiles(context.Background())
	if err != nil {
		t.Fatalf("ListLawyerProfiles: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "u1" || got[0].Rating.Count != 3 {
		t.Fatalf("unexpected profiles: %+v", got)
	}
	if got[0].KYCStatus != directory.KYCVerified || got[0].PracticeAreas[0] != "property" {
		t.Fatalf("profile fields not decoded: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListPaymentsWarm(t *testing.T) {
	s, mock := newStore(t)
	now := time.Now().UTC()
	cols := []string{
		"id", "user_id", "kind", "ref_id", "amount", "currency", "status",
		"gateway_order_id", "gateway_payment_id", "platform_fee", "payee_amount",
		"retry_count", "max_retries", "refund", "created_at", "updated_at", "version",
	}
	mock.ExpectQuery("select id, user_id, kind").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("p1", "u1", payment.KindDocument, "d1", int64(59000), "INR", string(payment.StatusPending),
				"order_1", "", int64(0), int64(0), 0, payment.DefaultMaxRetries, nil, now, now, int64(1)).
			AddRow("p2", "u2", payment.KindEStamp, "e1", int64(50000), "INR", string(payment.StatusCompleted),
				"order_2", "pay_2", int64(0), int64(0), 0, payment.DefaultMaxRetries, nil, now, now, int64(2)))

	got, err := s.ListPayments(context.Background())
	if err != nil {
		t.Fatalf("ListPayments: %v", err)
	}
	if len(got) != 2 || got[1].Status != payment.StatusCompleted || got[0].Refund != nil {
		t.Fatalf("unexpected payments: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
