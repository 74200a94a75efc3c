package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lexhub.org/internal/directory"
	"lexhub.org/internal/payment"
	"lexhub.org/internal/workflow"
)

// ErrStale is returned when a snapshot older than the stored row is saved.
var ErrStale = errors.New("pg: stale version")

// Store persists user, lawyer profile and payment snapshots. Services stay
// authoritative in memory; the store is written through on every mutation
// and read back on boot.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SaveUser upserts a user snapshot. Only strictly newer versions win; a
// write with a version at or below the stored one returns ErrStale.
func (s *Store) SaveUser(ctx context.Context, u directory.User) error {
	res, err := s.db.ExecContext(ctx, `
		insert into users(id, email, password_hash, role, name, phone, status, created_at, updated_at, version)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (id) do update set
			email=excluded.email, password_hash=excluded.password_hash,
			role=excluded.role, name=excluded.name, phone=excluded.phone,
			status=excluded.status, updated_at=excluded.updated_at, version=excluded.version
		where users.version < excluded.version
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Name, u.Phone, u.Status, u.CreatedAt, u.UpdatedAt, u.Version)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return staleIfNoRows(res)
}

func (s *Store) GetUser(ctx context.Context, id string) (directory.User, error) {
	var u directory.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, name, phone, status, created_at, updated_at, version
		from users where id=$1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Phone, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (directory.User, error) {
	var u directory.User
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, name, phone, status, created_at, updated_at, version
		from users where email=$1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Phone, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.User{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return u, nil
}

// ListUsers returns all stored user snapshots. Used to warm services on boot.
func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, email, password_hash, role, name, phone, status, created_at, updated_at, version
		from users order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.User
	for rows.Next() {
		var u directory.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Name, &u.Phone, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.Version); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SaveLawyerProfile upserts a lawyer profile snapshot. Structured fields
// (practice areas, documents, availability, rating) are stored as jsonb.
func (s *Store) SaveLawyerProfile(ctx context.Context, p directory.LawyerProfile) error {
	areas, err := json.Marshal(p.PracticeAreas)
	if err != nil {
		return err
	}
	docs, err := json.Marshal(p.KYCDocuments)
	if err != nil {
		return err
	}
	avail, err := json.Marshal(p.Availability)
	if err != nil {
		return err
	}
	rating, err := json.Marshal(p.Rating)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		insert into lawyer_profiles(user_id, bar_number, practice_areas, consultation_fee,
			kyc_status, kyc_note, kyc_documents, rating, availability, active,
			created_at, updated_at, version)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		on conflict (user_id) do update set
			bar_number=excluded.bar_number, practice_areas=excluded.practice_areas,
			consultation_fee=excluded.consultation_fee, kyc_status=excluded.kyc_status,
			kyc_note=excluded.kyc_note, kyc_documents=excluded.kyc_documents,
			rating=excluded.rating, availability=excluded.availability,
			active=excluded.active, updated_at=excluded.updated_at, version=excluded.version
		where lawyer_profiles.version < excluded.version
	`, p.UserID, p.BarNumber, areas, p.ConsultationFee, p.KYCStatus, p.KYCNote, docs,
		rating, avail, p.Active, p.CreatedAt, p.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("save lawyer profile: %w", err)
	}
	return staleIfNoRows(res)
}

func (s *Store) GetLawyerProfile(ctx context.Context, userID string) (directory.LawyerProfile, error) {
	var (
		p                          directory.LawyerProfile
		areas, docs, avail, rating []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, bar_number, practice_areas, consultation_fee, kyc_status, kyc_note,
			kyc_documents, rating, availability, active, created_at, updated_at, version
		from lawyer_profiles where user_id=$1
	`, userID).Scan(&p.UserID, &p.BarNumber, &areas, &p.ConsultationFee, &p.KYCStatus, &p.KYCNote,
		&docs, &rating, &avail, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.LawyerProfile{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.LawyerProfile{}, err
	}
	if err := json.Unmarshal(areas, &p.PracticeAreas); err != nil {
		return directory.LawyerProfile{}, err
	}
	if err := json.Unmarshal(docs, &p.KYCDocuments); err != nil {
		return directory.LawyerProfile{}, err
	}
	if err := json.Unmarshal(avail, &p.Availability); err != nil {
		return directory.LawyerProfile{}, err
	}
	if err := json.Unmarshal(rating, &p.Rating); err != nil {
		return directory.LawyerProfile{}, err
	}
	return p, nil
}

// ListLawyerProfiles returns all stored profiles. Used to warm services on
// boot.
func (s *Store) ListLawyerProfiles(ctx context.Context) ([]directory.LawyerProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, bar_number, practice_areas, consultation_fee, kyc_status, kyc_note,
			kyc_documents, rating, availability, active, created_at, updated_at, version
		from lawyer_profiles order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []directory.LawyerProfile
	for rows.Next() {
		var (
			p                          directory.LawyerProfile
			areas, docs, avail, rating []byte
		)
		if err := rows.Scan(&p.UserID, &p.BarNumber, &areas, &p.ConsultationFee, &p.KYCStatus, &p.KYCNote,
			&docs, &rating, &avail, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(areas, &p.PracticeAreas); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(docs, &p.KYCDocuments); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(avail, &p.Availability); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rating, &p.Rating); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePayment upserts a payment snapshot with the same newer-version-wins
// rule as users.
func (s *Store) SavePayment(ctx context.Context, p payment.Payment) error {
	refund, err := json.Marshal(p.Refund)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		insert into payments(id, user_id, kind, ref_id, amount, currency, status,
			gateway_order_id, gateway_payment_id, platform_fee, payee_amount,
			retry_count, max_retries, refund, created_at, updated_at, version)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		on conflict (id) do update set
			status=excluded.status, gateway_order_id=excluded.gateway_order_id,
			gateway_payment_id=excluded.gateway_payment_id,
			retry_count=excluded.retry_count, refund=excluded.refund,
			updated_at=excluded.updated_at, version=excluded.version
		where payments.version < excluded.version
	`, p.ID, p.UserID, p.Kind, p.RefID, p.Amount, p.Currency, string(p.Status),
		p.GatewayOrderID, p.GatewayPaymentID, p.Fees.Platform, p.Fees.Payee,
		p.RetryCount, p.MaxRetries, refund, p.CreatedAt, p.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}
	return staleIfNoRows(res)
}

func (s *Store) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, kind, ref_id, amount, currency, status,
			gateway_order_id, gateway_payment_id, platform_fee, payee_amount,
			retry_count, max_retries, refund, created_at, updated_at, version
		from payments where id=$1
	`, id)
	if err != nil {
		return payment.Payment{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return payment.Payment{}, err
		}
		return payment.Payment{}, payment.ErrNotFound
	}
	return scanPayment(rows)
}

// ListPaymentsForUser returns the user's payments, newest first.
func (s *Store) ListPaymentsForUser(ctx context.Context, userID string) ([]payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, kind, ref_id, amount, currency, status,
			gateway_order_id, gateway_payment_id, platform_fee, payee_amount,
			retry_count, max_retries, refund, created_at, updated_at, version
		from payments where user_id=$1 order by created_at desc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPayments returns all stored payments. Used to warm services on boot.
func (s *Store) ListPayments(ctx context.Context) ([]payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, kind, ref_id, amount, currency, status,
			gateway_order_id, gateway_payment_id, platform_fee, payee_amount,
			retry_count, max_retries, refund, created_at, updated_at, version
		from payments order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(rows *sql.Rows) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
		refund []byte
	)
	if err := rows.Scan(&p.ID, &p.UserID, &p.Kind, &p.RefID, &p.Amount, &p.Currency, &status,
		&p.GatewayOrderID, &p.GatewayPaymentID, &p.Fees.Platform, &p.Fees.Payee,
		&p.RetryCount, &p.MaxRetries, &refund, &p.CreatedAt, &p.UpdatedAt, &p.Version); err != nil {
		return payment.Payment{}, err
	}
	p.Status = workflow.Status(status)
	if len(refund) > 0 && string(refund) != "null" {
		p.Refund = &payment.Refund{}
		if err := json.Unmarshal(refund, p.Refund); err != nil {
			return payment.Payment{}, err
		}
	}
	return p, nil
}

func staleIfNoRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
