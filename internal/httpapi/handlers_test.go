package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"lexhub.org/internal/appointment"
	"lexhub.org/internal/auth"
	"lexhub.org/internal/chat"
	"lexhub.org/internal/directory"
	"lexhub.org/internal/document"
	"lexhub.org/internal/esign"
	"lexhub.org/internal/estamp"
	"lexhub.org/internal/mail"
	"lexhub.org/internal/payment"
)

const gatewaySecret = "test-gw-secret"

type apiClient struct {
	baseURL   string
	client    *http.Client
	t         *testing.T
	api       *API
	directory *directory.InMemory
	mailer    *mail.Recorder
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("LEXHUB_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	dir := directory.NewInMemory()
	mailer := &mail.Recorder{}
	appts := appointment.NewInMemory(dir)
	docs := document.NewInMemory(dir, mailer)
	esigns := esign.NewInMemory(mailer)
	estamps := estamp.NewInMemory(gatewaySecret)
	payments := payment.NewInMemory(payment.NewFakeGateway(), gatewaySecret)

	api := New(ReadyProbe{}, "test", Services{
		Directory:    dir,
		Appointments: appts,
		Documents:    docs,
		ESign:        esigns,
		EStamps:      estamps,
		Payments:     payments,
		Chat:         chat.NewHub(),
	})
	api.SetLimits(100, 100, 1<<20)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:   srv.URL,
		client:    srv.Client(),
		t:         t,
		api:       api,
		directory: dir,
		mailer:    mailer,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// register creates an account through the API and returns the user id and
// access token.
func (c *apiClient) register(email, role string) (string, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email":    email,
		"password": "s3cret-pass",
		"role":     role,
		"name":     "Test " + role,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register %s: status %d", email, resp.StatusCode)
	}
	session := decodeBody[sessionResponse](c.t, resp)
	return session.User.ID, session.Tokens.AccessToken
}

// adminToken seeds an admin directly (self-registration refuses the role).
func (c *apiClient) adminToken() string {
	c.t.Helper()
	admin, err := c.directory.Register(context.Background(), "admin@lexhub.org", "s3cret-pass", auth.RoleAdmin, "Admin")
	if err != nil {
		c.t.Fatalf("seed admin: %v", err)
	}
	pair, err := auth.GenerateTokenPair(admin.ID, []string{auth.RoleAdmin}, time.Minute, time.Hour)
	if err != nil {
		c.t.Fatalf("admin tokens: %v", err)
	}
	return pair.AccessToken
}

// onboardLawyer registers a lawyer, fills the profile, passes KYC and opens
// availability every day 09:00-18:00. Returns the lawyer id and token.
func (c *apiClient) onboardLawyer(email string) (string, string) {
	c.t.Helper()
	lawyerID, lawyerTok := c.register(email, auth.RoleLawyer)

	resp := c.do(http.MethodPut, "/v1/lawyers/me/profile", map[string]any{
		"bar_number":       "KA/123/2020",
		"practice_areas":   []string{"property", "contracts"},
		"consultation_fee": 100000,
	}, lawyerTok)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("profile: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/lawyers/me/kyc", map[string]any{
		"kind":     "bar_certificate",
		"file_ref": "s3://kyc/bar.pdf",
	}, lawyerTok)
	if resp.StatusCode != http.StatusAccepted {
		c.t.Fatalf("kyc submit: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/admin/kyc/"+lawyerID+"/review", map[string]any{
		"verdict": "verified",
	}, c.adminToken())
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("kyc review: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	avail := map[string]any{}
	for _, day := range []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"} {
		avail[day] = []map[string]string{{"start": "09:00", "end": "18:00"}}
	}
	resp = c.do(http.MethodPut, "/v1/lawyers/me/availability", map[string]any{
		"availability": avail,
	}, lawyerTok)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("availability: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	return lawyerID, lawyerTok
}

func TestAuthRegisterLoginAndMe(t *testing.T) {
	c := newTestAPI(t)

	_, token := c.register("client@example.com", "client")

	resp := c.do(http.MethodGet, "/v1/users/me", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	me := decodeBody[directory.User](t, resp)
	if me.Email != "client@example.com" || me.Role != "client" {
		t.Fatalf("unexpected user: %+v", me)
	}

	// No token, no entry.
	resp = c.do(http.MethodGet, "/v1/users/me", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "client@example.com",
		"password": "s3cret-pass",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	session := decodeBody[sessionResponse](t, resp)
	if session.Tokens.RefreshToken == "" {
		t.Fatal("expected refresh token")
	}

	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.RefreshToken,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	// An access token is not a refresh token.
	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]any{
		"refresh_token": session.Tokens.AccessToken,
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAdminSelfRegistrationRefused(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email":    "root@example.com",
		"password": "s3cret-pass",
		"role":     "admin",
		"name":     "Root",
	}, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAppointmentBookingFlow(t *testing.T) {
	c := newTestAPI(t)
	lawyerID, lawyerTok := c.onboardLawyer("lawyer@example.com")
	_, clientTok := c.register("client@example.com", "client")

	when := time.Now().UTC().AddDate(0, 0, 7)
	scheduled := time.Date(when.Year(), when.Month(), when.Day(), 10, 0, 0, 0, time.UTC)

	resp := c.do(http.MethodPost, "/v1/appointments", map[string]any{
		"lawyer_id":         lawyerID,
		"consultation_type": "video",
		"scheduled_at":      scheduled,
		"duration":          30,
	}, clientTok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	appt := decodeBody[appointment.Appointment](t, resp)
	if appt.Fees.Total != 110000 || appt.Fees.Platform != 10000 {
		t.Fatalf("unexpected fees: %+v", appt.Fees)
	}

	// The client cannot confirm; the lawyer can.
	resp = c.do(http.MethodPost, "/v1/appointments/"+appt.ID+"/confirm", nil, clientTok)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/v1/appointments/"+appt.ID+"/confirm", nil, lawyerTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: status %d", resp.StatusCode)
	}
	confirmed := decodeBody[appointment.Appointment](t, resp)
	if confirmed.MeetingRoom == "" {
		t.Fatal("expected a meeting room after confirmation")
	}

	// Re-confirming an already confirmed appointment conflicts.
	resp = c.do(http.MethodPost, "/v1/appointments/"+appt.ID+"/confirm", nil, lawyerTok)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Double booking the same slot conflicts too.
	_, otherTok := c.register("other@example.com", "client")
	resp = c.do(http.MethodPost, "/v1/appointments", map[string]any{
		"lawyer_id":         lawyerID,
		"consultation_type": "video",
		"scheduled_at":      scheduled.Add(15 * time.Minute),
		"duration":          30,
	}, otherTok)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping slot, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPaymentVerifyOverHTTP(t *testing.T) {
	c := newTestAPI(t)
	_, clientTok := c.register("client@example.com", "client")

	resp := c.do(http.MethodPost, "/v1/payments", map[string]any{
		"kind":     "appointment",
		"ref_id":   "appt-1",
		"amount":   110000,
		"currency": "INR",
	}, clientTok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: status %d", resp.StatusCode)
	}
	p := decodeBody[payment.Payment](t, resp)

	resp = c.do(http.MethodPost, "/v1/payments/"+p.ID+"/verify", map[string]any{
		"gateway_payment_id": "pay_42",
		"signature":          "forged",
	}, clientTok)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad signature, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	sig := payment.Sign(p.GatewayOrderID, "pay_42", gatewaySecret)
	resp = c.do(http.MethodPost, "/v1/payments/"+p.ID+"/verify", map[string]any{
		"gateway_payment_id": "pay_42",
		"signature":          sig,
	}, clientTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d", resp.StatusCode)
	}
	verified := decodeBody[payment.Payment](t, resp)
	if verified.Status != payment.StatusCompleted {
		t.Fatalf("status=%s, want completed", verified.Status)
	}
}

func TestEStampPublicVerification(t *testing.T) {
	c := newTestAPI(t)
	_, clientTok := c.register("client@example.com", "client")

	resp := c.do(http.MethodPost, "/v1/estamps", map[string]any{
		"state":                "Karnataka",
		"stamp_type":           "rental_agreement",
		"consideration_amount": 1000000,
		"parties": []map[string]string{
			{"name": "A", "role": "first_party"},
			{"name": "B", "role": "second_party"},
		},
	}, clientTok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	e := decodeBody[estamp.EStamp](t, resp)

	resp = c.do(http.MethodPost, "/v1/estamps/"+e.ID+"/pay", map[string]any{
		"order_id": "order_7",
	}, clientTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pay: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	sig := payment.Sign("order_7", "pay_7", gatewaySecret)
	resp = c.do(http.MethodPost, "/v1/estamps/"+e.ID+"/verify-payment", map[string]any{
		"payment_id": "pay_7",
		"signature":  sig,
	}, clientTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify-payment: status %d", resp.StatusCode)
	}
	stamped := decodeBody[estamp.EStamp](t, resp)
	if stamped.Certificate == nil {
		t.Fatal("expected certificate")
	}

	// Certificate lookup needs no token.
	resp = c.do(http.MethodGet, "/v1/estamps/verify/"+url.PathEscape(stamped.Certificate.Number), nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public verify: status %d", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["valid"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestESignExternalSignerFlow(t *testing.T) {
	c := newTestAPI(t)
	_, clientTok := c.register("client@example.com", "client")

	resp := c.do(http.MethodPost, "/v1/esignatures", map[string]any{
		"document_id": "doc-1",
		"title":       "Lease deed",
		"signers": []map[string]any{
			{"email": "tenant@example.com", "name": "Tenant", "order": 1},
		},
	}, clientTok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	sr := decodeBody[esign.Request](t, resp)

	resp = c.do(http.MethodPost, "/v1/esignatures/"+sr.ID+"/send", nil, clientTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: status %d", resp.StatusCode)
	}
	resp.Body.Close()

	sent := c.mailer.Sent()
	if len(sent) == 0 {
		t.Fatal("expected OTP mail")
	}
	otp := extractCode(t, sent[len(sent)-1].Body)

	// The external signer holds no bearer token; the code authenticates.
	resp = c.do(http.MethodPost, "/v1/esignatures/"+sr.ID+"/sign", map[string]any{
		"email":         "tenant@example.com",
		"otp":           otp,
		"signature_ref": "data:image/png;base64,...",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sign: status %d", resp.StatusCode)
	}
	signed := decodeBody[esign.Request](t, resp)
	if signed.CompletionPercentage != 100 {
		t.Fatalf("completion=%d, want 100", signed.CompletionPercentage)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	c := newTestAPI(t)
	resp := c.do(http.MethodGet, "/v1/nope", nil, "")
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// extractCode pulls the signing code out of an OTP mail body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	code := strings.TrimPrefix(body, "Your one-time signing code is ")
	code = strings.TrimSuffix(code, ".")
	if code == "" || code == body {
		t.Fatalf("no code in mail body %q", body)
	}
	return code
}

func TestTokenLifetimesConfigurable(t *testing.T) {
	c := newTestAPI(t)
	c.api.SetTokenTTLs(2*time.Minute, 48*time.Hour)

	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"email":    "ttl@example.com",
		"password": "s3cret-pass",
		"role":     "client",
		"name":     "TTL",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	session := decodeBody[sessionResponse](t, resp)

	access, err := auth.ParseAndValidate(session.Tokens.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if ttl := time.Until(access.ExpiresAt.Time); ttl <= time.Minute || ttl > 2*time.Minute {
		t.Fatalf("access token ttl=%s, want about 2m", ttl)
	}
	refresh, err := auth.ParseAndValidate(session.Tokens.RefreshToken)
	if err != nil {
		t.Fatal(err)
	}
	if ttl := time.Until(refresh.ExpiresAt.Time); ttl <= 47*time.Hour || ttl > 48*time.Hour {
		t.Fatalf("refresh token ttl=%s, want about 48h", ttl)
	}
}
