package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"lexhub.org/internal/appointment"
	"lexhub.org/internal/assistant"
	"lexhub.org/internal/chat"
	"lexhub.org/internal/directory"
	"lexhub.org/internal/document"
	"lexhub.org/internal/esign"
	"lexhub.org/internal/estamp"
	"lexhub.org/internal/obs"
	"lexhub.org/internal/payment"
)

// ReadyProbe reports service readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the domain services the HTTP layer fronts. Assistant and
// Chat may be nil; their routes answer 503 when disabled.
type Services struct {
	Directory    directory.Service
	Appointments appointment.Service
	Documents    document.Service
	ESign        esign.Service
	EStamps      estamp.Service
	Payments     payment.Service
	Assistant    *assistant.Service
	Chat         *chat.Hub
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	directory    directory.Service
	appointments appointment.Service
	documents    document.Service
	esign        esign.Service
	estamps      estamp.Service
	payments     payment.Service
	assistant    *assistant.Service
	chat         *chat.Hub

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64

	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(rp ReadyProbe, version string, svcs Services) *API {
	a := &API{
		mux:          http.NewServeMux(),
		rateBurst:    40,
		ratePerSec:   20,
		maxBodyBytes: 1 << 20,
		accessTTL:    15 * time.Minute,
		refreshTTL:   7 * 24 * time.Hour,
		readyProbe:   rp,
		version:      version,
		directory:    svcs.Directory,
		appointments: svcs.Appointments,
		documents:    svcs.Documents,
		esign:        svcs.ESign,
		estamps:      svcs.EStamps,
		payments:     svcs.Payments,
		assistant:    svcs.Assistant,
		chat:         svcs.Chat,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)

	a.mux.HandleFunc("/v1/users/me", a.handleCurrentUser)
	a.mux.HandleFunc("/v1/lawyers", a.handleLawyersCollection)
	a.mux.HandleFunc("/v1/lawyers/", a.handleLawyerResource)
	a.mux.HandleFunc("/v1/admin/", a.handleAdmin)

	a.mux.HandleFunc("/v1/appointments", a.handleAppointmentsCollection)
	a.mux.HandleFunc("/v1/appointments/", a.handleAppointmentResource)

	a.mux.HandleFunc("/v1/documents", a.handleDocumentsCollection)
	a.mux.HandleFunc("/v1/documents/", a.handleDocumentResource)

	a.mux.HandleFunc("/v1/esignatures", a.handleESignCollection)
	a.mux.HandleFunc("/v1/esignatures/", a.handleESignResource)

	a.mux.HandleFunc("/v1/estamps", a.handleEStampsCollection)
	a.mux.HandleFunc("/v1/estamps/", a.handleEStampResource)

	a.mux.HandleFunc("/v1/payments", a.handlePaymentsCollection)
	a.mux.HandleFunc("/v1/payments/", a.handlePaymentResource)

	a.mux.HandleFunc("/v1/assistant/chat", a.handleAssistantChat)
	a.mux.HandleFunc("/v1/assistant/sessions/", a.handleAssistantSession)

	a.mux.HandleFunc("/v1/chat/rooms", a.handleChatRooms)
	a.mux.HandleFunc("/v1/chat/rooms/", a.handleChatRoomResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetLimits overrides the default rate and body-size limits.
func (a *API) SetLimits(perSecond, burst int, maxBodyBytes int64) {
	if perSecond > 0 {
		a.ratePerSec = perSecond
	}
	if burst > 0 {
		a.rateBurst = burst
	}
	if maxBodyBytes > 0 {
		a.maxBodyBytes = maxBodyBytes
	}
}

// SetTokenTTLs overrides the default access/refresh token lifetimes.
func (a *API) SetTokenTTLs(access, refresh time.Duration) {
	if access > 0 {
		a.accessTTL = access
	}
	if refresh > 0 {
		a.refreshTTL = refresh
	}
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lexhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lexhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
