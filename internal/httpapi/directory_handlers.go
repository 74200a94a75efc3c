package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"lexhub.org/internal/audit"
	"lexhub.org/internal/directory"
)

type updateUserRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type lawyerProfileRequest struct {
	BarNumber       string   `json:"bar_number"`
	PracticeAreas   []string `json:"practice_areas"`
	ConsultationFee int64    `json:"consultation_fee"`
}

type kycSubmitRequest struct {
	Kind    string `json:"kind"`
	FileRef string `json:"file_ref"`
}

type kycReviewRequest struct {
	Verdict string `json:"verdict"` // verified | rejected
	Note    string `json:"note"`
}

type availabilityRequest struct {
	// Weekday name -> windows, e.g. {"Monday":[{"start":"09:00","end":"18:00"}]}
	Availability map[string][]directory.TimeRange `json:"availability"`
}

func (a *API) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.directory.GetUser(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodPatch:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.directory.UpdateUser(r.Context(), userID, req.Name, req.Phone)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)

	case http.MethodDelete:
		user, err := a.directory.Deactivate(r.Context(), userID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		// Deactivation cancels everything still open for the account.
		cancelled, err := a.appointments.CancelOpenForUser(r.Context(), userID, "account deactivated")
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		docsCancelled, err := a.documents.CancelOpenForUser(r.Context(), userID, "account deactivated")
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.deactivate", map[string]any{
			"user_id":                userID,
			"appointments_cancelled": cancelled,
			"documents_cancelled":    docsCancelled,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"user":                   user,
			"appointments_cancelled": cancelled,
			"documents_cancelled":    docsCancelled,
		})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleLawyersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	lawyers, err := a.directory.ListLawyers(r.Context(), r.URL.Query().Get("practice_area"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": lawyers})
}

func (a *API) handleLawyerResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/lawyers/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	// Lawyer self-service endpoints.
	if rest, ok := strings.CutPrefix(path, "me/"); ok {
		a.handleLawyerSelf(w, r, rest)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	lawyer, err := a.directory.GetLawyer(r.Context(), path)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lawyer)
}

func (a *API) handleLawyerSelf(w http.ResponseWriter, r *http.Request, rest string) {
	userID, ok := currentUser(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch rest {
	case "profile":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req lawyerProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		profile, err := a.directory.UpsertLawyerProfile(r.Context(), userID, req.BarNumber, req.PracticeAreas, req.ConsultationFee)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)

	case "kyc":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req kycSubmitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		profile, err := a.directory.SubmitKYCDocument(r.Context(), userID, req.Kind, req.FileRef)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.kyc.submit", map[string]any{
			"user_id": userID,
			"kind":    req.Kind,
		})
		writeJSON(w, http.StatusAccepted, profile)

	case "availability":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		var req availabilityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		avail, err := parseAvailability(req.Availability)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		profile, err := a.directory.SetAvailability(r.Context(), userID, avail)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)

	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleAdmin routes /v1/admin/kyc/{lawyerID}/review and
// /v1/admin/users/{id}/suspend. All admin routes require the admin role.
func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/")

	if id, ok := cutAction(path, "kyc/", "/review"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req kycReviewRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		profile, err := a.directory.ReviewKYC(r.Context(), id, req.Verdict, req.Note)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.kyc.review", map[string]any{
			"lawyer_id": id,
			"verdict":   req.Verdict,
		})
		writeJSON(w, http.StatusOK, profile)
		return
	}

	if id, ok := cutAction(path, "users/", "/suspend"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		user, err := a.directory.Suspend(r.Context(), id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "directory.user.suspend", map[string]any{
			"user_id": id,
		})
		writeJSON(w, http.StatusOK, user)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

// cutAction extracts the id from "<prefix><id><suffix>" paths.
func cutAction(path, prefix, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, suffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

func parseAvailability(in map[string][]directory.TimeRange) (map[time.Weekday][]directory.TimeRange, error) {
	out := make(map[time.Weekday][]directory.TimeRange, len(in))
	for name, ranges := range in {
		day, ok := weekdays[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		out[day] = ranges
	}
	return out, nil
}
