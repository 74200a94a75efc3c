package httpapi

import (
	"net/http"
	"strings"

	"lexhub.org/internal/audit"
	"lexhub.org/internal/auth"
	"lexhub.org/internal/directory"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	User   directory.User `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = auth.RoleClient
	}
	if role == auth.RoleAdmin {
		writeError(w, r, http.StatusForbidden, "admin accounts cannot self-register")
		return
	}

	user, err := a.directory.Register(r.Context(), req.Email, req.Password, role, req.Name)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	pair, err := auth.GenerateTokenPair(user.ID, []string{user.Role}, a.accessTTL, a.refreshTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
		"role":    user.Role,
	})

	w.Header().Set("Location", "/v1/users/me")
	writeJSON(w, http.StatusCreated, sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	pair, err := auth.GenerateTokenPair(user.ID, []string{user.Role}, a.accessTTL, a.refreshTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": user.ID,
	})

	writeJSON(w, http.StatusOK, sessionResponse{User: user, Tokens: pair})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := auth.ParseAndValidate(strings.TrimSpace(req.RefreshToken))
	if err != nil || claims.TokenType != auth.TokenTypeRefresh {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	// The account may have been suspended since the token was issued.
	user, err := a.directory.GetUser(r.Context(), claims.Subject)
	if err != nil || user.Status != directory.UserActive {
		writeError(w, r, http.StatusUnauthorized, "account is not active")
		return
	}

	pair, err := auth.GenerateTokenPair(user.ID, []string{user.Role}, a.accessTTL, a.refreshTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: user, Tokens: pair})
}
