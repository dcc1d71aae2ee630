package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tappbx/tappbx/internal/api/middleware"
	"github.com/tappbx/tappbx/internal/database"
)

type loginRequest struct {
	Domain   string `json:"domain"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Username  string `json:"username"`
	DomainID  string `json:"domain_id"`
	IsAdmin   bool   `json:"is_admin"`
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleLogin verifies credentials and issues an admin JWT. Every failure
// path feeds the login throttle.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Domain == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "domain, username and password are required")
		return
	}

	addr := clientAddress(r)
	fail := func() {
		s.deps.Throttle.Fail(r.Context(), addr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	}

	dom, err := s.deps.Domains.GetByName(r.Context(), req.Domain)
	if err != nil {
		slog.Error("login: domain lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if dom == nil || !dom.Enabled {
		fail()
		return
	}

	user, err := s.deps.Users.GetByUsername(r.Context(), dom.ID, req.Username)
	if err != nil {
		slog.Error("login: user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !user.Enabled {
		fail()
		return
	}

	match, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		slog.Error("login: password check", "error", err, "username", req.Username)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !match {
		fail()
		return
	}

	token, expiresAt, err := middleware.GenerateAdminToken(
		s.secret, user.ID, user.DomainID, user.Username, user.IsAdmin)
	if err != nil {
		slog.Error("login: signing token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.deps.Throttle.Reset(r.Context(), addr)
	slog.Info("admin login", "username", user.Username, "domain", dom.Name, "address", addr)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		Username:  user.Username,
		DomainID:  user.DomainID,
		IsAdmin:   user.IsAdmin,
	})
}

// handleMe returns the authenticated identity from the token claims.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   claims.UserID,
		"domain_id": claims.DomainID,
		"username":  claims.Subject,
		"is_admin":  claims.IsAdmin,
	})
}
