package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kdlacuna/kainan/internal/auth"
	"github.com/kdlacuna/kainan/internal/models"
	"github.com/kdlacuna/kainan/internal/services"
	pkghttp "github.com/kdlacuna/kainan/pkg/http"
)

// LoginFlowService defines the interface for one login flow's state machine
type LoginFlowService interface {
	SubmitCredentials(ctx context.Context, email, password, ip, userAgent string) (*services.LoginStep, error)
	SubmitCode(ctx context.Context, sessionID, code, ip string) (*services.LoginStep, error)
	ResendCode(ctx context.Context, sessionID, ip string) error
	Logout(ctx context.Context, sessionID, ip string) error
	SessionTTLSeconds() int
	PendingTTLSeconds() int
}

// LoginHandler serves one login flow: submit credentials, submit code,
// resend code, logout. The staff and student flows each get their own
// instance wired to their own LoginService.
type LoginHandler struct {
	service  LoginFlowService
	ipConfig *pkghttp.IPConfig
	cookies  auth.CookieConfig
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(service LoginFlowService, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig) *LoginHandler {
	return &LoginHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
	}
}

// Request DTOs

// CredentialsRequest represents the request body for credential submission
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CodeRequest represents the request body for code submission
type CodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// MessageResponse is a generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// SubmitCredentials handles the first login step.
func (h *LoginHandler) SubmitCredentials(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	step, err := h.service.SubmitCredentials(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	if err != nil {
		h.writeStepError(w, step, err)
		return
	}

	auth.SetSessionCookie(w, step.SessionID, h.service.PendingTTLSeconds(), h.cookies)
	writeJSON(w, http.StatusOK, step)
}

// SubmitCode handles the second login step.
func (h *LoginHandler) SubmitCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	sessionID, _ := auth.GetSessionCookie(r)
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	step, err := h.service.SubmitCode(r.Context(), sessionID, req.Code, ipAddress)
	if err != nil {
		if sessionCookieIsDead(err) {
			auth.ClearSessionCookie(w, h.cookies)
		}
		h.writeStepError(w, step, err)
		return
	}

	// The session identifier changed at elevation; reissue the cookie.
	auth.SetSessionCookie(w, step.SessionID, h.service.SessionTTLSeconds(), h.cookies)
	writeJSON(w, http.StatusOK, step)
}

// ResendCode re-sends the pending login's code.
func (h *LoginHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := auth.GetSessionCookie(r)
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ResendCode(r.Context(), sessionID, ipAddress); err != nil {
		switch {
		case errors.Is(err, models.ErrNoPendingLogin):
			if sessionCookieIsDead(err) {
				auth.ClearSessionCookie(w, h.cookies)
			}
			pkghttp.WriteUnauthorized(w, "Your login session has expired. Please sign in again.")
		case errors.Is(err, models.ErrDeliveryFailed):
			pkghttp.WriteServiceUnavailable(w, "We couldn't send your login code. Please try again.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If your login is still pending, a new code is on its way.",
	})
}

// Logout discards the caller's session and clears the cookie. Idempotent:
// a missing or stale cookie still gets a clean 200.
func (h *LoginHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := auth.GetSessionCookie(r)
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Logout(r.Context(), sessionID, ipAddress); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out."})
}

// writeStepError maps state-machine errors onto HTTP responses. Credential
// and eligibility failures share one generic message.
func (h *LoginHandler) writeStepError(w http.ResponseWriter, step *services.LoginStep, err error) {
	var locked *models.LockedError
	switch {
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, locked.RemainingSeconds)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteAuthFailed(w, "Invalid email or password.", remainingFrom(step))
	case errors.Is(err, models.ErrChallengeInvalid):
		pkghttp.WriteAuthFailed(w, "Invalid or expired code.", remainingFrom(step))
	case errors.Is(err, models.ErrNoPendingLogin):
		pkghttp.WriteUnauthorized(w, "Your login session has expired. Please sign in again.")
	case errors.Is(err, models.ErrDeliveryFailed):
		pkghttp.WriteServiceUnavailable(w, "We couldn't send your login code. Please try again.")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// sessionCookieIsDead reports whether the pending-login error means the
// cookie points at no session at all. An already-elevated session keeps
// its cookie: clearing it would log the caller out client-side.
func sessionCookieIsDead(err error) bool {
	return errors.Is(err, models.ErrNoPendingLogin) &&
		!errors.Is(err, models.ErrSessionNotPending)
}

func remainingFrom(step *services.LoginStep) *int {
	if step == nil {
		return nil
	}
	return step.RemainingAttempts
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
