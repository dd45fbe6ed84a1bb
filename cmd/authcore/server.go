package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 1 << 20

// authService is the engine surface used by the handlers.
type authService interface {
	middleware.AccountLoader
	Signup(ctx context.Context, req authcore.SignupRequest) error
	Login(ctx context.Context, email, password string) (*authcore.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (authcore.TokenPair, error)
	Logout(ctx context.Context, accountID string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
}

type server struct {
	auth   authService
	logger *slog.Logger
	now    func() time.Time
}

// newRouter mounts the JSON request layer. metrics may be nil.
func newRouter(auth authService, metrics http.Handler, trustProxy bool, logger *slog.Logger) http.Handler {
	s := &server{auth: auth, logger: logger, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.Handle("POST /logout", middleware.RequireAccess(auth)(http.HandlerFunc(s.handleLogout)))
	mux.HandleFunc("GET /verify-email", s.handleVerifyEmail)
	mux.HandleFunc("POST /resend-verification", s.handleResendVerification)
	mux.Handle("GET /me", middleware.RequireAccount(auth)(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return middleware.RequestMeta(trustProxy)(mux)
}

type signupBody struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resendBody struct {
	Email string `json:"email"`
}

type refreshBody struct {
	RefreshToken string `json:"refreshToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if !s.decode(w, r, &body) {
		return
	}
	err := s.auth.Signup(r.Context(), authcore.SignupRequest{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Email:     body.Email,
		Password:  body.Password,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{
		Message: "Account created. Check your email to verify your address.",
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !s.decode(w, r, &body) {
		return
	}
	pair, err := s.auth.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	if err := s.auth.Logout(r.Context(), claims.AccountID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "verification token missing"})
		return
	}
	if err := s.auth.VerifyEmail(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Email verified. You can now log in.",
	})
}

// handleResendVerification answers the same way whether or not the address
// belongs to a pending account.
func (s *server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var body resendBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.auth.ResendVerification(r.Context(), body.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "If that address has a pending account, a new verification email is on its way.",
	})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, ok := middleware.ProfileFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

// writeError maps engine sentinels to a status and a fixed public message.
// The cause is only logged.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, authcore.ErrValidation):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, authcore.ErrDuplicateAccount):
		return http.StatusConflict, "an account with this email already exists"
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, authcore.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid token"
	case errors.Is(err, authcore.ErrAccountNotVerified):
		return http.StatusForbidden, "please verify your email before logging in"
	case errors.Is(err, authcore.ErrVerificationInvalid):
		return http.StatusBadRequest, "verification link is invalid or has already been used"
	case errors.Is(err, authcore.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, authcore.ErrDependency):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
