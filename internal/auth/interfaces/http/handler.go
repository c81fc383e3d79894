package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"geomon-cloud/internal/alerting/notify"
	"geomon-cloud/internal/auth"
	"geomon-cloud/internal/observability/metrics"
)

// UserStore loads and updates accounts.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// TokenStore issues and consumes password-reset tokens.
type TokenStore interface {
	Create(ctx context.Context, email string, ttl time.Duration) (*auth.ResetToken, error)
	Get(ctx context.Context, token string) (*auth.ResetToken, error)
	MarkUsed(ctx context.Context, token string) error
}

// Handler provides authentication HTTP endpoints.
type Handler struct {
	users    UserStore
	tokens   TokenStore
	mailer   notify.Mailer
	secret   []byte
	tokenTTL time.Duration
	resetTTL time.Duration
	resetURL string
	logger   *log.Logger
	now      func() time.Time
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithClock overrides the handler's clock.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a handler. resetURL is the frontend page reset links
// point at; the token is appended as a query parameter.
func NewHandler(users UserStore, tokens TokenStore, mailer notify.Mailer, secret []byte, tokenTTL, resetTTL time.Duration, resetURL string, logger *log.Logger, opts ...HandlerOption) (*Handler, error) {
	if users == nil {
		return nil, errors.New("auth handler: nil user store")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth handler: empty secret")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{
		users:    users,
		tokens:   tokens,
		mailer:   mailer,
		secret:   secret,
		tokenTTL: tokenTTL,
		resetTTL: resetTTL,
		resetURL: resetURL,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles the authentication routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/login":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleLogin(w, r)
	case "/api/check-auth":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCheckAuth(w, r)
	case "/api/forgot-password":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleForgotPassword(w, r)
	case "/api/reset-password":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleResetPassword(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Printf("login lookup error: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	if user == nil {
		metrics.IncLogin(metrics.ResultError)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	ok, upgrade := auth.VerifyPassword(user.PasswordHash, req.Password)
	if !ok {
		metrics.IncLogin(metrics.ResultError)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if upgrade {
		if hash, err := auth.HashPassword(req.Password); err == nil {
			if err := h.users.UpdatePassword(r.Context(), user.Email, hash); err != nil {
				h.logger.Printf("password upgrade for %s error: %v", user.Email, err)
			}
		}
	}

	token, err := auth.IssueJWT(user.Email, user.Role, h.secret, h.tokenTTL)
	if err != nil {
		h.logger.Printf("issue token error: %v", err)
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	metrics.IncLogin(metrics.ResultSuccess)
	writeJSON(w, loginResponse{Token: token, Email: user.Email, Role: string(user.Role)})
}

type checkAuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
}

func (h *Handler) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	var token string
	if _, err := fmt.Sscanf(header, "Bearer %s", &token); err != nil {
		writeJSON(w, checkAuthResponse{Authenticated: false})
		return
	}
	claims, err := auth.ParseJWT(token, h.secret)
	if err != nil {
		writeJSON(w, checkAuthResponse{Authenticated: false})
		return
	}
	writeJSON(w, checkAuthResponse{Authenticated: true, Email: claims.Email, Role: claims.Role})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword always answers 200: whether an account exists is not
// disclosed to the caller.
func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	if h.tokens == nil || h.mailer == nil {
		http.Error(w, "password reset not configured", http.StatusServiceUnavailable)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Printf("forgot-password lookup error: %v", err)
	}
	if user != nil {
		token, err := h.tokens.Create(r.Context(), user.Email, h.resetTTL)
		if err != nil {
			h.logger.Printf("create reset token error: %v", err)
		} else if err := h.sendResetEmail(r.Context(), user.Email, token.Token); err != nil {
			h.logger.Printf("send reset email error: %v", err)
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) sendResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s?token=%s", h.resetURL, token)
	body := fmt.Sprintf(`<html><body>
<p>A password reset was requested for this address.</p>
<p><a href="%s">Reset your password</a></p>
<p>The link expires in %s. If you did not request this, ignore this email.</p>
</body></html>`, link, h.resetTTL)
	return h.mailer.Send(ctx, notify.Email{
		To:      []string{email},
		Subject: "Password reset",
		HTML:    body,
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.Password == "" {
		http.Error(w, "token and password are required", http.StatusBadRequest)
		return
	}
	if h.tokens == nil {
		http.Error(w, "password reset not configured", http.StatusServiceUnavailable)
		return
	}

	token, err := h.tokens.Get(r.Context(), req.Token)
	if err != nil {
		h.logger.Printf("reset token lookup error: %v", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	if token == nil || !token.Usable(h.now()) {
		http.Error(w, "invalid or expired token", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.users.UpdatePassword(r.Context(), token.Email, hash); err != nil {
		h.logger.Printf("reset password update error: %v", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	if err := h.tokens.MarkUsed(r.Context(), token.Token); err != nil {
		h.logger.Printf("consume reset token error: %v", err)
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
