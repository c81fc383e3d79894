package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"geomon-cloud/internal/alerting/notify"
	"geomon-cloud/internal/auth"
)

type stubUsers struct {
	user    *auth.User
	updated map[string]string
}

func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user != nil && s.user.Email == email {
		return s.user, nil
	}
	return nil, nil
}

func (s *stubUsers) UpdatePassword(ctx context.Context, email, hash string) error {
	if s.updated == nil {
		s.updated = make(map[string]string)
	}
	s.updated[email] = hash
	return nil
}

type stubTokens struct {
	issued []auth.ResetToken
	byID   map[string]*auth.ResetToken
	used   []string
}

func (s *stubTokens) Create(ctx context.Context, email string, ttl time.Duration) (*auth.ResetToken, error) {
	token := auth.ResetToken{
		Token:     "token-1",
		Email:     email,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}
	s.issued = append(s.issued, token)
	if s.byID == nil {
		s.byID = make(map[string]*auth.ResetToken)
	}
	s.byID[token.Token] = &token
	return &token, nil
}

func (s *stubTokens) Get(ctx context.Context, token string) (*auth.ResetToken, error) {
	return s.byID[token], nil
}

func (s *stubTokens) MarkUsed(ctx context.Context, token string) error {
	s.used = append(s.used, token)
	return nil
}

type captureMailer struct {
	sent []notify.Email
}

func (m *captureMailer) Send(ctx context.Context, email notify.Email) error {
	m.sent = append(m.sent, email)
	return nil
}

func newTestHandler(t *testing.T, users *stubUsers, tokens *stubTokens, mailer notify.Mailer) *Handler {
	t.Helper()
	logger := log.New(&strings.Builder{}, "", 0)
	h, err := NewHandler(users, tokens, mailer, []byte("test-secret"),
		time.Hour, time.Hour, "https://monitor.example.com/reset", logger)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func hashedUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.User{Email: "eng@example.com", PasswordHash: hash, Role: auth.RoleOperator}
}

func TestLoginIssuesToken(t *testing.T) {
	users := &stubUsers{user: hashedUser(t, "secret")}
	h := newTestHandler(t, users, &stubTokens{}, &captureMailer{})

	body := strings.NewReader(`{"email":"eng@example.com","password":"secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out loginResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := auth.ParseJWT(out.Token, []byte("test-secret"))
	if err != nil {
		t.Fatalf("issued token must parse: %v", err)
	}
	if claims.Email != "eng@example.com" || claims.Role != "operator" {
		t.Errorf("claims wrong: %+v", claims)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	users := &stubUsers{user: hashedUser(t, "secret")}
	h := newTestHandler(t, users, &stubTokens{}, &captureMailer{})

	body := strings.NewReader(`{"email":"eng@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestLoginUpgradesLegacyPassword(t *testing.T) {
	users := &stubUsers{user: &auth.User{Email: "eng@example.com", PasswordHash: "plain-secret", Role: auth.RoleViewer}}
	h := newTestHandler(t, users, &stubTokens{}, &captureMailer{})

	body := strings.NewReader(`{"email":"eng@example.com","password":"plain-secret"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/login", body)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("legacy credential must log in, got %d", resp.Code)
	}
	hash, ok := users.updated["eng@example.com"]
	if !ok {
		t.Fatal("legacy credential must be rehashed on login")
	}
	if verified, upgrade := auth.VerifyPassword(hash, "plain-secret"); !verified || upgrade {
		t.Error("stored credential must now be a bcrypt hash")
	}
}

func TestForgotPasswordDoesNotDiscloseAccounts(t *testing.T) {
	users := &stubUsers{user: hashedUser(t, "secret")}
	tokens := &stubTokens{}
	mailer := &captureMailer{}
	h := newTestHandler(t, users, tokens, mailer)

	req := httptest.NewRequest(http.MethodPost, "/api/forgot-password",
		strings.NewReader(`{"email":"nobody@example.com"}`))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unknown account must still answer 200, got %d", resp.Code)
	}
	if len(tokens.issued) != 0 || len(mailer.sent) != 0 {
		t.Error("unknown account must not produce a token or email")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/forgot-password",
		strings.NewReader(`{"email":"eng@example.com"}`))
	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(tokens.issued) != 1 || len(mailer.sent) != 1 {
		t.Fatal("known account must receive a reset email")
	}
	if !strings.Contains(mailer.sent[0].HTML, "token-1") {
		t.Error("reset email must carry the token link")
	}
}

func TestResetPasswordConsumesToken(t *testing.T) {
	users := &stubUsers{user: hashedUser(t, "old")}
	tokens := &stubTokens{}
	h := newTestHandler(t, users, tokens, &captureMailer{})
	if _, err := tokens.Create(context.Background(), "eng@example.com", time.Hour); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reset-password",
		strings.NewReader(`{"token":"token-1","password":"brand-new"}`))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	hash, ok := users.updated["eng@example.com"]
	if !ok {
		t.Fatal("password must be updated")
	}
	if verified, _ := auth.VerifyPassword(hash, "brand-new"); !verified {
		t.Error("new password must verify")
	}
	if len(tokens.used) != 1 {
		t.Error("token must be consumed")
	}
}

func TestResetPasswordRejectsExpiredToken(t *testing.T) {
	users := &stubUsers{user: hashedUser(t, "old")}
	tokens := &stubTokens{byID: map[string]*auth.ResetToken{
		"stale": {Token: "stale", Email: "eng@example.com", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	h := newTestHandler(t, users, tokens, &captureMailer{})

	req := httptest.NewRequest(http.MethodPost, "/api/reset-password",
		strings.NewReader(`{"token":"stale","password":"new"}`))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expired token must be rejected, got %d", resp.Code)
	}
	if len(users.updated) != 0 {
		t.Error("expired token must not change the password")
	}
}
