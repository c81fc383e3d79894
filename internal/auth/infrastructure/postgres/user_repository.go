package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"geomon-cloud/internal/auth"
)

// UserRepository is a Postgres repository for accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail returns a user, or (nil, nil) when absent.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("user repo: nil db")
	}
	if email == "" {
		return nil, errors.New("user repo: empty email")
	}
	var (
		user auth.User
		role string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, email, password, role, created_at, updated_at
FROM users
WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	normalized, ok := auth.NormalizeRole(role)
	if !ok {
		normalized = auth.RoleViewer
	}
	user.Role = normalized
	return &user, nil
}

// UpdatePassword replaces a user's stored credential.
func (r *UserRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	if r == nil || r.db == nil {
		return errors.New("user repo: nil db")
	}
	if email == "" || passwordHash == "" {
		return errors.New("user repo: empty email or password")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE users SET password = $2, updated_at = $3 WHERE email = $1`,
		email, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("user repo: no such user")
	}
	return nil
}

// ResetTokenRepository is a Postgres repository for password-reset tokens.
type ResetTokenRepository struct {
	db *sql.DB
}

// NewResetTokenRepository constructs a repository.
func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create issues a token for the email and returns it.
func (r *ResetTokenRepository) Create(ctx context.Context, email string, ttl time.Duration) (*auth.ResetToken, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reset token repo: nil db")
	}
	if email == "" {
		return nil, errors.New("reset token repo: empty email")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now().UTC()
	token := auth.ResetToken{
		Token:     uuid.NewString(),
		Email:     email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO password_reset_tokens (token, email, expires_at, created_at)
VALUES ($1, $2, $3, $4)`,
		token.Token, token.Email, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Get returns a token, or (nil, nil) when absent.
func (r *ResetTokenRepository) Get(ctx context.Context, token string) (*auth.ResetToken, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reset token repo: nil db")
	}
	if token == "" {
		return nil, errors.New("reset token repo: empty token")
	}
	var (
		rt     auth.ResetToken
		usedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT token, email, expires_at, used_at, created_at
FROM password_reset_tokens
WHERE token = $1`, token).
		Scan(&rt.Token, &rt.Email, &rt.ExpiresAt, &usedAt, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		rt.UsedAt = &t
	}
	return &rt, nil
}

// MarkUsed consumes a token. Consuming an already-used token is an error.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, token string) error {
	if r == nil || r.db == nil {
		return errors.New("reset token repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE password_reset_tokens SET used_at = $2
WHERE token = $1 AND used_at IS NULL`, token, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("reset token repo: token missing or already used")
	}
	return nil
}
