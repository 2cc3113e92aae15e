package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-ops/meridian-ops/internal/shared"
)

// RepositoryPort describes the persistence operations used by Service.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// TokenPort mints and revokes bearer tokens.
type TokenPort interface {
	Issue(ctx context.Context, user User) (string, error)
	Revoke(ctx context.Context, token string) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   RepositoryPort
	tokens TokenPort
	audit  AuditPort
}

// NewService constructs the auth service.
func NewService(repo RepositoryPort, tokens TokenPort, audit AuditPort) *Service {
	return &Service{repo: repo, tokens: tokens, audit: audit}
}

const minPasswordLength = 8

// RegisterInput carries the account creation payload.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name"`
	Password string `json:"password" validate:"required,min=8"`
}

// Register creates a new active account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || len(input.Password) < minPasswordLength {
		return User{}, ErrValidation
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		Email:        email,
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hash),
		IsActive:     true,
	}
	id, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.recordAudit(ctx, id, "USER_REGISTER", id, map[string]any{"email": email})
	return s.repo.GetUser(ctx, id)
}

// Authenticate validates email/password credentials. Unknown accounts,
// wrong passwords and deactivated accounts all return the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and mints a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (User, string, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return User{}, "", err
	}
	token, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return User{}, "", err
	}
	s.recordAudit(ctx, user.ID, "USER_LOGIN", user.ID, nil)
	return user, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, actorID int64, token string) error {
	if err := s.tokens.Revoke(ctx, token); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_LOGOUT", actorID, nil)
	return nil
}

// GetUser fetches an account by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < minPasswordLength {
		return ErrValidation
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "USER_PASSWORD_CHANGE", userID, nil)
	return nil
}

// Deactivate disables an account. Existing tokens expire on their own TTL.
func (s *Service) Deactivate(ctx context.Context, actorID int64, userID int64) error {
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "USER_DEACTIVATE", userID, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: fmt.Sprintf("%d", userID), Meta: meta})
}
