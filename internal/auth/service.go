// Package auth implements registration, login and the access/refresh token
// lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/filevault/internal/apperr"
	"github.com/filevault/internal/models"
	"github.com/filevault/internal/repository"
)

// UserStore is the persistence the service needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Session is the outcome of register and login.
type Session struct {
	User   *models.User
	Tokens TokenPair
}

// Service 认证服务
type Service struct {
	users      UserStore
	tokens     *TokenIssuer
	bcryptCost int
	logger     logrus.FieldLogger
}

func NewService(users UserStore, tokens *TokenIssuer, bcryptCost int, logger logrus.FieldLogger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Register creates an account and logs it in. Field formats are checked by
// the request binding; blank values left after trimming are refused here.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		return nil, apperr.Validation("Name, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("User already exists")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	return s.session(user)
}

// Login 验证用户凭据并签发令牌
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.InvalidCredentials()
		}
		return nil, apperr.Internal(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.InvalidCredentials()
	}

	return s.session(user)
}

// Refresh verifies a refresh token, reloads its user and mints a new access
// token. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, *models.User, error) {
	if refreshToken == "" {
		return "", nil, apperr.Auth("No refresh token provided")
	}

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.CodeAuth, "Invalid or expired refresh token", err)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, apperr.Auth("Invalid or expired refresh token")
		}
		return "", nil, apperr.Internal(err)
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return "", nil, apperr.Internal(err)
	}
	return access, user, nil
}

// Authenticate resolves the user id carried by an access token.
func (s *Service) Authenticate(accessToken string) (string, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeAuth, "Invalid or expired token", err)
	}
	return claims.UserID, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{User: user, Tokens: pair}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
