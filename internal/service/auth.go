package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/db"
	"github.com/muhammadshahms/shoe-shop/internal/hash"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/models"
	"github.com/muhammadshahms/shoe-shop/internal/repo"
	"github.com/muhammadshahms/shoe-shop/internal/tokens"
)

const (
	minPasswordLen = 6
	// bcrypt rejects longer input.
	maxPasswordLen = 72
)

type AuthService struct {
	Repo      *repo.GormRepo
	JWTSecret []byte
	AccessTTL time.Duration
}

type LoginResult struct {
	AccessToken string
	AccessExp   time.Time
	UserID      uint
	IsAdmin     bool
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", ErrValidation)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordLen)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}

	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if db.IsUniqueViolation(err) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, fmt.Errorf("%w: user already exists", ErrConflict)
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	user, err := s.Repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
		}
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	}

	ttl := s.AccessTTL
	if ttl <= 0 {
		ttl = tokens.AccessTTL
	}
	accessExp := time.Now().Add(ttl)
	accessToken, err := tokens.NewAccessToken(s.JWTSecret, user.ID, user.Role, accessExp)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: accessToken,
		AccessExp:   accessExp,
		UserID:      user.ID,
		IsAdmin:     user.Role == models.RoleAdmin,
	}, nil
}
