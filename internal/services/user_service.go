package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"teamflow/internal/models"
	"teamflow/internal/repositories"
)

type UserService interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	// Login returns a signed access token for valid credentials.
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	Me(ctx context.Context, actorID string) (*models.User, error)
}

type userService struct {
	repo repositories.UserRepository
	auth *AuthService

	now   func() time.Time
	newID func() string
}

func NewUserService(repo repositories.UserRepository, auth *AuthService) UserService {
	return &userService{repo: repo, auth: auth, now: time.Now, newID: uuid.NewString}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *userService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	errs := fieldErrors{}
	if name == "" {
		errs.add("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		errs.add("email", "email is invalid")
	}
	if len(req.Password) < minPasswordLen {
		errs.add("password", "password must be at least 8 characters")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    timestamp(s.now),
	}
	if err := s.repo.Store(ctx, user); err != nil {
		return nil, storeErr("store user", err)
	}
	return user, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			log.WithField("email", email).Info("auth.login unknown email")
			return "", nil, ErrUnauthorized
		}
		return "", nil, storeErr("find user", err)
	}
	if !s.auth.CheckPassword(user.PasswordHash, password) {
		log.WithField("user", user.ID).Info("auth.login password mismatch")
		return "", nil, ErrUnauthorized
	}
	token, _, err := s.auth.IssueToken(user.ID, user.Name)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *userService) Me(ctx context.Context, actorID string) (*models.User, error) {
	if actorID == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.repo.FindByID(ctx, actorID)
	if err != nil {
		return nil, storeErr("find user", err)
	}
	return user, nil
}
