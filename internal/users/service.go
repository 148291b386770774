package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

type Store interface {
	CreateTemp(ctx context.Context, in TempInput) (string, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	GetMany(ctx context.Context, ids []string) ([]User, error)
	Insert(ctx context.Context, in RegisterInput, hash string) (User, error)
	Upgrade(ctx context.Context, id string, in RegisterInput, hash string) (User, error)
}

type Service struct {
	Repo   Store
	Tokens *Tokens
	Log    *slog.Logger
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

// CreateTemp is idempotent by email.
func (s *Service) CreateTemp(ctx context.Context, in TempInput) (string, error) {
	if in.Email == "" {
		return "", apperr.BadRequest("email is required")
	}
	id, err := s.Repo.CreateTemp(ctx, in)
	if err != nil {
		return "", apperr.Internal("create temp user", err)
	}
	return id, nil
}

// GetBulk omits ids that do not exist.
func (s *Service) GetBulk(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	us, err := s.Repo.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("bulk users", err)
	}
	return us, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.Repo.GetByID(ctx, id)
}

// Register creates an account, or upgrades the temp user that checked out with the same email.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	existing, err := s.Repo.GetByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	upgrade := err == nil && existing.IsTemp
	if err == nil && !upgrade {
		return "", apperr.BadRequest("Email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost())
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}

	var u User
	if upgrade {
		u, err = s.Repo.Upgrade(ctx, existing.ID, in, string(hash))
	} else {
		u, err = s.Repo.Insert(ctx, in, string(hash))
	}
	if err != nil {
		return "", err
	}
	s.Log.Info("user registered", "user_id", u.ID, "upgraded", upgrade)
	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (string, error) {
	u, err := s.Repo.GetByEmail(ctx, in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return "", err
	}
	if u.IsTemp {
		return "", apperr.BadRequest("Please complete your registration")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return "", apperr.Unauthorized("Invalid credentials")
	}
	return s.issue(u)
}

// ValidateToken resolves a bearer token to its current user.
func (s *Service) ValidateToken(ctx context.Context, token string) (User, error) {
	c, err := s.Tokens.Parse(token)
	if err != nil {
		return User{}, err
	}
	u, err := s.Repo.GetByID(ctx, c.Subject)
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, apperr.Unauthorized("Invalid token")
	}
	return u, err
}

func (s *Service) issue(u User) (string, error) {
	tok, err := s.Tokens.Issue(u)
	if err != nil {
		return "", apperr.Internal("sign token", err)
	}
	return tok, nil
}

func (s *Service) cost() int {
	if s.HashCost > 0 {
		return s.HashCost
	}
	return bcrypt.DefaultCost
}
