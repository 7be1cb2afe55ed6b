package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/field-notes/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	EnsureSchema(ctx context.Context) error
	GetByName(ctx context.Context, name string) (types.User, error)
	Upsert(ctx context.Context, user types.User) (types.User, error)
	UpdatePassword(ctx context.Context, name, passwordHash string) error
}

// UserService encapsulates the out-of-band account use-cases: seeding and
// password rotation.
type UserService struct {
	repo UserRepository
	hash func(string) (string, error)
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo, hash: HashPassword}
}

// SeedUser is one account to create or refresh.
type SeedUser struct {
	Name     string
	Role     string
	Password string
}

// ParseSeedUser parses "name:role:password". The password may contain colons.
func ParseSeedUser(spec string) (SeedUser, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return SeedUser{}, fmt.Errorf("seed user %q: want name:role:password", spec)
	}
	u := SeedUser{
		Name:     strings.TrimSpace(parts[0]),
		Role:     strings.TrimSpace(parts[1]),
		Password: parts[2],
	}
	if u.Name == "" || u.Password == "" {
		return SeedUser{}, fmt.Errorf("seed user %q: name and password are required", spec)
	}
	if !types.ValidRole(u.Role) {
		return SeedUser{}, fmt.Errorf("seed user %q: unknown role %q", spec, u.Role)
	}
	return u, nil
}

// Seed creates the users table if needed and upserts every user.
func (s *UserService) Seed(ctx context.Context, users []SeedUser) ([]types.User, error) {
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure users table: %w", err)
	}

	out := make([]types.User, 0, len(users))
	for _, u := range users {
		hashed, err := s.hash(u.Password)
		if err != nil {
			return out, fmt.Errorf("hash password for %s: %w", u.Name, err)
		}
		saved, err := s.repo.Upsert(ctx, types.User{
			Name:         u.Name,
			Role:         u.Role,
			PasswordHash: hashed,
		})
		if err != nil {
			return out, fmt.Errorf("upsert %s: %w", u.Name, err)
		}
		out = append(out, saved)
	}
	return out, nil
}

// RotatePassword replaces the password of an existing user.
func (s *UserService) RotatePassword(ctx context.Context, name, password string) error {
	if strings.TrimSpace(password) == "" {
		return &ValidationError{Fields: map[string]string{"password": "Password is required."}}
	}
	hashed, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, name, hashed)
}
