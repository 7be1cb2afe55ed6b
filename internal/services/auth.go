package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/field-notes/apiserver/internal/store"
	"github.com/field-notes/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for every hash this server creates.
const PasswordCost = 12

// CredentialStore looks users up by login name.
type CredentialStore interface {
	GetByName(ctx context.Context, name string) (types.User, error)
}

// AuthService verifies username/password pairs.
//
// Unknown users are compared against a throwaway hash of the same cost so
// that both failure paths spend the same time. bcrypt comparisons are bounded
// by a semaphore so a burst of logins cannot occupy every CPU.
type AuthService struct {
	users CredentialStore
	sem   chan struct{}

	dummyOnce sync.Once
	dummyHash []byte
	dummyErr  error
}

// NewAuthService constructs an AuthService. concurrency <= 0 means one
// comparison per CPU.
func NewAuthService(users CredentialStore, concurrency int) *AuthService {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &AuthService{
		users: users,
		sem:   make(chan struct{}, concurrency),
	}
}

// Authenticate returns the user when password matches. Every credential
// failure is reported as ErrInvalidCredentials; other errors come from the
// credential store.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByName(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("lookup user: %w", err)
	}
	found := err == nil

	hash := []byte(user.PasswordHash)
	if !found {
		if hash, err = s.dummy(); err != nil {
			return types.User{}, err
		}
	}

	if err := s.compare(ctx, hash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if !found {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) compare(ctx context.Context, hash []byte, password string) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}

func (s *AuthService) dummy() ([]byte, error) {
	s.dummyOnce.Do(func() {
		secret := make([]byte, 24)
		if _, err := rand.Read(secret); err != nil {
			s.dummyErr = err
			return
		}
		s.dummyHash, s.dummyErr = bcrypt.GenerateFromPassword(secret, PasswordCost)
	})
	return s.dummyHash, s.dummyErr
}

// HashPassword hashes password with PasswordCost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
