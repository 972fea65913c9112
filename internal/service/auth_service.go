package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/policy"
	"github.com/njathi/homework-buddy-ai/internal/repository"
)

// AuthService establishes a caller's identity: signup, login and the token
// lookup the request middleware performs. The normalized email is the stable
// account identity everything downstream trusts.
type AuthService struct {
	accounts repository.AccountStore
	log      *slog.Logger
}

func NewAuthService(accounts repository.AccountStore, log *slog.Logger) *AuthService {
	return &AuthService{accounts: accounts, log: log}
}

// Signup creates an account with the free trial balance and returns its API
// token.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	acc := &models.Account{
		Email:        email,
		PasswordHash: string(hash),
		APIToken:     token,
		Credits:      policy.FreeTrialCredits,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info("account created", "account", email)
	return acc, nil
}

// Login verifies the password and rotates the API token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	email = normalizeEmail(email)
	acc, err := s.accounts.Get(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetToken(ctx, email, token); err != nil {
		return nil, fmt.Errorf("rotate token: %w", err)
	}
	acc.APIToken = token
	return acc, nil
}

// Authenticate resolves a bearer token to its account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	acc, err := s.accounts.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return acc, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
