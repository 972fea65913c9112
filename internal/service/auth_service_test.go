package service

import (
	"context"
	"errors"
	"testing"

	"github.com/njathi/homework-buddy-ai/internal/policy"
	"github.com/njathi/homework-buddy-ai/internal/repository"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(repository.NewMemoryAccountStore(), testLogger())
}

func TestSignupStartsFreeTrial(t *testing.T) {
	auth := newAuth(t)
	acc, err := auth.Signup(context.Background(), "Kid@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if acc.Email != "kid@example.com" {
		t.Errorf("expected normalized email, got %q", acc.Email)
	}
	if acc.Credits != policy.FreeTrialCredits {
		t.Errorf("expected %d trial credits, got %d", policy.FreeTrialCredits, acc.Credits)
	}
	if acc.APIToken == "" {
		t.Error("expected an API token")
	}
	if acc.PasswordHash == "hunter22" {
		t.Error("password must be hashed")
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()
	if _, err := auth.Signup(ctx, "kid@example.com", "hunter22"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	// Case only differs; the normalized identity collides.
	if _, err := auth.Signup(ctx, "KID@example.com", "other"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignupRequiresFields(t *testing.T) {
	auth := newAuth(t)
	if _, err := auth.Signup(context.Background(), "", "hunter22"); err == nil {
		t.Error("expected error for missing email")
	}
	if _, err := auth.Signup(context.Background(), "kid@example.com", ""); err == nil {
		t.Error("expected error for missing password")
	}
}

func TestLoginRotatesToken(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()
	created, err := auth.Signup(ctx, "kid@example.com", "hunter22")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	logged, err := auth.Login(ctx, "kid@example.com", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.APIToken == "" || logged.APIToken == created.APIToken {
		t.Error("login must rotate the token")
	}

	// The old token is dead, the new one works.
	if _, err := auth.Authenticate(ctx, created.APIToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected old token rejected, got %v", err)
	}
	acc, err := auth.Authenticate(ctx, logged.APIToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if acc.Email != "kid@example.com" {
		t.Errorf("token resolved to %q", acc.Email)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	auth := newAuth(t)
	ctx := context.Background()
	if _, err := auth.Signup(ctx, "kid@example.com", "hunter22"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := auth.Login(ctx, "kid@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login(ctx, "ghost@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	auth := newAuth(t)
	if _, err := auth.Authenticate(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
