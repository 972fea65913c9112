package repository

import (
	"context"
	"errors"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("record already exists")
)

// AccountStore is durable keyed storage of one Account per user identity.
// Update executes the supplied function against the current record under
// per-account mutual exclusion; operations on different accounts never block
// one another.
type AccountStore interface {
	Get(ctx context.Context, email string) (*models.Account, error)
	GetByToken(ctx context.Context, token string) (*models.Account, error)
	Create(ctx context.Context, acc *models.Account) error
	SetToken(ctx context.Context, email, token string) error
	Update(ctx context.Context, email string, apply func(*models.Account) error) (*models.Account, error)
	AppendHistory(ctx context.Context, email string, entry models.QAEntry, limit int) error
	History(ctx context.Context, email string, limit int) ([]models.QAEntry, error)
}

// IntentStore persists payment intents. Transition and Resolve are the
// atomic guarded updates the tracker's state machine is built on: each
// applies only when the current status permits it and reports whether it won.
type IntentStore interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Get(ctx context.Context, id string) (*models.PaymentIntent, error)
	FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentIntent, error)
	SetGatewayRef(ctx context.Context, id, ref string) error
	Transition(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus) (bool, error)
	Resolve(ctx context.Context, id string, to models.IntentStatus, resultCode int, resultDesc string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]models.PaymentIntent, error)
}
