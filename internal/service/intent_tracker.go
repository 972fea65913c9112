package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/repository"
)

// Credits are derived from the paid amount by a fixed exchange policy:
// one KES buys one credit.
const creditsPerCurrencyUnit = 1

// TrackerService owns PaymentIntent records and their status machine.
// Resolve is the single idempotent step serializing duplicate callbacks
// before any balance mutation is attempted.
type TrackerService struct {
	intents repository.IntentStore
	log     *slog.Logger
}

func NewTrackerService(intents repository.IntentStore, log *slog.Logger) *TrackerService {
	return &TrackerService{intents: intents, log: log}
}

func (s *TrackerService) CreateIntent(ctx context.Context, accountID, phone string, amount int) (*models.PaymentIntent, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}
	intent := &models.PaymentIntent{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Phone:            phone,
		Amount:           amount,
		RequestedCredits: amount * creditsPerCurrencyUnit,
		Status:           models.IntentCreated,
		CreatedAt:        time.Now(),
	}
	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}
	return intent, nil
}

func (s *TrackerService) MarkSent(ctx context.Context, intentID string) error {
	return s.transition(ctx, intentID, []models.IntentStatus{models.IntentCreated}, models.IntentSent)
}

func (s *TrackerService) MarkAcknowledged(ctx context.Context, intentID string) error {
	return s.transition(ctx, intentID, []models.IntentStatus{models.IntentSent}, models.IntentAcknowledged)
}

func (s *TrackerService) transition(ctx context.Context, intentID string, from []models.IntentStatus, to models.IntentStatus) error {
	ok, err := s.intents.Transition(ctx, intentID, from, to)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownIntent
		}
		return fmt.Errorf("transition to %s: %w", to, err)
	}
	if !ok {
		return fmt.Errorf("%w: cannot move intent %s to %s", ErrInvalidTransition, intentID, to)
	}
	return nil
}

// AttachGatewayRef records the gateway's own correlation identifier so later
// callbacks can be matched without scanning payload metadata.
func (s *TrackerService) AttachGatewayRef(ctx context.Context, intentID, ref string) error {
	if err := s.intents.SetGatewayRef(ctx, intentID, ref); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownIntent
		}
		return fmt.Errorf("attach gateway ref: %w", err)
	}
	return nil
}

// Resolve moves the intent to its terminal state. It is idempotent: when the
// intent is already terminal the prior outcome is returned with newly=false
// and nothing changes. Exactly one caller ever observes newly=true.
func (s *TrackerService) Resolve(ctx context.Context, intentID string, outcome models.IntentOutcome, resultCode int, resultDesc string) (models.IntentOutcome, bool, error) {
	target := models.IntentFailed
	if outcome == models.OutcomeSuccess {
		target = models.IntentResolved
	}

	won, err := s.intents.Resolve(ctx, intentID, target, resultCode, resultDesc, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, ErrUnknownIntent
		}
		return "", false, fmt.Errorf("resolve intent: %w", err)
	}
	if won {
		return outcome, true, nil
	}

	intent, err := s.intents.Get(ctx, intentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, ErrUnknownIntent
		}
		return "", false, fmt.Errorf("reload intent: %w", err)
	}
	return intent.Outcome(), false, nil
}

// ExpireStale sweeps intents stuck in sent/acknowledged past the ttl into
// expired. Safe to re-run; already-expired intents are untouched.
func (s *TrackerService) ExpireStale(ctx context.Context, now time.Time, ttl time.Duration) (int64, error) {
	expired, err := s.intents.ExpireStale(ctx, now.Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("expire stale: %w", err)
	}
	if expired > 0 {
		s.log.Info("expired stale payment intents", "count", expired)
	}
	return expired, nil
}

func (s *TrackerService) Get(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	intent, err := s.intents.Get(ctx, intentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownIntent
		}
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return intent, nil
}

func (s *TrackerService) ListRecent(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	intents, err := s.intents.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	return intents, nil
}
