package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/policy"
	"github.com/njathi/homework-buddy-ai/internal/repository"
)

// HistoryLimit bounds the per-account Q&A history.
const HistoryLimit = 20

// LedgerService owns every Account.credits mutation. All operations on the
// same account are serialized by the store's per-account read-modify-write;
// no other component writes credits directly.
type LedgerService struct {
	accounts repository.AccountStore
	log      *slog.Logger
}

func NewLedgerService(accounts repository.AccountStore, log *slog.Logger) *LedgerService {
	return &LedgerService{accounts: accounts, log: log}
}

// IsUnlimited reports whether a balance is the subscription sentinel.
func (s *LedgerService) IsUnlimited(credits int) bool {
	return credits >= policy.UnlimitedCredits
}

func (s *LedgerService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acc, nil
}

// Deduct removes n credits, failing with ErrInsufficientCredits when the
// balance does not cover it. Subscribed accounts keep the unlimited sentinel
// untouched. Returns the new balance.
func (s *LedgerService) Deduct(ctx context.Context, accountID string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive, got %d", n)
	}
	acc, err := s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		if a.Subscribed {
			return nil
		}
		if a.Credits < n {
			return ErrInsufficientCredits
		}
		a.Credits -= n
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return acc.Credits, nil
}

// Grant adds n credits, capped at the unlimited sentinel. Returns the new
// balance.
func (s *LedgerService) Grant(ctx context.Context, accountID string, n int, reason string) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", n)
	}
	acc, err := s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		a.Credits += n
		if a.Credits > policy.UnlimitedCredits {
			a.Credits = policy.UnlimitedCredits
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	s.log.Info("credits granted", "account", accountID, "amount", n, "reason", reason, "balance", acc.Credits)
	return acc.Credits, nil
}

// SetUnlimited toggles the subscription. Turning it off forfeits the
// remaining balance; see the policy package for the transition rules.
func (s *LedgerService) SetUnlimited(ctx context.Context, accountID string, on bool) (*models.Account, error) {
	acc, err := s.accounts.Update(ctx, accountID, func(a *models.Account) error {
		policy.ApplySubscription(a, on)
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	s.log.Info("subscription updated", "account", accountID, "subscribed", on)
	return acc, nil
}

// RecordQA prepends a history entry and trims the history to the newest
// HistoryLimit entries.
func (s *LedgerService) RecordQA(ctx context.Context, accountID, question, answer string) error {
	entry := models.QAEntry{Question: question, Answer: answer, Timestamp: time.Now()}
	if err := s.accounts.AppendHistory(ctx, accountID, entry, HistoryLimit); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *LedgerService) History(ctx context.Context, accountID string) ([]models.QAEntry, error) {
	entries, err := s.accounts.History(ctx, accountID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// ApplyPromo maps a known code to its fixed effect through the same Grant and
// SetUnlimited paths every other mutation uses. Unknown codes change nothing.
func (s *LedgerService) ApplyPromo(ctx context.Context, accountID, code string) (*models.Account, error) {
	effect, ok := policy.LookupPromo(code)
	if !ok {
		return nil, ErrInvalidPromo
	}
	switch effect.Kind {
	case policy.EffectGrant:
		if _, err := s.Grant(ctx, accountID, effect.Credits, "promo"); err != nil {
			return nil, err
		}
	case policy.EffectUnlimited:
		if _, err := s.SetUnlimited(ctx, accountID, true); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unhandled promo effect: %s", effect.Kind)
	}
	return s.Account(ctx, accountID)
}
