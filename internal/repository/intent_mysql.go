package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/njathi/homework-buddy-ai/internal/models"
)

type IntentRepository struct {
	db *sql.DB
}

func NewIntentRepository(db *sql.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

const intentColumns = `intent_id, account_id, phone, amount, requested_credits, status, COALESCE(gateway_ref, ''), COALESCE(result_code, 0), COALESCE(result_desc, ''), created_at, resolved_at`

func (r *IntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	const query = `
INSERT INTO payment_intents (intent_id, account_id, phone, amount, requested_credits, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, intent.ID, intent.AccountID, intent.Phone, intent.Amount, intent.RequestedCredits, intent.Status, intent.CreatedAt); err != nil {
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (r *IntentRepository) scanIntent(row *sql.Row) (*models.PaymentIntent, error) {
	var p models.PaymentIntent
	var resolvedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.AccountID, &p.Phone, &p.Amount, &p.RequestedCredits, &p.Status, &p.GatewayRef, &p.ResultCode, &p.ResultDesc, &p.CreatedAt, &resolvedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan intent: %w", err)
	}
	if resolvedAt.Valid {
		p.ResolvedAt = &resolvedAt.Time
	}
	return &p, nil
}

func (r *IntentRepository) Get(ctx context.Context, id string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE intent_id = ?`
	return r.scanIntent(r.db.QueryRowContext(ctx, query, id))
}

func (r *IntentRepository) FindByGatewayRef(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE gateway_ref = ? LIMIT 1`
	return r.scanIntent(r.db.QueryRowContext(ctx, query, ref))
}

func (r *IntentRepository) SetGatewayRef(ctx context.Context, id, ref string) error {
	const query = `UPDATE payment_intents SET gateway_ref = ? WHERE intent_id = ?`
	if _, err := r.db.ExecContext(ctx, query, ref, id); err != nil {
		return fmt.Errorf("set gateway ref: %w", err)
	}
	return nil
}

// Transition moves the intent to `to` only if its current status is one of
// `from`. The guarded UPDATE makes concurrent transitions race safely: only
// one caller observes true.
func (r *IntentRepository) Transition(ctx context.Context, id string, from []models.IntentStatus, to models.IntentStatus) (bool, error) {
	query := `UPDATE payment_intents SET status = ? WHERE intent_id = ? AND status IN (` + placeholders(len(from)) + `)`
	args := make([]any, 0, len(from)+2)
	args = append(args, to, id)
	for _, s := range from {
		args = append(args, s)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transition intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected > 0, nil
}

// Resolve writes a terminal status plus result metadata, but only for
// intents that are not yet terminal. Duplicate resolutions lose the race and
// observe false.
func (r *IntentRepository) Resolve(ctx context.Context, id string, to models.IntentStatus, resultCode int, resultDesc string, at time.Time) (bool, error) {
	const query = `
UPDATE payment_intents SET status = ?, result_code = ?, result_desc = ?, resolved_at = ?
WHERE intent_id = ? AND status IN (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, to, resultCode, resultDesc, at, id,
		models.IntentCreated, models.IntentSent, models.IntentAcknowledged)
	if err != nil {
		return false, fmt.Errorf("resolve intent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *IntentRepository) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
UPDATE payment_intents SET status = ?, resolved_at = NOW()
WHERE status IN (?, ?) AND created_at < ?`
	res, err := r.db.ExecContext(ctx, query, models.IntentExpired, models.IntentSent, models.IntentAcknowledged, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire stale intents: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire rows affected: %w", err)
	}
	return affected, nil
}

func (r *IntentRepository) ListRecent(ctx context.Context, limit int) ([]models.PaymentIntent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []models.PaymentIntent
	for rows.Next() {
		var p models.PaymentIntent
		var resolvedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Phone, &p.Amount, &p.RequestedCredits, &p.Status, &p.GatewayRef, &p.ResultCode, &p.ResultDesc, &p.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan intent list: %w", err)
		}
		if resolvedAt.Valid {
			p.ResolvedAt = &resolvedAt.Time
		}
		intents = append(intents, p)
	}
	return intents, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
