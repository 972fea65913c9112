package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/njathi/homework-buddy-ai/internal/models"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `email, password_hash, api_token, credits, subscribed, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	var subscribed int
	if err := row.Scan(&a.Email, &a.PasswordHash, &a.APIToken, &a.Credits, &subscribed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Subscribed = subscribed != 0
	return &a, nil
}

func (r *AccountRepository) Get(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) GetByToken(ctx context.Context, token string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE api_token = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, token))
}

func (r *AccountRepository) Create(ctx context.Context, acc *models.Account) error {
	const query = `
INSERT INTO accounts (email, password_hash, api_token, credits, subscribed)
VALUES (?, ?, ?, ?, ?)`
	subscribed := 0
	if acc.Subscribed {
		subscribed = 1
	}
	if _, err := r.db.ExecContext(ctx, query, acc.Email, acc.PasswordHash, acc.APIToken, acc.Credits, subscribed); err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) SetToken(ctx context.Context, email, token string) error {
	const query = `UPDATE accounts SET api_token = ?, updated_at = NOW() WHERE email = ?`
	res, err := r.db.ExecContext(ctx, query, token, email)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("token rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Update reads the account under a row lock, applies the mutation and writes
// the result back in one transaction. An error from apply aborts the
// transaction and is returned unchanged so callers keep their sentinels.
func (r *AccountRepository) Update(ctx context.Context, email string, apply func(*models.Account) error) (*models.Account, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ? FOR UPDATE`
	var a models.Account
	var subscribed int
	row := tx.QueryRowContext(ctx, query, email)
	if err := row.Scan(&a.Email, &a.PasswordHash, &a.APIToken, &a.Credits, &subscribed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	a.Subscribed = subscribed != 0

	if err := apply(&a); err != nil {
		return nil, err
	}

	sub := 0
	if a.Subscribed {
		sub = 1
	}
	const update = `UPDATE accounts SET credits = ?, subscribed = ?, updated_at = NOW() WHERE email = ?`
	if _, err := tx.ExecContext(ctx, update, a.Credits, sub, email); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account update: %w", err)
	}
	return &a, nil
}

// AppendHistory inserts the entry and trims the account's history to the
// newest `limit` rows in the same transaction.
func (r *AccountRepository) AppendHistory(ctx context.Context, email string, entry models.QAEntry, limit int) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO qa_history (account_id, question, answer, created_at) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, email, entry.Question, entry.Answer, entry.Timestamp); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	// MySQL cannot reference the mutated table in a subquery directly, hence
	// the derived table.
	const trim = `
DELETE FROM qa_history
WHERE account_id = ? AND id NOT IN (
    SELECT id FROM (
        SELECT id FROM qa_history WHERE account_id = ? ORDER BY id DESC LIMIT ?
    ) keep
)`
	if _, err := tx.ExecContext(ctx, trim, email, email, limit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history append: %w", err)
	}
	return nil
}

func (r *AccountRepository) History(ctx context.Context, email string, limit int) ([]models.QAEntry, error) {
	const query = `
SELECT question, answer, created_at FROM qa_history
WHERE account_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, email, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.QAEntry
	for rows.Next() {
		var e models.QAEntry
		if err := rows.Scan(&e.Question, &e.Answer, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
