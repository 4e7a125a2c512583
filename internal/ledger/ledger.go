// Package ledger records every change to a user's point balance as an
// append-only signed entry. The balance shown anywhere in the API is the
// sum of a user's entries; nothing else stores points.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrInsufficientPoints is returned by Debit when the balance is too low.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrDuplicateEntry is returned when a cause/ref pair was already recorded.
	ErrDuplicateEntry = errors.New("ledger entry already recorded")
)

// Append writes one entry. A zero delta is still recorded so the cause
// shows up in the user's history (e.g. a fully penalised submission).
func Append(ctx context.Context, q db.Querier, userID string, delta int, cause models.LedgerCause, refID string) (models.LedgerEntry, error) {
	entry := models.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Delta:     delta,
		Cause:     cause,
		RefID:     refID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO point_ledger (id, user_id, delta, cause, ref_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Delta, entry.Cause, entry.RefID, entry.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.LedgerEntry{}, fmt.Errorf("%s %s: %w", cause, refID, ErrDuplicateEntry)
		}
		return models.LedgerEntry{}, fmt.Errorf("append ledger entry: %w", err)
	}
	return entry, nil
}

// Balance folds the user's entries into a single number.
func Balance(ctx context.Context, q db.Querier, userID string) (int, error) {
	var balance int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM point_ledger WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return balance, nil
}

// Debit appends a negative entry of amount, refusing to take the balance
// below zero. Run it inside the same transaction as the record it pays for.
func Debit(ctx context.Context, q db.Querier, userID string, amount int, cause models.LedgerCause, refID string) (models.LedgerEntry, error) {
	if amount <= 0 {
		return models.LedgerEntry{}, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	balance, err := Balance(ctx, q, userID)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if balance < amount {
		return models.LedgerEntry{}, ErrInsufficientPoints
	}
	return Append(ctx, q, userID, -amount, cause, refID)
}

// Adjust appends a correction. Negative deltas are clamped so the balance
// ends at zero rather than below it; the recorded entry holds the applied
// amount.
func Adjust(ctx context.Context, q db.Querier, userID string, delta int, cause models.LedgerCause, refID string) (models.LedgerEntry, error) {
	if delta < 0 {
		balance, err := Balance(ctx, q, userID)
		if err != nil {
			return models.LedgerEntry{}, err
		}
		if balance+delta < 0 {
			delta = -balance
		}
	}
	return Append(ctx, q, userID, delta, cause, refID)
}

// History returns the newest entries first. limit <= 0 means no limit.
func History(ctx context.Context, q db.Querier, userID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 is unbounded
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, delta, cause, ref_id, created_at
		 FROM point_ledger WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Cause, &e.RefID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
