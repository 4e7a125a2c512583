// Package streak keeps the consecutive-day login counter.
//
// Calendar dates are UTC. A user in UTC+3 logging in at 01:00 local time
// is still on the previous day for streak purposes.
package streak

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/models"
)

// ErrUserNotFound is returned when the user row does not exist.
var ErrUserNotFound = errors.New("user not found")

// Result is the outcome of one login.
type Result struct {
	Streak        int    `json:"currentStreak"`
	Increased     bool   `json:"streakIncreased"`
	LastLoginDate string `json:"lastLoginDate"`
}

// Next computes the transition for a login on today. lastLogin is "" when
// the user never logged in. Dates are YYYY-MM-DD.
func Next(lastLogin string, current int, today string) Result {
	if lastLogin == today {
		return Result{Streak: current, Increased: false, LastLoginDate: today}
	}
	if lastLogin != "" && lastLogin == previousDay(today) {
		return Result{Streak: current + 1, Increased: true, LastLoginDate: today}
	}
	// First login, a gap of two or more days, or a last date that is
	// somehow after today: start over.
	return Result{Streak: 1, Increased: true, LastLoginDate: today}
}

func previousDay(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, -1).Format(models.DateLayout)
}

// Tracker persists streaks.
type Tracker struct {
	db *sql.DB
}

func NewTracker(d *sql.DB) *Tracker {
	return &Tracker{db: d}
}

// RecordLogin applies a login at now. The row is only written when the
// calendar date changed, so repeated logins on one day are read-only.
func (t *Tracker) RecordLogin(ctx context.Context, userID string, now time.Time) (Result, error) {
	today := models.CalendarDate(now)
	var res Result

	err := db.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		var last sql.NullString
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT last_login_date, current_streak FROM users WHERE id = ?`, userID,
		).Scan(&last, &current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("load streak: %w", err)
		}

		res = Next(last.String, current, today)
		if last.String == today {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET last_login_date = ?, current_streak = ? WHERE id = ?`,
			res.LastLoginDate, res.Streak, userID,
		)
		if err != nil {
			return fmt.Errorf("save streak: %w", err)
		}
		return nil
	})
	return res, err
}
