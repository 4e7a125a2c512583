// Package challenges runs the daily challenge engine: seeding a date's
// challenges, auto-completing them from qualifying submissions, and the
// manual completion path.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — once per user per day, enforced by the schema
// ────────────────────────────────────────────────────────────────────
// challenge_completions carries UNIQUE(challenge_id, user_id, completed_on).
// Auto-completion uses INSERT OR IGNORE and only credits the bonus when a
// row was actually inserted, so two submissions racing for the same
// challenge store one completion and one ledger entry. The manual path
// uses a plain INSERT and reports a lost race as ErrAlreadyCompleted.
package challenges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/metrics"
	"github.com/Elizabethomito/greenquest/internal/models"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrAlreadyCompleted  = errors.New("challenge already completed today")
	ErrTargetNotMet      = errors.New("evidence does not meet the challenge target")
	ErrActivityNotOwned  = errors.New("activity not found")
)

const seededCacheSize = 64

// Engine owns challenge state for every user.
type Engine struct {
	db      *sql.DB
	seeder  Seeder
	seeded  *lru.Cache
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option     { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine returns an engine seeding with seeder (DefaultSeeder when nil).
func NewEngine(d *sql.DB, seeder Seeder, opts ...Option) *Engine {
	if seeder == nil {
		seeder = DefaultSeeder()
	}
	cache, _ := lru.New(seededCacheSize)
	e := &Engine{
		db:     d,
		seeder: seeder,
		seeded: cache,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentDate returns the UTC calendar date challenges are keyed on.
func (e *Engine) CurrentDate() string {
	return models.CalendarDate(e.now())
}

// EnsureSeeded inserts the seeder's challenges for date if that has not
// happened yet. Concurrent callers for one date share a single attempt.
func (e *Engine) EnsureSeeded(ctx context.Context, date string) error {
	if e.seeded.Contains(date) {
		return nil
	}
	_, err, _ := e.group.Do(date, func() (any, error) {
		// Shared by every caller waiting on date; one caller going away
		// must not fail the rest.
		ctx := context.WithoutCancel(ctx)
		if e.seeded.Contains(date) {
			return nil, nil
		}
		list, err := e.seeder.ChallengesFor(date)
		if err != nil {
			return nil, err
		}
		inserted := 0
		err = db.WithTx(ctx, e.db, func(tx *sql.Tx) error {
			for slot, c := range list {
				res, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO daily_challenges
					   (id, title, description, category, target_value, target_unit, bonus_points, challenge_date, slot, is_active)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					c.ID, c.Title, c.Description, strings.ToLower(c.Category),
					c.TargetValue, c.TargetUnit, c.BonusPoints, date, slot, c.IsActive,
				)
				if err != nil {
					return fmt.Errorf("seed challenge %s: %w", c.ID, err)
				}
				n, _ := res.RowsAffected()
				inserted += int(n)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if inserted > 0 {
			e.logger.Info("seeded daily challenges", slog.String("date", date), slog.Int("count", inserted))
		}
		e.seeded.Add(date, struct{}{})
		return nil, nil
	})
	return err
}

// Today lists the active challenges of date with userID's completion
// state.
func (e *Engine) Today(ctx context.Context, userID, date string) ([]models.DailyChallenge, error) {
	if err := e.EnsureSeeded(ctx, date); err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.description, c.category, c.target_value, c.target_unit,
		        c.bonus_points, c.challenge_date, c.is_active, c.created_at, cc.bonus_points_earned
		 FROM daily_challenges c
		 LEFT JOIN challenge_completions cc
		   ON cc.challenge_id = c.id AND cc.user_id = ? AND cc.completed_on = ?
		 WHERE c.challenge_date = ? AND c.is_active = 1
		 ORDER BY c.slot`,
		userID, date, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	list := []models.DailyChallenge{}
	for rows.Next() {
		var c models.DailyChallenge
		var earned sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.TargetValue, &c.TargetUnit,
			&c.BonusPoints, &c.ChallengeDate, &c.IsActive, &c.CreatedAt, &earned); err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		if earned.Valid {
			c.UserCompleted = true
			v := int(earned.Int64)
			c.UserBonusEarned = &v
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// TryAutoComplete completes the first of date's active challenges in
// category that userID has not completed yet, crediting its bonus. It
// returns nil when nothing was completed. Call it only for submissions
// that passed scoring.EligibleForChallenge.
func (e *Engine) TryAutoComplete(ctx context.Context, userID, category, activityID, date string) (*models.ChallengeCompletion, error) {
	if err := e.EnsureSeeded(ctx, date); err != nil {
		return nil, err
	}

	var done *models.ChallengeCompletion
	err := db.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, title, target_value, target_unit, bonus_points
			 FROM daily_challenges
			 WHERE challenge_date = ? AND is_active = 1 AND category = ?
			 ORDER BY slot`,
			date, strings.ToLower(category),
		)
		if err != nil {
			return fmt.Errorf("find challenges: %w", err)
		}
		type candidate struct {
			id, title, unit string
			target          float64
			bonus           int
		}
		var candidates []candidate
		for rows.Next() {
			var c candidate
			if err := rows.Scan(&c.id, &c.title, &c.target, &c.unit, &c.bonus); err != nil {
				rows.Close()
				return fmt.Errorf("scan challenge: %w", err)
			}
			candidates = append(candidates, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, c := range candidates {
			comp := e.newCompletion(c.id, userID, activityID, c.target, c.unit, c.bonus, date)
			comp.ChallengeTitle = c.title
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO challenge_completions
				   (id, challenge_id, user_id, activity_id, evidence_value, evidence_unit, bonus_points_earned, completed_on, completed_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				comp.ID, comp.ChallengeID, comp.UserID, comp.ActivityID,
				comp.EvidenceValue, comp.EvidenceUnit, comp.BonusPointsEarned, comp.CompletedOn, comp.CompletedAt,
			)
			if err != nil {
				return fmt.Errorf("insert completion: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if _, err := ledger.Append(ctx, tx, userID, comp.BonusPointsEarned, models.CauseChallengeBonus, comp.ID); err != nil {
				return err
			}
			done = &comp
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if done != nil {
		e.record("auto", done)
	}
	return done, nil
}

// CompleteManually records a user-reported completion of challengeID.
// activityID is optional and must belong to userID when given.
func (e *Engine) CompleteManually(ctx context.Context, userID, challengeID string, evidenceValue float64, evidenceUnit, activityID, date string) (*models.ChallengeCompletion, error) {
	if err := e.EnsureSeeded(ctx, date); err != nil {
		return nil, err
	}

	var done models.ChallengeCompletion
	err := db.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var title, unit string
		var target float64
		var bonus int
		err := tx.QueryRowContext(ctx,
			`SELECT title, target_value, target_unit, bonus_points FROM daily_challenges
			 WHERE id = ? AND challenge_date = ? AND is_active = 1`,
			challengeID, date,
		).Scan(&title, &target, &unit, &bonus)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChallengeNotFound
		}
		if err != nil {
			return fmt.Errorf("load challenge: %w", err)
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM challenge_completions WHERE challenge_id = ? AND user_id = ? AND completed_on = ?`,
			challengeID, userID, date,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check completion: %w", err)
		}
		if exists > 0 {
			return ErrAlreadyCompleted
		}

		if evidenceValue < target {
			return ErrTargetNotMet
		}

		if activityID != "" {
			var owner string
			err := tx.QueryRowContext(ctx, `SELECT user_id FROM activities WHERE id = ?`, activityID).Scan(&owner)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
				return ErrActivityNotOwned
			}
			if err != nil {
				return fmt.Errorf("load activity: %w", err)
			}
		}
		if evidenceUnit == "" {
			evidenceUnit = unit
		}

		done = e.newCompletion(challengeID, userID, activityID, evidenceValue, evidenceUnit, bonus, date)
		done.ChallengeTitle = title
		_, err = tx.ExecContext(ctx,
			`INSERT INTO challenge_completions
			   (id, challenge_id, user_id, activity_id, evidence_value, evidence_unit, bonus_points_earned, completed_on, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			done.ID, done.ChallengeID, done.UserID, done.ActivityID,
			done.EvidenceValue, done.EvidenceUnit, done.BonusPointsEarned, done.CompletedOn, done.CompletedAt,
		)
		if db.IsUniqueViolation(err) {
			return ErrAlreadyCompleted
		}
		if err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
		_, err = ledger.Append(ctx, tx, userID, bonus, models.CauseChallengeBonus, done.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.record("manual", &done)
	return &done, nil
}

func (e *Engine) newCompletion(challengeID, userID, activityID string, value float64, unit string, bonus int, date string) models.ChallengeCompletion {
	c := models.ChallengeCompletion{
		ID:                uuid.NewString(),
		ChallengeID:       challengeID,
		UserID:            userID,
		EvidenceValue:     value,
		EvidenceUnit:      unit,
		BonusPointsEarned: bonus,
		CompletedOn:       date,
		CompletedAt:       e.now().UTC(),
	}
	if activityID != "" {
		c.ActivityID = &activityID
	}
	return c
}

func (e *Engine) record(path string, c *models.ChallengeCompletion) {
	e.metrics.ChallengeCompleted(path)
	e.metrics.AddPoints(string(models.CauseChallengeBonus), c.BonusPointsEarned)
	e.logger.Info("challenge completed",
		slog.String("path", path),
		slog.String("challenge_id", c.ChallengeID),
		slog.String("user_id", c.UserID),
		slog.Int("bonus", c.BonusPointsEarned),
	)
}
