package handlers

// SeedDemo handles POST /api/admin/seed
//
// Demo-only. It inserts a fixed set of users and activities, with their
// ledger credits, so a demo starts from a populated leaderboard and feed.
//
// The endpoint is idempotent. IDs are hard-coded, users and activities use
// INSERT OR IGNORE, and ledger credits are keyed by (cause, activity id),
// so a second call finds everything in place and changes nothing.
//
// DEMO SCENARIO
// ─────────────────────────────────────────────────────────────────────────
// Veteran : "Amina Njeri"  (amina@demo.test / demo1234)
//             → four verified public activities across categories
//             → 5-day login streak
// Newcomer: "Otieno Ouma"  (otieno@demo.test / demo1234)
//             → one flagged private submission, a candidate for an appeal
//
// Today's challenges are seeded as a side effect so GET /api/challenges is
// non-empty immediately.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/auth"
	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/Elizabethomito/greenquest/internal/scoring"
)

// Pre-determined IDs keep the seed idempotent across restarts.
const (
	SeedAminaID  = "seed-amina-0000-0000-0000-000000000001"
	SeedOtienoID = "seed-otieno-000-0000-0000-000000000002"

	seedPassword = "demo1234"
)

// BootstrapAdmin creates the admin account if no user has email yet. It
// reports whether a row was inserted. An existing account is left as is,
// so changing ADMIN_PASSWORD later does not reset a password.
func BootstrapAdmin(ctx context.Context, d *sql.DB, email, password string) (bool, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	res, err := d.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, email, password_hash, name, role) VALUES (?, ?, ?, 'Administrator', ?)`,
		uuid.NewString(), email, hash, models.RoleAdmin,
	)
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

type seedActivity struct {
	id, userID, typ, category, label string
	points, aiScore                  int
	co2                              float64
	visibility                       models.Visibility
	daysAgo                          int
}

// SeedDemo handles POST /api/admin/seed  (admin only)
func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()

	users := []struct {
		id, email, name string
		streak          int
	}{
		{SeedAminaID, "amina@demo.test", "Amina Njeri", 5},
		{SeedOtienoID, "otieno@demo.test", "Otieno Ouma", 0},
	}

	activities := []seedActivity{
		{"seed-act-amina-bike", SeedAminaID, "Cycled to work", "transport", "a bicycle", 120, 92, 14.4, models.VisibilityPublic, 4},
		{"seed-act-amina-tree", SeedAminaID, "Planted a seedling", "tree", "planting a tree", 96, 80, 11.52, models.VisibilityPublic, 3},
		{"seed-act-amina-bottle", SeedAminaID, "Refilled a bottle", "plastic", "a reusable water bottle", 64, 67, 7.68, models.VisibilityPublic, 2},
		{"seed-act-amina-solar", SeedAminaID, "Dried clothes in the sun", "energy", "solar panels", 58, 61, 6.96, models.VisibilityCommunity, 1},
		{"seed-act-otieno-bus", SeedOtienoID, "Took the bus", "transport", "a bus", 2, 12, 0.24, models.VisibilityPrivate, 0},
	}

	err = db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, u := range users {
			lastLogin := sql.NullString{}
			if u.streak > 0 {
				lastLogin = sql.NullString{String: models.CalendarDate(now.AddDate(0, 0, -1)), Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO users (id, email, password_hash, name, role, current_streak, last_login_date, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				u.id, u.email, hash, u.name, models.RoleUser, u.streak, lastLogin, now.AddDate(0, -1, 0),
			); err != nil {
				return fmt.Errorf("seed user %s: %w", u.email, err)
			}
		}

		for _, a := range activities {
			at := now.AddDate(0, 0, -a.daysAgo)
			status := scoring.ClassifyStatus(a.aiScore)
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO activities
				   (id, user_id, type, category, points, co2_saved, status, ai_score, ai_label, visibility, event_time, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.id, a.userID, a.typ, a.category, a.points, a.co2, status, a.aiScore, a.label, a.visibility, at, at,
			); err != nil {
				return fmt.Errorf("seed activity %s: %w", a.id, err)
			}
			_, err := ledger.Append(ctx, tx, a.userID, a.points, models.CauseActivityAward, a.id)
			if err != nil && !errors.Is(err, ledger.ErrDuplicateEntry) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if s.Challenges != nil {
		if err := s.Challenges.EnsureSeeded(ctx, s.Challenges.CurrentDate()); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	s.logger().Info("demo data seeded", slog.Int("users", len(users)), slog.Int("activities", len(activities)))
	respond(w, http.StatusOK, map[string]any{
		"seeded": true,
		"accounts": []map[string]string{
			{"email": "amina@demo.test", "password": seedPassword, "name": "Amina Njeri (veteran)"},
			{"email": "otieno@demo.test", "password": seedPassword, "name": "Otieno Ouma (newcomer)"},
		},
		"appealable_activity": "seed-act-otieno-bus",
		"seeded_at":           now.Format(time.RFC3339),
	})
}
