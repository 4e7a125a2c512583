package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/Elizabethomito/greenquest/internal/scoring"
)

// userColumns reads a users row plus its derived totals. Points come from
// the ledger and CO₂ from the user's activities; neither is stored on the
// row itself.
const userColumns = `
	u.id, u.email, u.password_hash, u.name, u.role, u.current_streak,
	COALESCE(u.last_login_date, ''), u.created_at,
	COALESCE((SELECT SUM(l.delta) FROM point_ledger l WHERE l.user_id = u.id), 0),
	COALESCE((SELECT SUM(a.co2_saved) FROM activities a WHERE a.user_id = u.id), 0)`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CurrentStreak,
		&u.LastLoginDate, &u.CreatedAt, &u.Points, &u.CO2Saved)
	u.CO2Saved = scoring.Round2(u.CO2Saved)
	return u, err
}

func loadUser(ctx context.Context, q db.Querier, where string, arg any) (models.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, errUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// activityColumns expects activities aliased as a and users as u.
const activityColumns = `
	a.id, a.user_id, u.name, a.type, a.category, a.description, a.points, a.co2_saved,
	a.status, a.ai_score, a.ai_label, a.image_path, a.location, a.latitude, a.longitude,
	a.geo_accuracy, a.visibility, a.event_time, a.created_at`

const activityFrom = ` FROM activities a JOIN users u ON u.id = a.user_id `

func scanActivity(row interface{ Scan(...any) error }) (models.Activity, error) {
	var a models.Activity
	err := row.Scan(&a.ID, &a.UserID, &a.UserName, &a.Type, &a.Category, &a.Description,
		&a.Points, &a.CO2Saved, &a.Status, &a.AIScore, &a.AILabel, &a.ImagePath, &a.Location,
		&a.Latitude, &a.Longitude, &a.GeoAccuracy, &a.Visibility, &a.EventTime, &a.CreatedAt)
	return a, err
}

// listActivities runs a query over activityColumns. where may be empty;
// limit <= 0 means no limit.
func listActivities(ctx context.Context, q db.Querier, where string, limit int, args ...any) ([]models.Activity, error) {
	query := `SELECT ` + activityColumns + activityFrom
	if where != "" {
		query += `WHERE ` + where
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY a.event_time DESC, a.created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	list := []models.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func loadActivity(ctx context.Context, q db.Querier, id string) (models.Activity, error) {
	return scanActivity(q.QueryRowContext(ctx, `SELECT `+activityColumns+activityFrom+`WHERE a.id = ?`, id))
}

// forestFor renders points as trees: one tree per 10 points.
func forestFor(points int) models.ForestProgress {
	if points < 0 {
		points = 0
	}
	rem := points % 10
	f := models.ForestProgress{
		Trees:          points / 10,
		ProgressToNext: float64(rem) / 10,
		PointsToNext:   10 - rem,
	}
	return f
}

// buildProfile assembles GET /api/me. It is also embedded in the submit
// response so the client can refresh its dashboard without a second call.
func (s *Server) buildProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := loadUser(ctx, s.DB, "u.id = ?", userID)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE user_id = ?`, userID,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("count activities: %w", err)
	}

	recent, err := listActivities(ctx, s.DB, "a.user_id = ?", 10, userID)
	if err != nil {
		return nil, err
	}
	history, err := ledger.History(ctx, s.DB, userID, 10)
	if err != nil {
		return nil, err
	}

	return &models.Profile{
		User: user,
		Stats: models.ProfileStats{
			TotalPoints:     user.Points,
			TotalActivities: total,
			CO2Saved:        user.CO2Saved,
			StreakDays:      user.CurrentStreak,
		},
		Forest:           forestFor(user.Points),
		RecentActivities: recent,
		RecentLedger:     history,
	}, nil
}
