// Package rewards spends points. A redemption and its ledger debit are
// written in the same transaction, so the balance check and the debit
// cannot be split by a concurrent redemption.
package rewards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/metrics"
	"github.com/Elizabethomito/greenquest/internal/models"
)

var (
	ErrRewardRequired = errors.New("rewardId is required")
	ErrInvalidPoints  = errors.New("points must be positive")
)

// StatusCompleted is the only redemption status; fulfilment is external.
const StatusCompleted = "completed"

// Service records redemptions.
type Service struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(d *sql.DB, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: d, logger: logger, metrics: m, now: time.Now}
}

// Code builds the voucher code shown to the user: the first four
// characters of the upper-cased reward ID, a dash, and the last six digits
// of the unix-millisecond timestamp.
func Code(rewardID string, at time.Time) string {
	prefix := strings.ToUpper(rewardID)
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	ms := strconv.FormatInt(at.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return prefix + "-" + ms
}

// Redeem debits points from userID for rewardID. It fails with
// ledger.ErrInsufficientPoints when the balance is lower than points.
func (s *Service) Redeem(ctx context.Context, userID, rewardID string, points int) (*models.Redemption, error) {
	rewardID = strings.TrimSpace(rewardID)
	if rewardID == "" {
		return nil, ErrRewardRequired
	}
	if points <= 0 {
		return nil, ErrInvalidPoints
	}

	now := s.now().UTC()
	red := models.Redemption{
		ID:             uuid.NewString(),
		UserID:         userID,
		RewardID:       rewardID,
		Points:         points,
		Status:         StatusCompleted,
		RedemptionCode: Code(rewardID, now),
		CreatedAt:      now,
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := ledger.Debit(ctx, tx, userID, points, models.CauseRedemption, red.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO redemptions (id, user_id, reward_id, points, status, redemption_code, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			red.ID, red.UserID, red.RewardID, red.Points, red.Status, red.RedemptionCode, red.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddPoints(string(models.CauseRedemption), -points)
	s.logger.Info("reward redeemed",
		slog.String("user_id", userID),
		slog.String("reward_id", rewardID),
		slog.Int("points", points),
	)
	return &red, nil
}

// List returns userID's redemptions, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.Redemption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, reward_id, points, status, redemption_code, created_at
		 FROM redemptions WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	list := []models.Redemption{}
	for rows.Next() {
		var r models.Redemption
		if err := rows.Scan(&r.ID, &r.UserID, &r.RewardID, &r.Points, &r.Status, &r.RedemptionCode, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
