// Package tickets implements the appeal workflow: a user disputes the
// verdict on one of their activities and an admin approves (optionally
// overriding the points) or rejects it.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — a ticket leaves pending exactly once
// ────────────────────────────────────────────────────────────────────
// Resolve reads the ticket for a friendly error, but the real guard is the
// UPDATE … WHERE status = 'pending'. If two admins resolve at the same
// moment only one UPDATE affects a row; the other sees zero rows and gets
// ErrNotPending, and its transaction (including any ledger write) rolls
// back.
package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/metrics"
	"github.com/Elizabethomito/greenquest/internal/models"
)

// MaxEvidence is the most images one ticket may carry.
const MaxEvidence = 5

var (
	ErrDescriptionRequired  = errors.New("description is required")
	ErrInvalidEvidenceCount = fmt.Errorf("between 1 and %d evidence images are required", MaxEvidence)
	ErrActivityNotOwned     = errors.New("activity not found")
	ErrTicketExists         = errors.New("a ticket already exists for this activity")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrNotPending           = errors.New("ticket is not pending")
	ErrInvalidAction        = errors.New("action must be approve or reject")
)

// Action is an admin decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Service runs the ticket state machine.
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

// CheckOpen validates the parts of an appeal that do not need the store,
// so callers can reject a request before persisting its evidence.
func CheckOpen(description string, evidenceCount int) error {
	if strings.TrimSpace(description) == "" {
		return ErrDescriptionRequired
	}
	if evidenceCount < 1 || evidenceCount > MaxEvidence {
		return ErrInvalidEvidenceCount
	}
	return nil
}

// Open files an appeal against activityID. evidence holds storage keys of
// already-saved images. The points and aiScore snapshots are read from the
// stored activity, never from the request.
func (s *Service) Open(ctx context.Context, userID, activityID, description string, evidence []string) (*models.Ticket, error) {
	if err := CheckOpen(description, len(evidence)); err != nil {
		return nil, err
	}

	t := models.Ticket{
		ID:            uuid.NewString(),
		ActivityID:    activityID,
		UserID:        userID,
		Description:   strings.TrimSpace(description),
		Status:        models.TicketPending,
		EvidenceCount: len(evidence),
		CreatedAt:     s.now().UTC(),
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, type, category, points, ai_score FROM activities WHERE id = ?`, activityID,
		).Scan(&owner, &t.ActivityType, &t.Category, &t.CurrentPoints, &t.AIScore)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return ErrActivityNotOwned
		}
		if err != nil {
			return fmt.Errorf("load activity: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO tickets (id, activity_id, user_id, description, activity_type, category, current_points, ai_score, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ActivityID, t.UserID, t.Description, t.ActivityType, t.Category,
			t.CurrentPoints, t.AIScore, t.Status, t.CreatedAt,
		)
		if db.IsUniqueViolation(err) {
			return ErrTicketExists
		}
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		for _, key := range evidence {
			ev := models.TicketEvidence{ID: uuid.NewString(), TicketID: t.ID, ImagePath: key, CreatedAt: t.CreatedAt}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO ticket_evidence (id, ticket_id, image_path, created_at) VALUES (?, ?, ?, ?)`,
				ev.ID, ev.TicketID, ev.ImagePath, ev.CreatedAt,
			); err != nil {
				return fmt.Errorf("insert evidence: %w", err)
			}
			t.Evidence = append(t.Evidence, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket opened",
		slog.String("ticket_id", t.ID),
		slog.String("activity_id", t.ActivityID),
		slog.String("user_id", t.UserID),
	)
	return &t, nil
}

// Resolve moves a pending ticket to approved or rejected. Approving with
// newPoints overwrites the activity's points and appends the difference to
// the owner's ledger; a negative difference is clamped at a zero balance.
func (s *Service) Resolve(ctx context.Context, ticketID, adminID string, action Action, newPoints *int, notes string) (*models.Ticket, error) {
	var status models.TicketStatus
	switch action {
	case ActionApprove:
		status = models.TicketApproved
	case ActionReject:
		status = models.TicketRejected
		newPoints = nil
	default:
		return nil, ErrInvalidAction
	}
	if newPoints != nil && *newPoints < 0 {
		return nil, errors.New("newPoints must not be negative")
	}

	var delta int
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var current models.TicketStatus
		var userID, activityID string
		var currentPoints int
		err := tx.QueryRowContext(ctx,
			`SELECT status, user_id, activity_id, current_points FROM tickets WHERE id = ?`, ticketID,
		).Scan(&current, &userID, &activityID, &currentPoints)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("load ticket: %w", err)
		}
		if current != models.TicketPending {
			return ErrNotPending
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE tickets SET status = ?, new_points = ?, admin_id = ?, admin_notes = ?, resolved_at = ?
			 WHERE id = ? AND status = 'pending'`,
			status, newPoints, adminID, notes, s.now().UTC(), ticketID,
		)
		if err != nil {
			return fmt.Errorf("resolve ticket: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return ErrNotPending
		}

		if newPoints == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE activities SET points = ? WHERE id = ?`, *newPoints, activityID,
		); err != nil {
			return fmt.Errorf("update activity points: %w", err)
		}
		entry, err := ledger.Adjust(ctx, tx, userID, *newPoints-currentPoints, models.CauseTicketAdjustment, ticketID)
		if err != nil {
			return err
		}
		delta = entry.Delta
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TicketResolved(string(action))
	s.metrics.AddPoints(string(models.CauseTicketAdjustment), delta)
	s.logger.Info("ticket resolved",
		slog.String("ticket_id", ticketID),
		slog.String("admin_id", adminID),
		slog.String("action", string(action)),
		slog.Int("delta", delta),
	)
	return s.Get(ctx, ticketID)
}

const ticketColumns = `t.id, t.activity_id, t.user_id, u.name, u.email, t.description, t.activity_type,
	t.category, t.current_points, t.ai_score, t.status, t.new_points, t.admin_id, t.admin_notes,
	t.resolved_at, t.created_at,
	(SELECT COUNT(*) FROM ticket_evidence e WHERE e.ticket_id = t.id)`

func scanTicket(row interface{ Scan(...any) error }) (models.Ticket, error) {
	var t models.Ticket
	var newPoints sql.NullInt64
	var adminID sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&t.ID, &t.ActivityID, &t.UserID, &t.UserName, &t.UserEmail, &t.Description,
		&t.ActivityType, &t.Category, &t.CurrentPoints, &t.AIScore, &t.Status, &newPoints,
		&adminID, &t.AdminNotes, &resolvedAt, &t.CreatedAt, &t.EvidenceCount)
	if err != nil {
		return t, err
	}
	if newPoints.Valid {
		v := int(newPoints.Int64)
		t.NewPoints = &v
	}
	if adminID.Valid {
		t.AdminID = &adminID.String
	}
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}
	return t, nil
}

// Get returns one ticket with its evidence.
func (s *Service) Get(ctx context.Context, ticketID string) (*models.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t JOIN users u ON u.id = t.user_id WHERE t.id = ?`, ticketID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, image_path, created_at FROM ticket_evidence WHERE ticket_id = ? ORDER BY created_at, rowid`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev models.TicketEvidence
		if err := rows.Scan(&ev.ID, &ev.TicketID, &ev.ImagePath, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		t.Evidence = append(t.Evidence, ev)
	}
	return &t, rows.Err()
}

// ListForUser returns the user's tickets, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	return s.list(ctx, `WHERE t.user_id = ?`, userID)
}

// List returns all tickets, optionally filtered by status, newest first.
func (s *Service) List(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	if status == "" {
		return s.list(ctx, "")
	}
	return s.list(ctx, `WHERE t.status = ?`, status)
}

func (s *Service) list(ctx context.Context, where string, args ...any) ([]models.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t JOIN users u ON u.id = t.user_id `+where+
			` ORDER BY t.created_at DESC, t.rowid DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	list := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// HasTicket reports whether activityID is under appeal. Activities with a
// ticket cannot be deleted.
func HasTicket(ctx context.Context, q db.Querier, activityID string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE activity_id = ?`, activityID).Scan(&n); err != nil {
		return false, fmt.Errorf("check ticket: %w", err)
	}
	return n > 0, nil
}
