package live

import (
	"time"

	"github.com/Elizabethomito/greenquest/internal/models"
)

// Payloads go to every connected client, signed in or not, so they carry
// only what the public leaderboard and feed already show.

type ActivityEvent struct {
	ActivityID string                `json:"activityId"`
	UserID     string                `json:"userId"`
	UserName   string                `json:"userName"`
	Type       string                `json:"type"`
	Category   string                `json:"category"`
	Points     int                   `json:"points"`
	Status     models.ActivityStatus `json:"status"`
	CreatedAt  time.Time             `json:"createdAt"`
}

func ActivityCreated(a models.Activity) ActivityEvent {
	return ActivityEvent{
		ActivityID: a.ID,
		UserID:     a.UserID,
		UserName:   a.UserName,
		Type:       a.Type,
		Category:   a.Category,
		Points:     a.Points,
		Status:     a.Status,
		CreatedAt:  a.CreatedAt,
	}
}

type ChallengeEvent struct {
	ChallengeID string `json:"challengeId"`
	Title       string `json:"title"`
	UserID      string `json:"userId"`
	BonusPoints int    `json:"bonusPoints"`
	CompletedOn string `json:"completedOn"`
}

func ChallengeCompleted(c *models.ChallengeCompletion) ChallengeEvent {
	return ChallengeEvent{
		ChallengeID: c.ChallengeID,
		Title:       c.ChallengeTitle,
		UserID:      c.UserID,
		BonusPoints: c.BonusPointsEarned,
		CompletedOn: c.CompletedOn,
	}
}

// TicketEvent leaves out the appeal text, evidence and admin fields.
type TicketEvent struct {
	TicketID  string              `json:"ticketId"`
	UserID    string              `json:"userId"`
	Status    models.TicketStatus `json:"status"`
	NewPoints *int                `json:"newPoints"`
}

func TicketResolved(t *models.Ticket) TicketEvent {
	return TicketEvent{TicketID: t.ID, UserID: t.UserID, Status: t.Status, NewPoints: t.NewPoints}
}

type LeaderboardEvent struct {
	UserID string `json:"userId"`
}
