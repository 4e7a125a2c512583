package handlers

import (
	"net/http"
	"strings"

	"github.com/Elizabethomito/greenquest/internal/live"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
)

// ListChallenges handles GET /api/challenges
//
// Today's challenges are seeded on first read, so there is no scheduler.
// Each entry says whether the caller already completed it.
func (s *Server) ListChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.Challenges.Today(r.Context(), middleware.GetUserID(r.Context()), s.Challenges.CurrentDate())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

type completeChallengeResponse struct {
	Completion  *models.ChallengeCompletion `json:"completion"`
	BonusPoints int                         `json:"bonusPoints"`
}

// CompleteChallenge handles POST /api/challenges/{id}/complete
//
// Body: {"evidenceValue": 5, "evidenceUnit": "km", "activityId": "..."}.
func (s *Server) CompleteChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.CompleteChallengeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := requests.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(r.Context())
	c, err := s.Challenges.CompleteManually(r.Context(), userID, r.PathValue("id"),
		req.EvidenceValue, strings.TrimSpace(req.EvidenceUnit), strings.TrimSpace(req.ActivityID),
		s.Challenges.CurrentDate())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(live.TypeChallengeCompleted, live.ChallengeCompleted(c))
	s.publish(live.TypeLeaderboardUpdated, live.LeaderboardEvent{UserID: userID})
	respond(w, http.StatusOK, completeChallengeResponse{Completion: c, BonusPoints: c.BonusPointsEarned})
}
