package handlers

import (
	"net/http"

	"github.com/Elizabethomito/greenquest/internal/live"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
)

// Redeem handles POST /api/rewards/redeem
//
// Body: {"rewardId": "tree-planting", "points": 50}. The balance check and
// the debit happen in one transaction; a short balance answers 400.
func (s *Server) Redeem(w http.ResponseWriter, r *http.Request) {
	var req models.RedeemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := requests.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(r.Context())
	red, err := s.Rewards.Redeem(r.Context(), userID, req.RewardID, req.Points)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(live.TypeLeaderboardUpdated, live.LeaderboardEvent{UserID: userID})
	respond(w, http.StatusCreated, red)
}

// Redemptions handles GET /api/rewards/redemptions
func (s *Server) Redemptions(w http.ResponseWriter, r *http.Request) {
	list, err := s.Rewards.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}
