package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Elizabethomito/greenquest/internal/db/dbtest"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/models"
)

func redeem(t *testing.T, srv *testServer, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/rewards/redeem", jsonBody(t, body))
	rec := httptest.NewRecorder()
	srv.Redeem(rec, ctxWithUser(req, userID, "user"))
	return rec
}

func TestRedeem(t *testing.T) {
	srv := newTestServer(t, bicycleClassifier)
	userID := dbtest.SeedUser(t, srv.DB, "Saver", "user")
	if _, err := ledger.Append(context.Background(), srv.DB, userID, 100, models.CauseActivityAward, "seed"); err != nil {
		t.Fatalf("ledger: %v", err)
	}

	rec := redeem(t, srv, userID, models.RedeemRequest{RewardID: "tree-planting", Points: 60})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var red models.Redemption
	decodeBody(t, rec, &red)
	if red.Points != 60 || !strings.HasPrefix(red.RedemptionCode, "TREE-") {
		t.Errorf("redemption: got %+v", red)
	}
	if got := balance(t, srv, userID); got != 40 {
		t.Errorf("balance: got %d, want 40", got)
	}

	if rec := redeem(t, srv, userID, models.RedeemRequest{RewardID: "tree-planting", Points: 60}); rec.Code != http.StatusBadRequest {
		t.Errorf("overdraw: expected 400, got %d", rec.Code)
	}
	if got := balance(t, srv, userID); got != 40 {
		t.Errorf("balance after overdraw: got %d, want 40", got)
	}

	list := httptest.NewRecorder()
	srv.Redemptions(list, ctxWithUser(httptest.NewRequest(http.MethodGet, "/api/rewards/redemptions", nil), userID, "user"))
	var history []models.Redemption
	decodeBody(t, list, &history)
	if len(history) != 1 || history[0].ID != red.ID {
		t.Errorf("history: got %+v", history)
	}
}

func TestRedeem_Validation(t *testing.T) {
	srv := newTestServer(t, bicycleClassifier)
	userID := dbtest.SeedUser(t, srv.DB, "Saver", "user")

	for name, body := range map[string]models.RedeemRequest{
		"missing reward": {Points: 10},
		"zero points":    {RewardID: "bus-pass"},
		"negative":       {RewardID: "bus-pass", Points: -3},
	} {
		t.Run(name, func(t *testing.T) {
			if rec := redeem(t, srv, userID, body); rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}
