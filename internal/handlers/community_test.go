package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Elizabethomito/greenquest/internal/db/dbtest"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/models"
)

func credit(t *testing.T, srv *testServer, userID string, points int, ref string) {
	t.Helper()
	if _, err := ledger.Append(context.Background(), srv.DB, userID, points, models.CauseActivityAward, ref); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func TestLeaderboard(t *testing.T) {
	srv := newTestServer(t, bicycleClassifier)
	low := dbtest.SeedUser(t, srv.DB, "Low", "user")
	high := dbtest.SeedUser(t, srv.DB, "High", "user")
	admin := dbtest.SeedUser(t, srv.DB, "Admin", "admin")
	credit(t, srv, low, 5, "a")
	credit(t, srv, high, 50, "b")
	credit(t, srv, admin, 500, "c")

	rec := httptest.NewRecorder()
	srv.Leaderboard(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var board []models.LeaderboardEntry
	decodeBody(t, rec, &board)

	if len(board) != 2 {
		t.Fatalf("expected 2 entries (admins excluded), got %d: %+v", len(board), board)
	}
	if board[0].ID != high || board[0].Rank != 1 || board[0].Points != 50 {
		t.Errorf("first: got %+v", board[0])
	}
	if board[1].ID != low || board[1].Rank != 2 {
		t.Errorf("second: got %+v", board[1])
	}
}

func search(t *testing.T, srv *testServer, q string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?q="+url.QueryEscape(q), nil))
	return rec
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, bicycleClassifier)
	amina := dbtest.SeedUser(t, srv.DB, "Amina Njeri", "user")
	dbtest.SeedUser(t, srv.DB, "Amir Khan", "user")
	dbtest.SeedUser(t, srv.DB, "Bob", "user")
	dbtest.SeedUser(t, srv.DB, "Amina Admin", "admin")

	submit(t, srv, amina, map[string]string{"type": "Ride", "category": "transport", "visibility": "public"})
	submit(t, srv, amina, map[string]string{"type": "Secret ride", "category": "transport", "visibility": "private"})

	rec := search(t, srv, "amina")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var results []models.SearchResult
	decodeBody(t, rec, &results)
	if len(results) != 1 || results[0].User.ID != amina {
		t.Fatalf("results: got %+v", results)
	}
	if acts := results[0].Activities; len(acts) != 1 || acts[0].Type != "Ride" {
		t.Errorf("activities: got %+v, want only the public one", acts)
	}

	decodeBody(t, search(t, srv, "Ami"), &results)
	if len(results) != 2 {
		t.Errorf("prefix search: got %d results, want 2", len(results))
	}

	decodeBody(t, search(t, srv, "100%"), &results)
	if len(results) != 0 {
		t.Errorf("wildcards must be literal: got %d results", len(results))
	}

	if rec := search(t, srv, "  "); rec.Code != http.StatusBadRequest {
		t.Errorf("empty query: expected 400, got %d", rec.Code)
	}
}

func TestRankUsers(t *testing.T) {
	users := []models.User{{ID: "1", Name: "Zed"}, {ID: "2", Name: "Otieno Ouma"}, {ID: "3", Name: "Otto"}}
	got := rankUsers("otto", users)
	if len(got) != 3 || got[0].ID != "3" {
		t.Errorf("rankUsers: got %+v, want Otto first", got)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, bicycleClassifier)

	rec := httptest.NewRecorder()
	srv.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ClassifierHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health/classifier", nil))
	var body map[string]string
	decodeBody(t, rec, &body)
	if rec.Code != http.StatusOK || body["status"] != "disabled" {
		t.Errorf("no classifier: got %d %v", rec.Code, body)
	}

	srv.ClassifierPing = func(context.Context) error { return errors.New("connection refused") }
	rec = httptest.NewRecorder()
	srv.ClassifierHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health/classifier", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing classifier: expected 503, got %d", rec.Code)
	}
}
