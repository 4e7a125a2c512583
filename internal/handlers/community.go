package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/Elizabethomito/greenquest/internal/models"
)

const (
	leaderboardSize  = 20
	searchCandidates = 100
	searchResults    = 20
)

// Leaderboard handles GET /api/leaderboard
//
// Ranks plain users by ledger balance; ties go to the older account.
func (s *Server) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT u.id, u.name,
		        COALESCE((SELECT SUM(l.delta) FROM point_ledger l WHERE l.user_id = u.id), 0) AS points,
		        COALESCE((SELECT SUM(a.co2_saved) FROM activities a WHERE a.user_id = u.id), 0),
		        (SELECT COUNT(*) FROM activities a WHERE a.user_id = u.id)
		 FROM users u
		 WHERE u.role = 'user'
		 ORDER BY points DESC, u.created_at ASC
		 LIMIT ?`, leaderboardSize)
	if err != nil {
		s.fail(w, r, fmt.Errorf("leaderboard: %w", err))
		return
	}
	defer rows.Close()

	board := []models.LeaderboardEntry{}
	for rows.Next() {
		e := models.LeaderboardEntry{Rank: len(board) + 1}
		if err := rows.Scan(&e.ID, &e.Name, &e.Points, &e.CO2Saved, &e.Activities); err != nil {
			s.fail(w, r, fmt.Errorf("scan leaderboard: %w", err))
			return
		}
		board = append(board, e)
	}
	if err := rows.Err(); err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, board)
}

// userNames lets fuzzy rank users by display name.
type userNames []models.User

func (u userNames) String(i int) string { return u[i].Name }
func (u userNames) Len() int            { return len(u) }

// rankUsers orders users by fuzzy match quality on their name. Users the
// SQL filter found only through their email keep their original order
// after the name matches.
func rankUsers(query string, users []models.User) []models.User {
	matches := fuzzy.FindFrom(query, userNames(users))
	ranked := make([]models.User, 0, len(users))
	seen := make(map[int]bool, len(matches))
	for _, m := range matches {
		ranked = append(ranked, users[m.Index])
		seen[m.Index] = true
	}
	for i, u := range users {
		if !seen[i] {
			ranked = append(ranked, u)
		}
	}
	return ranked
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search handles GET /api/search?q=
//
// Finds users whose name or email contains q and returns each with up to
// ten of their public activities.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "search query is required")
		return
	}

	like := "%" + likeEscaper.Replace(q) + "%"
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT `+userColumns+` FROM users u
		 WHERE u.role = 'user' AND (u.name LIKE ? ESCAPE '\' OR u.email LIKE ? ESCAPE '\')
		 ORDER BY u.name LIMIT ?`, like, like, searchCandidates)
	if err != nil {
		s.fail(w, r, fmt.Errorf("search users: %w", err))
		return
	}
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			s.fail(w, r, fmt.Errorf("scan user: %w", err))
			return
		}
		users = append(users, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.fail(w, r, err)
		return
	}

	ranked := rankUsers(q, users)
	if len(ranked) > searchResults {
		ranked = ranked[:searchResults]
	}

	results := make([]models.SearchResult, 0, len(ranked))
	for _, u := range ranked {
		acts, err := listActivities(r.Context(), s.DB, "a.user_id = ? AND a.visibility = 'public'", 10, u.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		results = append(results, models.SearchResult{User: u, Activities: acts})
	}
	respond(w, http.StatusOK, results)
}

// Health handles GET /api/health
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": "database unavailable"})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ClassifierHealth handles GET /api/health/classifier
//
// Without a configured classifier every image gets the fallback verdict,
// which is reported as "disabled" rather than an error.
func (s *Server) ClassifierHealth(w http.ResponseWriter, r *http.Request) {
	if s.ClassifierPing == nil {
		respond(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.ClassifierPing(ctx); err != nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
