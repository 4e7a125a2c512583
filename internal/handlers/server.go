// Package handlers contains the HTTP handler logic for the GreenQuest API.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — package structure
// ────────────────────────────────────────────────────────────────────
// All handler files share the same "handlers" package so they can call
// each other's helpers freely without exporting them. The files are
// split by area (auth, activities, tickets, challenges, rewards,
// community) purely for readability.
//
// Handlers stay thin. They parse and validate the request, call one of
// the engine packages (verify, scoring, challenges, tickets, rewards,
// streak) and translate the result or the sentinel error into JSON.
// Business rules live in those packages so they can be tested without
// HTTP.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Elizabethomito/greenquest/internal/challenges"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/metrics"
	"github.com/Elizabethomito/greenquest/internal/rewards"
	"github.com/Elizabethomito/greenquest/internal/storage"
	"github.com/Elizabethomito/greenquest/internal/streak"
	"github.com/Elizabethomito/greenquest/internal/tickets"
	"github.com/Elizabethomito/greenquest/internal/verify"
)

// respond writes v as JSON with the given HTTP status code.
// Setting Content-Type before WriteHeader is important — once
// WriteHeader is called the headers are flushed and cannot be changed.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring the encode error: if the client disconnected mid-write
	// there is nothing useful we can do.
	_ = json.NewEncoder(w).Encode(body)
}

// respondError sends a JSON object with a single "error" key,
// e.g. {"error": "ticket not found"}.
func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// decode reads and parses a JSON request body into v.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Publisher receives live community events. *live.Hub implements it.
type Publisher interface {
	Publish(msgType string, data any)
}

// Server holds shared dependencies for all handlers.
// Using a struct instead of package-level globals means tests can spin
// up many independent Server instances without state leaking between them.
type Server struct {
	// DB is the SQLite connection pool.
	DB *sql.DB
	// Secret is the HMAC key used to sign and verify JWTs.
	Secret string

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Verifier   *verify.Verifier
	Store      storage.Store
	Challenges *challenges.Engine
	Tickets    *tickets.Service
	Rewards    *rewards.Service
	Streaks    *streak.Tracker

	// Hub is optional; nil disables live events.
	Hub Publisher
	// ClassifierPing backs GET /api/health/classifier. nil means no
	// classifier is configured.
	ClassifierPing func(ctx context.Context) error
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) publish(msgType string, data any) {
	if s.Hub != nil {
		s.Hub.Publish(msgType, data)
	}
}

// errUserNotFound is returned by the read models when the token's user no
// longer exists.
var errUserNotFound = errors.New("user not found")

// statusFor maps engine sentinel errors to HTTP status codes. Anything
// unrecognised is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, verify.ErrUnknownCategory),
		errors.Is(err, tickets.ErrDescriptionRequired),
		errors.Is(err, tickets.ErrInvalidEvidenceCount),
		errors.Is(err, tickets.ErrInvalidAction),
		errors.Is(err, challenges.ErrTargetNotMet),
		errors.Is(err, ledger.ErrInsufficientPoints),
		errors.Is(err, rewards.ErrRewardRequired),
		errors.Is(err, rewards.ErrInvalidPoints):
		return http.StatusBadRequest
	case errors.Is(err, tickets.ErrActivityNotOwned),
		errors.Is(err, tickets.ErrTicketNotFound),
		errors.Is(err, challenges.ErrChallengeNotFound),
		errors.Is(err, challenges.ErrActivityNotOwned),
		errors.Is(err, streak.ErrUserNotFound),
		errors.Is(err, errUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, tickets.ErrTicketExists),
		errors.Is(err, tickets.ErrNotPending),
		errors.Is(err, challenges.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, errImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, verify.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	}
	var ce clientError
	if errors.As(err, &ce) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// clientError marks an error whose message is safe to return with a 400.
type clientError struct{ err error }

func (e clientError) Error() string { return e.err.Error() }
func (e clientError) Unwrap() error { return e.err }

func badRequest(err error) error { return clientError{err: err} }

// fail writes err as a JSON error. Server errors are logged with their
// full chain and the client only sees a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger().ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("err", err),
		)
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
