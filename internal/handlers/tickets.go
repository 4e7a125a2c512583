package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Elizabethomito/greenquest/internal/live"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/Elizabethomito/greenquest/internal/storage"
	"github.com/Elizabethomito/greenquest/internal/tickets"
)

// CreateTicket handles POST /api/tickets (multipart)
//
// Fields: activityId, description, and 1–5 "evidence" images. The text
// and file count are checked before anything is stored; if opening the
// ticket fails afterwards the saved evidence is removed again.
func (s *Server) CreateTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := parseMultipart(w, r, tickets.MaxEvidence); err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	activityID := strings.TrimSpace(r.FormValue("activityId"))
	description := r.FormValue("description")
	files := uploads(r, "evidence")

	if activityID == "" {
		respondError(w, http.StatusBadRequest, "activityId is required")
		return
	}
	if err := tickets.CheckOpen(description, len(files)); err != nil {
		s.fail(w, r, err)
		return
	}

	keys := make([]string, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		if err == nil {
			var key string
			key, err = s.Store.Save(ctx, storage.PrefixTickets, fh.Filename, data)
			keys = append(keys, key)
		}
		if err != nil {
			s.discardEvidence(ctx, keys)
			if errors.Is(err, errImageTooLarge) {
				s.fail(w, r, err)
			} else {
				s.fail(w, r, badRequest(err))
			}
			return
		}
	}

	t, err := s.Tickets.Open(ctx, userID, activityID, description, keys)
	if err != nil {
		s.discardEvidence(ctx, keys)
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusCreated, t)
}

func (s *Server) discardEvidence(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			s.logger().Warn("delete orphaned evidence", slog.String("key", key), slog.Any("err", err))
		}
	}
}

// MyTickets handles GET /api/tickets
func (s *Server) MyTickets(w http.ResponseWriter, r *http.Request) {
	list, err := s.Tickets.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// AdminListTickets handles GET /api/admin/tickets?status=pending  (admin only)
func (s *Server) AdminListTickets(w http.ResponseWriter, r *http.Request) {
	status := models.TicketStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.TicketPending, models.TicketApproved, models.TicketRejected:
	default:
		respondError(w, http.StatusBadRequest, "status must be pending, approved or rejected")
		return
	}
	list, err := s.Tickets.List(r.Context(), status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

type ticketDetail struct {
	Ticket   *models.Ticket   `json:"ticket"`
	Activity *models.Activity `json:"activity"`
}

// AdminGetTicket handles GET /api/admin/tickets/{id}  (admin only)
//
// Returns the ticket with its evidence and the activity under appeal.
func (s *Server) AdminGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.Tickets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := loadActivity(r.Context(), s.DB, t.ActivityID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, ticketDetail{Ticket: t, Activity: &a})
}

// AdminTicketEvidence handles GET /api/admin/tickets/{id}/evidence/{evidenceId}
// (admin only) and streams the stored image.
func (s *Server) AdminTicketEvidence(w http.ResponseWriter, r *http.Request) {
	t, err := s.Tickets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var key string
	for _, ev := range t.Evidence {
		if ev.ID == r.PathValue("evidenceId") {
			key = ev.ImagePath
		}
	}
	if key == "" {
		respondError(w, http.StatusNotFound, "evidence not found")
		return
	}

	rc, err := s.Store.Open(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "evidence not found")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxImageBytes))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ReviewTicket handles POST /api/admin/tickets/{id}/review  (admin only)
//
// Body: {"action": "approve"|"reject", "newPoints": 40, "notes": "..."}.
// A ticket that is no longer pending answers 409, including when two
// admins race on the same ticket.
func (s *Server) ReviewTicket(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewTicketRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := requests.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.Tickets.Resolve(r.Context(), r.PathValue("id"), middleware.GetUserID(r.Context()),
		tickets.Action(req.Action), req.NewPoints, strings.TrimSpace(req.Notes))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.publish(live.TypeTicketResolved, live.TicketResolved(t))
	if t.NewPoints != nil {
		s.publish(live.TypeLeaderboardUpdated, live.LeaderboardEvent{UserID: t.UserID})
	}
	respond(w, http.StatusOK, t)
}
