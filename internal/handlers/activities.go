package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/live"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
	"github.com/Elizabethomito/greenquest/internal/scoring"
	"github.com/Elizabethomito/greenquest/internal/storage"
	"github.com/Elizabethomito/greenquest/internal/tickets"
	"github.com/Elizabethomito/greenquest/internal/verify"
)

var errActivityNotFound = errors.New("activity not found")

func verification(v verify.Verdict) models.VerificationResult {
	return models.VerificationResult{
		Score:      v.AIScore,
		Label:      v.Label,
		Matches:    v.Matches,
		Confidence: v.Confidence,
		Source:     string(v.Source),
	}
}

// parseSubmitForm reads the text fields of a submission. Coordinates only
// count when both latitude and longitude are present.
func parseSubmitForm(r *http.Request) (models.SubmitActivityForm, error) {
	f := models.SubmitActivityForm{
		Type:        strings.TrimSpace(r.FormValue("type")),
		Category:    strings.ToLower(strings.TrimSpace(r.FormValue("category"))),
		Description: strings.TrimSpace(r.FormValue("description")),
		EventTime:   strings.TrimSpace(r.FormValue("eventTime")),
		Location:    strings.TrimSpace(r.FormValue("location")),
		Visibility:  string(models.ParseVisibility(strings.TrimSpace(r.FormValue("visibility")))),
	}

	var err error
	if f.Points, err = formInt(r, "points"); err != nil {
		return f, err
	}
	co2, err := formFloat(r, "co2Saved")
	if err != nil {
		return f, err
	}
	if co2 != nil {
		f.CO2Saved = *co2
	}
	if f.Latitude, err = formFloat(r, "latitude"); err != nil {
		return f, err
	}
	if f.Longitude, err = formFloat(r, "longitude"); err != nil {
		return f, err
	}
	if f.GeoAccuracy, err = formFloat(r, "geoAccuracy"); err != nil {
		return f, err
	}
	if f.Latitude == nil || f.Longitude == nil {
		f.Latitude, f.Longitude, f.GeoAccuracy = nil, nil, nil
	}
	return f, requests.Validate(f)
}

// eventTime parses an RFC 3339 timestamp, defaulting to now.
func eventTime(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return now
	}
	return t.UTC()
}

// SubmitActivity handles POST /api/activities (multipart)
//
// LEARNING NOTE — the submission pipeline
// 1. The image is stored so the activity can reference it while it is scored.
// 2. The verifier turns it into a Verdict. A classifier outage yields the
//    fallback verdict, so this step only fails for an unknown category.
// 3. scoring computes points, status and CO₂ from the verdict and geo data.
// 4. The activity row and its ledger credit are written in one transaction.
// 5. The image is deleted and image_path nulled; only ticket evidence is kept.
// 6. A strong, matching verdict may auto-complete one of today's challenges.
func (s *Server) SubmitActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := parseMultipart(w, r, 1); err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	form, err := parseSubmitForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.Verifier.Catalog().Has(form.Category) {
		s.fail(w, r, verify.ErrUnknownCategory)
		return
	}

	var image []byte
	var imageKey string
	if files := uploads(r, "image"); len(files) > 0 {
		if image, err = readUpload(files[0]); err != nil {
			s.fail(w, r, badRequest(err))
			return
		}
		if imageKey, err = s.Store.Save(ctx, storage.PrefixSubmissions, files[0].Filename, image); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	verdict, err := s.Verifier.Verify(ctx, form.Category, image)
	if err != nil {
		s.discardImage(ctx, "", imageKey)
		s.fail(w, r, err)
		return
	}

	geoBonus := scoring.GeoBonus(form.Latitude, form.Longitude, form.GeoAccuracy)
	points := scoring.ComputePoints(form.Points, verdict.Confidence, verdict.Matches, geoBonus, verdict.HasVerdict())
	now := s.now()

	a := models.Activity{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        form.Type,
		Category:    verdict.Category,
		Description: form.Description,
		Points:      points,
		CO2Saved:    scoring.CO2Saved(form.CO2Saved, points),
		Status:      scoring.ClassifyStatus(verdict.AIScore),
		AIScore:     verdict.AIScore,
		AILabel:     verdict.Label,
		Location:    form.Location,
		Latitude:    form.Latitude,
		Longitude:   form.Longitude,
		GeoAccuracy: form.GeoAccuracy,
		Visibility:  models.Visibility(form.Visibility),
		EventTime:   eventTime(form.EventTime, now),
		CreatedAt:   now,
	}
	if imageKey != "" {
		a.ImagePath = &imageKey
	}

	err = db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO activities
			   (id, user_id, type, category, description, points, co2_saved, status, ai_score, ai_label,
			    image_path, location, latitude, longitude, geo_accuracy, visibility, event_time, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.UserID, a.Type, a.Category, a.Description, a.Points, a.CO2Saved, a.Status, a.AIScore, a.AILabel,
			a.ImagePath, a.Location, a.Latitude, a.Longitude, a.GeoAccuracy, a.Visibility, a.EventTime, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		_, err = ledger.Append(ctx, tx, userID, a.Points, models.CauseActivityAward, a.ID)
		return err
	})
	if err != nil {
		s.discardImage(ctx, "", imageKey)
		s.fail(w, r, err)
		return
	}
	s.Metrics.AddPoints(string(models.CauseActivityAward), a.Points)
	s.discardImage(ctx, a.ID, imageKey)

	resp := models.SubmitActivityResponse{
		GeoBonus:       geoBonus,
		AIVerification: verification(verdict),
	}

	if scoring.EligibleForChallenge(verdict.Matches, verdict.AIScore) {
		completion, err := s.Challenges.TryAutoComplete(ctx, userID, a.Category, a.ID, s.Challenges.CurrentDate())
		if err != nil {
			// The activity is already committed; a failed bonus is not worth
			// failing the submission over.
			s.logger().Warn("auto-complete challenge failed",
				slog.String("activity_id", a.ID), slog.Any("err", err))
		}
		resp.ChallengeCompleted = completion
	}

	if resp.Activity, err = loadActivity(ctx, s.DB, a.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	if resp.Profile, err = s.buildProfile(ctx, userID); err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger().Info("activity submitted",
		slog.String("activity_id", a.ID),
		slog.String("category", a.Category),
		slog.String("source", string(verdict.Source)),
		slog.Int("ai_score", a.AIScore),
		slog.Int("points", a.Points),
		slog.String("status", string(a.Status)),
	)
	if resp.Activity.Visibility == models.VisibilityPublic {
		s.publish(live.TypeActivityCreated, live.ActivityCreated(resp.Activity))
	}
	if resp.ChallengeCompleted != nil {
		s.publish(live.TypeChallengeCompleted, live.ChallengeCompleted(resp.ChallengeCompleted))
	}
	s.publish(live.TypeLeaderboardUpdated, live.LeaderboardEvent{UserID: userID})

	respond(w, http.StatusCreated, resp)
}

// discardImage deletes a submission image once it has been scored and, if
// activityID is set, clears the activity's reference to it. Failures are
// logged; the submission itself already succeeded or failed.
func (s *Server) discardImage(ctx context.Context, activityID, key string) {
	if key == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.Store.Delete(ctx, key); err != nil {
		s.logger().Warn("delete submission image", slog.String("key", key), slog.Any("err", err))
		return
	}
	if activityID == "" {
		return
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE activities SET image_path = NULL WHERE id = ?`, activityID); err != nil {
		s.logger().Warn("clear image_path", slog.String("activity_id", activityID), slog.Any("err", err))
	}
}

type analyzeResponse struct {
	models.VerificationResult
	Adjusted    float64             `json:"adjusted"`
	Predictions []verify.Prediction `json:"predictions"`
}

// AnalyzeActivity handles POST /api/activities/analyze (multipart)
//
// It scores an image without recording anything. Unlike submission it
// reports a classifier outage as 503 so the client can retry.
func (s *Server) AnalyzeActivity(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, 1); err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	category := strings.ToLower(strings.TrimSpace(r.FormValue("category")))
	if category == "" {
		respondError(w, http.StatusBadRequest, "category is required")
		return
	}
	files := uploads(r, "image")
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	image, err := readUpload(files[0])
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}

	verdict, err := s.Verifier.Analyze(r.Context(), category, image)
	if errors.Is(err, verify.ErrClassifierUnavailable) {
		s.logger().Warn("analyze: classifier unavailable", slog.Any("err", err))
		respondError(w, http.StatusServiceUnavailable, "image classifier is unavailable, please try again")
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, analyzeResponse{
		VerificationResult: verification(verdict),
		Adjusted:           verdict.Adjusted,
		Predictions:        verdict.Predictions,
	})
}

// ListActivities handles GET /api/activities?scope=all
func (s *Server) ListActivities(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Activity
		err  error
	)
	if r.URL.Query().Get("scope") == "all" {
		list, err = listActivities(r.Context(), s.DB, "", 0)
	} else {
		list, err = listActivities(r.Context(), s.DB, "a.user_id = ?", 0, middleware.GetUserID(r.Context()))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// Feed handles GET /api/feed?scope=public|private
func (s *Server) Feed(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Activity
		err  error
	)
	if r.URL.Query().Get("scope") == "public" {
		list, err = listActivities(r.Context(), s.DB, "a.visibility = 'public'", 50)
	} else {
		list, err = listActivities(r.Context(), s.DB, "a.user_id = ? AND a.visibility = 'private'", 50,
			middleware.GetUserID(r.Context()))
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// DeleteActivity handles DELETE /api/activities/{id}
//
// The points it earned stay in the ledger. An activity under appeal cannot
// be deleted because its ticket references it.
func (s *Server) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	id := r.PathValue("id")

	var imagePath sql.NullString
	err := db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, image_path FROM activities WHERE id = ?`, id,
		).Scan(&owner, &imagePath)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return errActivityNotFound
		}
		if err != nil {
			return fmt.Errorf("load activity: %w", err)
		}

		appealed, err := tickets.HasTicket(ctx, tx, id)
		if err != nil {
			return err
		}
		if appealed {
			return tickets.ErrTicketExists
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
		return nil
	})
	if errors.Is(err, errActivityNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.discardImage(ctx, "", imagePath.String)
	respond(w, http.StatusOK, map[string]string{"message": "activity deleted"})
}
