package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/auth"
	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/middleware"
	"github.com/Elizabethomito/greenquest/internal/models"
)

// Register handles POST /api/auth/register. New accounts are always plain
// users; admins are created by the bootstrap seed.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := requests.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id := uuid.NewString()
	_, err = s.DB.ExecContext(r.Context(),
		`INSERT INTO users (id, email, password_hash, name, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, req.Email, hash, req.Name, models.RoleUser, s.now(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		s.fail(w, r, err)
		return
	}

	user, err := loadUser(r.Context(), s.DB, "u.id = ?", id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := auth.GenerateToken(user.ID, string(user.Role), s.Secret)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger().Info("user registered", slog.String("user_id", user.ID))
	respond(w, http.StatusCreated, models.LoginResponse{Token: token, User: user})
}

// Login handles POST /api/auth/login. A successful login also advances the
// daily login streak; the response says whether it moved.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, false)
}

// AdminLogin handles POST /api/auth/admin/login. Only admin accounts may
// use it, and it does not touch the streak.
func (s *Server) AdminLogin(w http.ResponseWriter, r *http.Request) {
	s.login(w, r, true)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, admin bool) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := requests.Validate(req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	invalid := "invalid credentials"
	if admin {
		invalid = "invalid admin credentials"
	}

	user, err := loadUser(r.Context(), s.DB, "u.email = ?", req.Email)
	if errors.Is(err, errUserNotFound) {
		respondError(w, http.StatusUnauthorized, invalid)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, invalid)
		return
	}
	if admin && user.Role != models.RoleAdmin {
		respondError(w, http.StatusUnauthorized, invalid)
		return
	}

	resp := models.LoginResponse{User: user, CurrentStreak: user.CurrentStreak}
	if !admin {
		res, err := s.Streaks.RecordLogin(r.Context(), user.ID, s.now())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.StreakIncreased = res.Increased
		resp.CurrentStreak = res.Streak
		resp.User.CurrentStreak = res.Streak
		resp.User.LastLoginDate = res.LastLoginDate
	}

	resp.Token, err = auth.GenerateToken(user.ID, string(user.Role), s.Secret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// Me handles GET /api/me
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := s.buildProfile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, profile)
}
