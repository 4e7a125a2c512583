package models

import "time"

// DateLayout is the calendar-date format used for streaks, challenge dates
// and completion days. All dates are UTC.
const DateLayout = "2006-01-02"

// CalendarDate returns t's UTC calendar date as YYYY-MM-DD.
func CalendarDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// UserRole defines the type of user account.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// ActivityStatus is the lifecycle state assigned from the AI score.
type ActivityStatus string

const (
	StatusVerified ActivityStatus = "verified"
	StatusPending  ActivityStatus = "pending"
	StatusFlagged  ActivityStatus = "flagged"
)

// Visibility controls who can see an activity in feeds and search.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityCommunity Visibility = "community"
	VisibilityPrivate   Visibility = "private"
)

// ParseVisibility returns v as a Visibility, falling back to private.
func ParseVisibility(v string) Visibility {
	switch Visibility(v) {
	case VisibilityPublic, VisibilityCommunity, VisibilityPrivate:
		return Visibility(v)
	}
	return VisibilityPrivate
}

// TicketStatus is the state of an appeal.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketApproved TicketStatus = "approved"
	TicketRejected TicketStatus = "rejected"
)

// LedgerCause names why a ledger entry was written.
type LedgerCause string

const (
	CauseActivityAward    LedgerCause = "activity_award"
	CauseChallengeBonus   LedgerCause = "challenge_bonus"
	CauseTicketAdjustment LedgerCause = "ticket_adjustment"
	CauseRedemption       LedgerCause = "redemption"
)

// User is an account. Points and CO2Saved are derived on read.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Name          string    `json:"name"`
	Role          UserRole  `json:"role"`
	Points        int       `json:"points"`
	CO2Saved      float64   `json:"co2_saved"`
	CurrentStreak int       `json:"current_streak"`
	LastLoginDate string    `json:"last_login_date,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Activity is one scored submission.
type Activity struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	UserName    string         `json:"user_name,omitempty"`
	Type        string         `json:"type"`
	Category    string         `json:"category"`
	Description string         `json:"description,omitempty"`
	Points      int            `json:"points"`
	CO2Saved    float64        `json:"co2_saved"`
	Status      ActivityStatus `json:"status"`
	AIScore     int            `json:"ai_score"`
	AILabel     string         `json:"ai_label,omitempty"`
	ImagePath   *string        `json:"image_path"`
	Location    string         `json:"location,omitempty"`
	Latitude    *float64       `json:"latitude,omitempty"`
	Longitude   *float64       `json:"longitude,omitempty"`
	GeoAccuracy *float64       `json:"geo_accuracy,omitempty"`
	Visibility  Visibility     `json:"visibility"`
	EventTime   time.Time      `json:"event_time"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Ticket is a user appeal against the verdict on one activity.
type Ticket struct {
	ID            string       `json:"id"`
	ActivityID    string       `json:"activity_id"`
	UserID        string       `json:"user_id"`
	UserName      string       `json:"user_name,omitempty"`
	UserEmail     string       `json:"user_email,omitempty"`
	Description   string       `json:"description"`
	ActivityType  string       `json:"activity_type"`
	Category      string       `json:"category"`
	CurrentPoints int          `json:"current_points"`
	AIScore       int          `json:"ai_score"`
	Status        TicketStatus `json:"status"`
	NewPoints     *int         `json:"new_points"`
	AdminID       *string      `json:"admin_id,omitempty"`
	AdminNotes    string       `json:"admin_notes,omitempty"`
	ResolvedAt    *time.Time   `json:"resolved_at,omitempty"`
	EvidenceCount int          `json:"evidence_count"`
	CreatedAt     time.Time    `json:"created_at"`

	// Populated on read
	Evidence []TicketEvidence `json:"evidence,omitempty"`
}

// TicketEvidence is one retained image attached to a ticket.
type TicketEvidence struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	ImagePath string    `json:"image_path"`
	CreatedAt time.Time `json:"created_at"`
}

// DailyChallenge is a per-day, per-category target.
type DailyChallenge struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	TargetValue   float64   `json:"target_value"`
	TargetUnit    string    `json:"target_unit"`
	BonusPoints   int       `json:"bonus_points"`
	ChallengeDate string    `json:"challenge_date"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`

	// Populated per user on read
	UserCompleted   bool `json:"user_completed"`
	UserBonusEarned *int `json:"user_bonus_earned,omitempty"`
}

// ChallengeCompletion links a user to a challenge for one calendar day.
type ChallengeCompletion struct {
	ID                string    `json:"id"`
	ChallengeID       string    `json:"challenge_id"`
	ChallengeTitle    string    `json:"challenge_title,omitempty"`
	UserID            string    `json:"user_id"`
	ActivityID        *string   `json:"activity_id,omitempty"`
	EvidenceValue     float64   `json:"evidence_value"`
	EvidenceUnit      string    `json:"evidence_unit"`
	BonusPointsEarned int       `json:"bonus_points_earned"`
	CompletedOn       string    `json:"completed_on"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Redemption is a point debit for a reward.
type Redemption struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	RewardID       string    `json:"reward_id"`
	Points         int       `json:"points"`
	Status         string    `json:"status"`
	RedemptionCode string    `json:"redemption_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerEntry is one signed change to a user's balance.
type LedgerEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Delta     int         `json:"delta"`
	Cause     LedgerCause `json:"cause"`
	RefID     string      `json:"ref_id"`
	CreatedAt time.Time   `json:"created_at"`
}

// ---- Request / Response DTOs ----

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token           string `json:"token"`
	User            User   `json:"user"`
	StreakIncreased bool   `json:"streakIncreased"`
	CurrentStreak   int    `json:"currentStreak"`
}

// SubmitActivityForm is the parsed multipart body of POST /api/activities.
type SubmitActivityForm struct {
	Type        string   `form:"type" validate:"required"`
	Category    string   `form:"category" validate:"required"`
	Description string   `form:"description"`
	Points      int      `form:"points"`
	CO2Saved    float64  `form:"co2Saved"`
	EventTime   string   `form:"eventTime"`
	Location    string   `form:"location"`
	Latitude    *float64 `form:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `form:"longitude" validate:"omitempty,longitude"`
	GeoAccuracy *float64 `form:"geoAccuracy" validate:"omitempty,gte=0"`
	Visibility  string   `form:"visibility" validate:"omitempty,oneof=public community private"`
}

// VerificationResult is the AI portion of a submit or analyze response.
type VerificationResult struct {
	Score      int     `json:"score"`
	Label      string  `json:"label"`
	Matches    bool    `json:"matches"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type SubmitActivityResponse struct {
	Activity           Activity             `json:"activity"`
	GeoBonus           int                  `json:"geoBonus"`
	AIVerification     VerificationResult   `json:"aiVerification"`
	ChallengeCompleted *ChallengeCompletion `json:"challengeCompleted"`
	Profile            *Profile             `json:"profile,omitempty"`
}

type ReviewTicketRequest struct {
	Action    string `json:"action" validate:"required,oneof=approve reject"`
	NewPoints *int   `json:"newPoints" validate:"omitempty,gte=0"`
	Notes     string `json:"notes"`
}

type CompleteChallengeRequest struct {
	ActivityID    string  `json:"activityId"`
	EvidenceValue float64 `json:"evidenceValue" validate:"gte=0"`
	EvidenceUnit  string  `json:"evidenceUnit"`
}

type RedeemRequest struct {
	RewardID string `json:"rewardId" validate:"required"`
	Points   int    `json:"points" validate:"required,gt=0"`
}

// ProfileStats summarises a user's progress.
type ProfileStats struct {
	TotalPoints     int     `json:"totalPoints"`
	TotalActivities int     `json:"totalActivities"`
	CO2Saved        float64 `json:"co2Saved"`
	StreakDays      int     `json:"streakDays"`
}

// ForestProgress renders points as trees: one tree per 10 points.
type ForestProgress struct {
	Trees          int     `json:"trees"`
	ProgressToNext float64 `json:"progressToNext"`
	PointsToNext   int     `json:"pointsToNext"`
}

type Profile struct {
	User             User           `json:"user"`
	Stats            ProfileStats   `json:"stats"`
	Forest           ForestProgress `json:"forest"`
	RecentActivities []Activity     `json:"recentActivities"`
	RecentLedger     []LedgerEntry  `json:"recentLedger"`
}

type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Points     int     `json:"points"`
	CO2Saved   float64 `json:"co2_saved"`
	Activities int     `json:"activities"`
}

type SearchResult struct {
	User       User       `json:"user"`
	Activities []Activity `json:"activities"`
}
