package challenges

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/greenquest/internal/models"
)

// Seeder produces the challenges for one calendar date. It must be
// deterministic: the same date always yields the same ids, so a second
// seeding attempt is a no-op.
type Seeder interface {
	ChallengesFor(date string) ([]models.DailyChallenge, error)
}

// Template is a challenge waiting for a date.
type Template struct {
	Title       string
	Description string
	Category    string
	TargetValue float64
	TargetUnit  string
	BonusPoints int
}

// DefaultTemplates is the rotation the catalog seeder draws from.
// Categories are keys of the verification catalog.
var DefaultTemplates = []Template{
	{"Car-free commute", "Cycle, walk or take public transport instead of driving.", "transport", 1, "trip", 15},
	{"Five kilometre ride", "Cover 5 km by bike.", "transport", 5, "km", 25},
	{"Bring your own bag", "Refuse a single-use bag at the shop.", "plastic", 1, "bag", 10},
	{"Refill, don't rebuy", "Use a reusable bottle all day.", "plastic", 1, "bottle", 10},
	{"Lights out hour", "Switch off non-essential power for an hour.", "energy", 1, "hour", 15},
	{"Read the meter", "Show a bill or meter reading with reduced usage.", "energy", 1, "bill", 20},
	{"Short shower", "Keep your shower under five minutes.", "water", 5, "minutes", 10},
	{"Fix the drip", "Repair a leaking tap or reuse grey water.", "water", 1, "fix", 15},
	{"Plant something", "Plant a tree or sapling.", "tree", 1, "tree", 30},
	{"Green corner", "Plant and photograph a sapling in your neighbourhood.", "tree", 1, "sapling", 25},
	{"Show up", "Attend a clean-up drive or eco workshop.", "event", 1, "event", 30},
	{"Bring a friend", "Bring someone along to an environmental event.", "event", 2, "people", 35},
}

// PerDay is how many challenges the catalog seeder creates for each date.
const PerDay = 3

var challengeNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("greenquest.daily-challenges"))

// CatalogSeeder rotates through a fixed template list by day of year.
type CatalogSeeder struct {
	templates []Template
	perDay    int
}

// NewCatalogSeeder returns a seeder over templates; perDay is capped at
// len(templates) so one date never repeats a template.
func NewCatalogSeeder(templates []Template, perDay int) *CatalogSeeder {
	if perDay > len(templates) {
		perDay = len(templates)
	}
	return &CatalogSeeder{templates: templates, perDay: perDay}
}

// DefaultSeeder seeds PerDay challenges from DefaultTemplates.
func DefaultSeeder() *CatalogSeeder {
	return NewCatalogSeeder(DefaultTemplates, PerDay)
}

func (s *CatalogSeeder) ChallengesFor(date string) ([]models.DailyChallenge, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("challenge date %q: %w", date, err)
	}
	if s.perDay == 0 {
		return nil, nil
	}

	start := day.YearDay() * s.perDay
	out := make([]models.DailyChallenge, 0, s.perDay)
	for slot := 0; slot < s.perDay; slot++ {
		t := s.templates[(start+slot)%len(s.templates)]
		out = append(out, models.DailyChallenge{
			ID:            ChallengeID(date, slot),
			Title:         t.Title,
			Description:   t.Description,
			Category:      t.Category,
			TargetValue:   t.TargetValue,
			TargetUnit:    t.TargetUnit,
			BonusPoints:   t.BonusPoints,
			ChallengeDate: date,
			IsActive:      true,
		})
	}
	return out, nil
}

// ChallengeID derives the stable id of a date's slot.
func ChallengeID(date string, slot int) string {
	return uuid.NewSHA1(challengeNamespace, []byte(date+"/"+strconv.Itoa(slot))).String()
}
