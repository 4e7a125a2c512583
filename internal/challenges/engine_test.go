package challenges

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/greenquest/internal/db/dbtest"
	"github.com/Elizabethomito/greenquest/internal/ledger"
	"github.com/Elizabethomito/greenquest/internal/models"
)

const testDate = "2024-03-10"

// transportOnly seeds a single transport challenge with target 5 km and a
// 25 point bonus, plus an energy challenge.
func transportOnly() Seeder {
	return NewCatalogSeeder([]Template{
		{"Five kilometre ride", "", "Transport", 5, "km", 25},
		{"Lights out hour", "", "energy", 1, "hour", 15},
	}, 2)
}

func newTestEngine(t *testing.T) (*Engine, func() string) {
	t.Helper()
	d := dbtest.New(t)
	e := NewEngine(d, transportOnly(), WithClock(func() time.Time {
		return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	}))
	return e, func() string { return dbtest.SeedUser(t, d, "Sarah", "user") }
}

func TestCatalogSeeder_Deterministic(t *testing.T) {
	s := DefaultSeeder()
	a, err := s.ChallengesFor(testDate)
	require.NoError(t, err)
	b, err := s.ChallengesFor(testDate)
	require.NoError(t, err)
	require.Len(t, a, PerDay)
	assert.Equal(t, a, b)

	seen := map[string]bool{}
	for _, c := range a {
		assert.False(t, seen[c.Title], "template %q repeated on one day", c.Title)
		seen[c.Title] = true
	}

	next, err := s.ChallengesFor("2024-03-11")
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, next[0].ID)

	_, err = s.ChallengesFor("not-a-date")
	assert.Error(t, err)
}

func TestEnsureSeeded_ConcurrentFirstAccess(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.EnsureSeeded(ctx, testDate)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM daily_challenges WHERE challenge_date = ?`, testDate).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestToday(t *testing.T) {
	e, seedUser := newTestEngine(t)
	ctx := context.Background()
	userID := seedUser()

	list, err := e.Today(ctx, userID, e.CurrentDate())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "transport", list[0].Category)
	assert.False(t, list[0].UserCompleted)

	_, err = e.CompleteManually(ctx, userID, list[1].ID, 1, "", "", testDate)
	require.NoError(t, err)

	list, err = e.Today(ctx, userID, testDate)
	require.NoError(t, err)
	assert.True(t, list[1].UserCompleted)
	require.NotNil(t, list[1].UserBonusEarned)
	assert.Equal(t, 15, *list[1].UserBonusEarned)
}

func TestTryAutoComplete_Idempotent(t *testing.T) {
	e, seedUser := newTestEngine(t)
	ctx := context.Background()
	userID := seedUser()
	a1 := dbtest.SeedActivity(t, e.db, userID, "transport", 25, 80)
	a2 := dbtest.SeedActivity(t, e.db, userID, "transport", 25, 80)

	first, err := e.TryAutoComplete(ctx, userID, "Transport", a1, testDate)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 25, first.BonusPointsEarned)
	assert.Equal(t, 5.0, first.EvidenceValue)
	assert.Equal(t, "km", first.EvidenceUnit)

	second, err := e.TryAutoComplete(ctx, userID, "transport", a2, testDate)
	require.NoError(t, err)
	assert.Nil(t, second)

	var count int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM challenge_completions WHERE user_id = ?`, userID).Scan(&count))
	assert.Equal(t, 1, count)

	balance, err := ledger.Balance(ctx, e.db, userID)
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
}

func TestTryAutoComplete_OnePerSubmission(t *testing.T) {
	d := dbtest.New(t)
	e := NewEngine(d, NewCatalogSeeder([]Template{
		{"Car-free commute", "", "transport", 1, "trip", 15},
		{"Five kilometre ride", "", "transport", 5, "km", 25},
	}, 2))
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Sarah", "user")

	var bonuses []int
	for i := 0; i < 2; i++ {
		a := dbtest.SeedActivity(t, d, userID, "transport", 25, 80)
		c, err := e.TryAutoComplete(ctx, userID, "transport", a, testDate)
		require.NoError(t, err)
		require.NotNil(t, c, "submission %d should complete a challenge", i+1)
		bonuses = append(bonuses, c.BonusPointsEarned)

		balance, err := ledger.Balance(ctx, d, userID)
		require.NoError(t, err)
		sum := 0
		for _, b := range bonuses {
			sum += b
		}
		assert.Equal(t, sum, balance, "one bonus per submission")
	}
	assert.ElementsMatch(t, []int{15, 25}, bonuses)

	a := dbtest.SeedActivity(t, d, userID, "transport", 25, 80)
	third, err := e.TryAutoComplete(ctx, userID, "transport", a, testDate)
	require.NoError(t, err)
	assert.Nil(t, third)

	balance, err := ledger.Balance(ctx, d, userID)
	require.NoError(t, err)
	assert.Equal(t, 40, balance)
}

func TestEnsureSeeded_CancelledCallerStillSeeds(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.EnsureSeeded(ctx, testDate))

	var count int
	require.NoError(t, e.db.QueryRow(`SELECT COUNT(*) FROM daily_challenges WHERE challenge_date = ?`, testDate).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestTryAutoComplete_NoMatchingCategory(t *testing.T) {
	e, seedUser := newTestEngine(t)
	userID := seedUser()
	a := dbtest.SeedActivity(t, e.db, userID, "water", 25, 80)

	got, err := e.TryAutoComplete(context.Background(), userID, "water", a, testDate)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCompleteManually(t *testing.T) {
	e, seedUser := newTestEngine(t)
	ctx := context.Background()
	userID := seedUser()
	transportID := ChallengeID(testDate, 0)

	t.Run("NotFound", func(t *testing.T) {
		_, err := e.CompleteManually(ctx, userID, "nope", 10, "km", "", testDate)
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("NotTodays", func(t *testing.T) {
		_, err := e.CompleteManually(ctx, userID, transportID, 10, "km", "", "2024-03-11")
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("TargetNotMet", func(t *testing.T) {
		_, err := e.CompleteManually(ctx, userID, transportID, 4.9, "km", "", testDate)
		assert.ErrorIs(t, err, ErrTargetNotMet)
	})

	t.Run("ForeignActivity", func(t *testing.T) {
		other := seedUser()
		a := dbtest.SeedActivity(t, e.db, other, "transport", 25, 80)
		_, err := e.CompleteManually(ctx, userID, transportID, 5, "km", a, testDate)
		assert.ErrorIs(t, err, ErrActivityNotOwned)
	})

	t.Run("Success", func(t *testing.T) {
		c, err := e.CompleteManually(ctx, userID, transportID, 5, "km", "", testDate)
		require.NoError(t, err)
		assert.Equal(t, 25, c.BonusPointsEarned)
		assert.Nil(t, c.ActivityID)
		assert.Equal(t, testDate, c.CompletedOn)
	})

	t.Run("AlreadyCompletedBeatsTarget", func(t *testing.T) {
		// already-completed is reported even when the new evidence is short
		_, err := e.CompleteManually(ctx, userID, transportID, 1, "km", "", testDate)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
	})

	t.Run("AutoAfterManualStoresNothing", func(t *testing.T) {
		a := dbtest.SeedActivity(t, e.db, userID, "transport", 25, 80)
		got, err := e.TryAutoComplete(ctx, userID, "transport", a, testDate)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	entries, err := ledger.History(ctx, e.db, userID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CauseChallengeBonus, entries[0].Cause)
}
