package streak

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/greenquest/internal/db/dbtest"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name      string
		last      string
		current   int
		today     string
		want      int
		increased bool
	}{
		{"FirstLogin", "", 0, "2024-03-10", 1, true},
		{"SameDay", "2024-03-10", 4, "2024-03-10", 4, false},
		{"NextDay", "2024-03-09", 4, "2024-03-10", 5, true},
		{"MonthBoundary", "2024-02-29", 2, "2024-03-01", 3, true},
		{"YearBoundary", "2023-12-31", 7, "2024-01-01", 8, true},
		{"GapResets", "2024-03-07", 9, "2024-03-10", 1, true},
		{"FutureDateResets", "2024-03-12", 3, "2024-03-10", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.last, tt.current, tt.today)
			assert.Equal(t, tt.want, got.Streak)
			assert.Equal(t, tt.increased, got.Increased)
			assert.Equal(t, tt.today, got.LastLoginDate)
		})
	}
}

func TestRecordLogin(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Sarah", "user")
	tr := NewTracker(d)

	day := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	res, err := tr.RecordLogin(ctx, userID, day)
	require.NoError(t, err)
	assert.Equal(t, Result{Streak: 1, Increased: true, LastLoginDate: "2024-03-10"}, res)

	// later the same day
	res, err = tr.RecordLogin(ctx, userID, day.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.False(t, res.Increased)

	res, err = tr.RecordLogin(ctx, userID, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.True(t, res.Increased)

	res, err = tr.RecordLogin(ctx, userID, day.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)

	var stored int
	var last string
	require.NoError(t, d.QueryRow(`SELECT current_streak, last_login_date FROM users WHERE id = ?`, userID).Scan(&stored, &last))
	assert.Equal(t, 1, stored)
	assert.Equal(t, "2024-03-14", last)
}

func TestRecordLogin_UsesUTCDate(t *testing.T) {
	d := dbtest.New(t)
	userID := dbtest.SeedUser(t, d, "Alex", "user")
	tr := NewTracker(d)

	nairobi := time.FixedZone("EAT", 3*60*60)
	// 01:00 on the 11th in Nairobi is still the 10th in UTC
	res, err := tr.RecordLogin(context.Background(), userID, time.Date(2024, 3, 11, 1, 0, 0, 0, nairobi))
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", res.LastLoginDate)
}

func TestRecordLogin_UnknownUser(t *testing.T) {
	d := dbtest.New(t)
	_, err := NewTracker(d).RecordLogin(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, ErrUserNotFound)
}
