package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Elizabethomito/greenquest/internal/db/dbtest"
	"github.com/Elizabethomito/greenquest/internal/models"
)

func TestBalance_FoldsEntries(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Sarah", "user")

	balance, err := Balance(ctx, d, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = Append(ctx, d, userID, 25, models.CauseActivityAward, "a1")
	require.NoError(t, err)
	_, err = Append(ctx, d, userID, 15, models.CauseChallengeBonus, "c1")
	require.NoError(t, err)
	_, err = Append(ctx, d, userID, -10, models.CauseTicketAdjustment, "t1")
	require.NoError(t, err)

	balance, err = Balance(ctx, d, userID)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestAppend_CauseCreditsOnce(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Alex", "user")

	_, err := Append(ctx, d, userID, 25, models.CauseActivityAward, "a1")
	require.NoError(t, err)
	_, err = Append(ctx, d, userID, 25, models.CauseActivityAward, "a1")
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	balance, err := Balance(ctx, d, userID)
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
}

func TestDebit(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Alex", "user")
	_, err := Append(ctx, d, userID, 100, models.CauseActivityAward, "a1")
	require.NoError(t, err)

	t.Run("Insufficient", func(t *testing.T) {
		_, err := Debit(ctx, d, userID, 101, models.CauseRedemption, "r1")
		assert.ErrorIs(t, err, ErrInsufficientPoints)
	})

	t.Run("ExactBalance", func(t *testing.T) {
		entry, err := Debit(ctx, d, userID, 100, models.CauseRedemption, "r2")
		require.NoError(t, err)
		assert.Equal(t, -100, entry.Delta)

		balance, err := Balance(ctx, d, userID)
		require.NoError(t, err)
		assert.Zero(t, balance)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		_, err := Debit(ctx, d, userID, 0, models.CauseRedemption, "r3")
		assert.Error(t, err)
	})
}

func TestAdjust_ClampsAtZero(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Alex", "user")
	_, err := Append(ctx, d, userID, 10, models.CauseActivityAward, "a1")
	require.NoError(t, err)

	entry, err := Adjust(ctx, d, userID, -25, models.CauseTicketAdjustment, "t1")
	require.NoError(t, err)
	assert.Equal(t, -10, entry.Delta)

	balance, err := Balance(ctx, d, userID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestHistory_NewestFirst(t *testing.T) {
	d := dbtest.New(t)
	ctx := context.Background()
	userID := dbtest.SeedUser(t, d, "Alex", "user")
	for _, ref := range []string{"a1", "a2", "a3"} {
		_, err := Append(ctx, d, userID, 5, models.CauseActivityAward, ref)
		require.NoError(t, err)
	}

	entries, err := History(ctx, d, userID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a3", entries[0].RefID)

	all, err := History(ctx, d, userID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
