// Package dbtest provides throwaway in-memory databases for tests in other
// packages.
package dbtest

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/Elizabethomito/greenquest/internal/db"
)

var counter uint64

// New creates a uniquely named shared-cache in-memory database with the full
// schema applied. It is closed when the test ends.
//
// Each test gets its own name so connections in the pool all see the same
// tables without interfering across tests.
func New(t testing.TB) *sql.DB {
	t.Helper()
	id := atomic.AddUint64(&counter, 1)
	dsn := fmt.Sprintf("file:dbtest%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", id)
	d, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("dbtest.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// SeedUser inserts a user with the given role and returns its ID.
func SeedUser(t testing.TB, d *sql.DB, name, role string) string {
	t.Helper()
	id := fmt.Sprintf("user-%d", atomic.AddUint64(&counter, 1))
	_, err := d.Exec(
		`INSERT INTO users (id, email, password_hash, name, role) VALUES (?, ?, ?, ?, ?)`,
		id, id+"@test.com", "hash", name, role,
	)
	if err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	return id
}

// SeedActivity inserts an activity owned by userID and returns its ID.
func SeedActivity(t testing.TB, d *sql.DB, userID, category string, points, aiScore int) string {
	t.Helper()
	id := fmt.Sprintf("activity-%d", atomic.AddUint64(&counter, 1))
	_, err := d.Exec(
		`INSERT INTO activities (id, user_id, type, category, points, status, ai_score, event_time)
		 VALUES (?, ?, 'Cycling', ?, ?, 'pending', ?, CURRENT_TIMESTAMP)`,
		id, userID, category, points, aiScore,
	)
	if err != nil {
		t.Fatalf("SeedActivity: %v", err)
	}
	return id
}
