package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db?_pragma=foreign_keys(1)"

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	tables := []string{
		"users", "activities", "tickets", "ticket_evidence", "daily_challenges",
		"challenge_completions", "redemptions", "point_ledger",
	}
	for _, tbl := range tables {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", tbl, err)
		}
	}

	// Running Open again on the same file should be idempotent (migrations are IF NOT EXISTS)
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	db2.Close()
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	d, err := Open("file:testwithtx?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	defer d.Close()

	boom := errors.New("boom")
	err = WithTx(context.Background(), d, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO users (id, email, password_hash, name) VALUES ('u1', 'a@b.c', 'x', 'A')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error: got %v, want boom", err)
	}

	var count int
	d.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	if count != 0 {
		t.Errorf("expected rollback, found %d users", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	d, err := Open("file:testunique?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	defer d.Close()

	insert := `INSERT INTO users (id, email, password_hash, name) VALUES (?, 'dup@b.c', 'x', 'A')`
	if _, err := d.Exec(insert, "u1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err = d.Exec(insert, "u2")
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(nil) {
		t.Error("nil error reported as unique violation")
	}
}
