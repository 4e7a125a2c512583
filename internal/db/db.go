// Package db handles SQLite initialisation, schema migrations and the small
// transaction helpers shared by the engine packages.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — one write transaction at a time
// ────────────────────────────────────────────────────────────────────
// SQLite allows a single writer. The default DSN asks modernc.org/sqlite
// for _txlock=immediate, so BEGIN takes the write lock up front. A
// read-then-write sequence inside WithTx (check a balance, then debit it)
// therefore cannot interleave with another writer doing the same thing.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite" when this package loads.
	_ "modernc.org/sqlite"
)

// DefaultDSN is used when DATABASE_URL is not set.
const DefaultDSN = "greenquest.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

// Querier is satisfied by both *sql.DB and *sql.Tx, so helpers such as the
// ledger can run inside a caller's transaction or on their own.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: DefaultDSN
//   - Tests:           "file:testXYZ?mode=memory&cache=shared&_pragma=foreign_keys(1)"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("database ready", slog.String("dsn", dsn))
	return db, nil
}

// WithTx runs fn inside a transaction. fn's error rolls the transaction
// back and is returned unchanged so callers can match it with errors.Is.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is a no-op after Commit succeeds

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// migrate runs each DDL statement in the schema individually.
// Both SQLite drivers only execute the first statement of a multi-statement
// Exec, so the schema is split on ";".
func migrate(db *sql.DB) error {
	stmts := strings.Split(schema, ";")
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// schema contains every CREATE TABLE statement for the application.
//
//	users                 — accounts. No points column: the balance is
//	                        SUM(point_ledger.delta).
//
//	activities            — one row per scored submission.
//
//	tickets               — appeals, UNIQUE(activity_id) keeps them 1:1.
//
//	ticket_evidence       — retained evidence images for a ticket.
//
//	daily_challenges      — seeded per date, UNIQUE(challenge_date, slot)
//	                        makes concurrent seeding safe.
//
//	challenge_completions — UNIQUE(challenge_id, user_id, completed_on) is
//	                        the one-completion-per-day rule.
//
//	redemptions           — reward debits.
//
//	point_ledger          — append-only signed deltas. UNIQUE(cause, ref_id)
//	                        means a cause credits at most once.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    name            TEXT NOT NULL,
    role            TEXT NOT NULL DEFAULT 'user' CHECK(role IN ('user','admin')),
    current_streak  INTEGER NOT NULL DEFAULT 0,
    last_login_date TEXT,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS activities (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type         TEXT NOT NULL,
    category     TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    points       INTEGER NOT NULL,
    co2_saved    REAL NOT NULL DEFAULT 0,
    status       TEXT NOT NULL CHECK(status IN ('verified','pending','flagged')),
    ai_score     INTEGER NOT NULL DEFAULT 0,
    ai_label     TEXT NOT NULL DEFAULT '',
    image_path   TEXT,
    location     TEXT NOT NULL DEFAULT '',
    latitude     REAL,
    longitude    REAL,
    geo_accuracy REAL,
    visibility   TEXT NOT NULL DEFAULT 'private'
                     CHECK(visibility IN ('public','community','private')),
    event_time   DATETIME NOT NULL,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tickets (
    id             TEXT PRIMARY KEY,
    activity_id    TEXT NOT NULL UNIQUE REFERENCES activities(id),
    user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    description    TEXT NOT NULL,
    activity_type  TEXT NOT NULL,
    category       TEXT NOT NULL,
    current_points INTEGER NOT NULL,
    ai_score       INTEGER NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending'
                       CHECK(status IN ('pending','approved','rejected')),
    new_points     INTEGER,
    admin_id       TEXT REFERENCES users(id),
    admin_notes    TEXT NOT NULL DEFAULT '',
    resolved_at    DATETIME,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ticket_evidence (
    id         TEXT PRIMARY KEY,
    ticket_id  TEXT NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
    image_path TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS daily_challenges (
    id             TEXT PRIMARY KEY,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    category       TEXT NOT NULL,
    target_value   REAL NOT NULL,
    target_unit    TEXT NOT NULL,
    bonus_points   INTEGER NOT NULL,
    challenge_date TEXT NOT NULL,
    slot           INTEGER NOT NULL,
    is_active      INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (challenge_date, slot)
);

CREATE TABLE IF NOT EXISTS challenge_completions (
    id                  TEXT PRIMARY KEY,
    challenge_id        TEXT NOT NULL REFERENCES daily_challenges(id) ON DELETE CASCADE,
    user_id             TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    activity_id         TEXT REFERENCES activities(id) ON DELETE SET NULL,
    evidence_value      REAL NOT NULL,
    evidence_unit       TEXT NOT NULL,
    bonus_points_earned INTEGER NOT NULL,
    completed_on        TEXT NOT NULL,
    completed_at        DATETIME NOT NULL,
    UNIQUE (challenge_id, user_id, completed_on)
);

CREATE TABLE IF NOT EXISTS redemptions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    reward_id       TEXT NOT NULL,
    points          INTEGER NOT NULL CHECK(points > 0),
    status          TEXT NOT NULL DEFAULT 'completed',
    redemption_code TEXT NOT NULL,
    created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS point_ledger (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    delta      INTEGER NOT NULL,
    cause      TEXT NOT NULL CHECK(cause IN ('activity_award','challenge_bonus','ticket_adjustment','redemption')),
    ref_id     TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (cause, ref_id)
);

CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id);
CREATE INDEX IF NOT EXISTS idx_activities_visibility ON activities(visibility);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_challenges_date ON daily_challenges(challenge_date);
CREATE INDEX IF NOT EXISTS idx_ledger_user ON point_ledger(user_id)
`
