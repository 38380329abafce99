package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Circulate store (SQLite).
var Migrations = migrate.NewGroup("circulate")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_circulate_items",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_items (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    category             TEXT NOT NULL DEFAULT '',
    replacement_amount   INTEGER NOT NULL DEFAULT 0,
    replacement_currency TEXT NOT NULL DEFAULT '',
    risk_tier            TEXT NOT NULL DEFAULT 'low',
    min_level            INTEGER NOT NULL DEFAULT 1,
    available            INTEGER NOT NULL DEFAULT 1,
    metadata             TEXT NOT NULL DEFAULT '{}',
    created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_circulate_items_category ON circulate_items (category);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circulate_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circulate_reservations",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_reservations (
    id              TEXT PRIMARY KEY,
    item_id         TEXT NOT NULL REFERENCES circulate_items(id),
    borrower_id     TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'active',
    handover_token  TEXT NOT NULL,
    due_at          DATETIME NOT NULL,
    handed_over_at  DATETIME,
    returned_at     DATETIME,
    condition       TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_reservations_token ON circulate_reservations (handover_token);
CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_reservations_holding
    ON circulate_reservations (item_id) WHERE status IN ('active', 'overdue');
CREATE INDEX IF NOT EXISTS idx_circulate_reservations_borrower ON circulate_reservations (borrower_id, status);
CREATE INDEX IF NOT EXISTS idx_circulate_reservations_due ON circulate_reservations (status, due_at);

CREATE TRIGGER IF NOT EXISTS trg_circulate_reservations_hold
AFTER INSERT ON circulate_reservations
BEGIN
    UPDATE circulate_items SET available = 0, updated_at = NEW.created_at WHERE id = NEW.item_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_circulate_reservations_hold;
DROP TABLE IF EXISTS circulate_reservations;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circulate_subscriptions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_subscriptions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    tier        TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'active',
    expires_at  DATETIME,
    canceled_at DATETIME,
    created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_circulate_subscriptions_user ON circulate_subscriptions (user_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circulate_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circulate_progression",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_profiles (
    user_id     TEXT PRIMARY KEY,
    level       INTEGER NOT NULL DEFAULT 1,
    trust_score INTEGER NOT NULL DEFAULT 100,
    points      INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS circulate_progress_entries (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES circulate_profiles(user_id),
    event_key   TEXT NOT NULL,
    action      TEXT NOT NULL,
    trust_delta INTEGER NOT NULL DEFAULT 0,
    points      INTEGER NOT NULL DEFAULT 0,
    reason      TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_progress_entries_key ON circulate_progress_entries (event_key);
CREATE INDEX IF NOT EXISTS idx_circulate_progress_entries_user ON circulate_progress_entries (user_id, created_at);

CREATE TRIGGER IF NOT EXISTS trg_circulate_progress_entries_apply
AFTER INSERT ON circulate_progress_entries
BEGIN
    UPDATE circulate_profiles
    SET trust_score = MIN(MAX(trust_score + NEW.trust_delta, 0), 200),
        points      = MAX(points + NEW.points, 0),
        updated_at  = NEW.created_at
    WHERE user_id = NEW.user_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_circulate_progress_entries_apply;
DROP TABLE IF EXISTS circulate_progress_entries;
DROP TABLE IF EXISTS circulate_profiles;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circulate_events",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_events (
    id             TEXT PRIMARY KEY,
    type           TEXT NOT NULL,
    reservation_id TEXT NOT NULL,
    item_id        TEXT NOT NULL,
    user_id        TEXT NOT NULL,
    condition      TEXT NOT NULL DEFAULT '',
    notes          TEXT NOT NULL DEFAULT '',
    timeliness     TEXT NOT NULL DEFAULT '',
    was_late       INTEGER NOT NULL DEFAULT 0,
    multiplier_pct INTEGER NOT NULL DEFAULT 100,
    occurred_at    DATETIME NOT NULL DEFAULT (datetime('now')),
    delivered_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_circulate_events_pending ON circulate_events (delivered_at, occurred_at);

CREATE TRIGGER IF NOT EXISTS trg_circulate_events_return
AFTER INSERT ON circulate_events
WHEN NEW.type = 'item.returned'
BEGIN
    UPDATE circulate_reservations
    SET status          = 'returned',
        returned_at     = NEW.occurred_at,
        condition       = NEW.condition,
        condition_notes = NEW.notes,
        updated_at      = NEW.occurred_at
    WHERE id = NEW.reservation_id;
    UPDATE circulate_items SET available = 1, updated_at = NEW.occurred_at WHERE id = NEW.item_id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS trg_circulate_events_return;
DROP TABLE IF EXISTS circulate_events;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_circulate_availability_cache",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS circulate_availability_cache (
    item_id    TEXT PRIMARY KEY,
    available  INTEGER NOT NULL DEFAULT 0,
    expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_circulate_availability_cache_expires ON circulate_availability_cache (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circulate_availability_cache`)
				return err
			},
		},
	)
}
