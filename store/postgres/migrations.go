package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Circulate store.
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
    replacement_amount   BIGINT NOT NULL DEFAULT 0,
    replacement_currency TEXT NOT NULL DEFAULT '',
    risk_tier            TEXT NOT NULL DEFAULT 'low',
    min_level            INT NOT NULL DEFAULT 1,
    available            BOOLEAN NOT NULL DEFAULT TRUE,
    metadata             JSONB NOT NULL DEFAULT '{}',
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    due_at          TIMESTAMPTZ NOT NULL,
    handed_over_at  TIMESTAMPTZ,
    returned_at     TIMESTAMPTZ,
    condition       TEXT NOT NULL DEFAULT '',
    condition_notes TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_reservations_token ON circulate_reservations (handover_token);
CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_reservations_holding
    ON circulate_reservations (item_id) WHERE status IN ('active', 'overdue');
CREATE INDEX IF NOT EXISTS idx_circulate_reservations_borrower ON circulate_reservations (borrower_id, status);
CREATE INDEX IF NOT EXISTS idx_circulate_reservations_due ON circulate_reservations (due_at) WHERE status = 'active';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circulate_reservations`)
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
    expires_at  TIMESTAMPTZ,
    canceled_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    level       INT NOT NULL DEFAULT 1,
    trust_score INT NOT NULL DEFAULT 100 CHECK (trust_score BETWEEN 0 AND 200),
    points      BIGINT NOT NULL DEFAULT 0 CHECK (points >= 0),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS circulate_progress_entries (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES circulate_profiles(user_id),
    event_key   TEXT NOT NULL,
    action      TEXT NOT NULL,
    trust_delta INT NOT NULL DEFAULT 0,
    points      BIGINT NOT NULL DEFAULT 0,
    reason      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_circulate_progress_entries_key ON circulate_progress_entries (event_key);
CREATE INDEX IF NOT EXISTS idx_circulate_progress_entries_user ON circulate_progress_entries (user_id, created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
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
    timeliness     TEXT NOT NULL DEFAULT '',
    was_late       BOOLEAN NOT NULL DEFAULT FALSE,
    multiplier_pct INT NOT NULL DEFAULT 100,
    occurred_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    delivered_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_circulate_events_pending ON circulate_events (occurred_at) WHERE delivered_at IS NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS circulate_events`)
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
    available  BOOLEAN NOT NULL DEFAULT FALSE,
    expires_at TIMESTAMPTZ NOT NULL
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
