package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id            BIGSERIAL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		owner_user_id BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id       BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id),
		name     VARCHAR(255) NOT NULL,
		user_id  BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_event ON participants(event_id)`,
	`CREATE TABLE IF NOT EXISTS participant_groups (
		id       BIGSERIAL PRIMARY KEY,
		event_id BIGINT NOT NULL REFERENCES events(id),
		name     VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS participant_group_members (
		group_id       BIGINT NOT NULL REFERENCES participant_groups(id),
		participant_id BIGINT NOT NULL REFERENCES participants(id),
		PRIMARY KEY (group_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id          BIGSERIAL PRIMARY KEY,
		event_id    BIGINT NOT NULL REFERENCES events(id),
		description VARCHAR(255) NOT NULL,
		amount      NUMERIC(14,2) NOT NULL,
		payer_id    BIGINT REFERENCES participants(id),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_event ON expenses(event_id)`,
	`CREATE TABLE IF NOT EXISTS expense_shares (
		expense_id     BIGINT NOT NULL REFERENCES expenses(id),
		participant_id BIGINT NOT NULL REFERENCES participants(id),
		amount         NUMERIC(14,2) NOT NULL,
		PRIMARY KEY (expense_id, participant_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                          UUID PRIMARY KEY,
		event_id                    BIGINT NOT NULL REFERENCES events(id),
		kind                        VARCHAR(20) NOT NULL,
		pair_key                    VARCHAR(64) NOT NULL,
		from_participant_id         BIGINT,
		to_participant_id           BIGINT,
		from_group                  VARCHAR(32),
		to_group                    VARCHAR(32),
		suggestion_amount           NUMERIC(14,2) NOT NULL,
		suggestion_index            INT NOT NULL,
		paid_by_participant_id      BIGINT NOT NULL REFERENCES participants(id),
		amount_paid                 NUMERIC(14,2) NOT NULL,
		paid_at                     TIMESTAMPTZ NOT NULL,
		confirmed_by_participant_id BIGINT REFERENCES participants(id),
		confirmed_at                TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_suggestion
		ON payments(event_id, kind, pair_key, suggestion_amount)`,
}

// Migrate creates the tables the repositories rely on.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
