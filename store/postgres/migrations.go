package postgres

import "fmt"

// migrations returns the ordered schema statements for the given
// namespace. Statements are idempotent so Migrate may run at every
// startup.
func migrations(schema string) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.oban_jobs (
				id           TEXT PRIMARY KEY,
				queue        TEXT NOT NULL DEFAULT 'default',
				worker       TEXT NOT NULL,
				args         JSONB NOT NULL DEFAULT '{}',
				state        TEXT NOT NULL DEFAULT 'available',
				priority     INT NOT NULL DEFAULT 0,
				tags         TEXT[] NOT NULL DEFAULT '{}',
				attempt      INT NOT NULL DEFAULT 0,
				max_attempts INT NOT NULL DEFAULT 20,
				errors       JSONB NOT NULL DEFAULT '[]',
				attempted_by TEXT[] NOT NULL DEFAULT '{}',
				inserted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				scheduled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				attempted_at TIMESTAMPTZ,
				completed_at TIMESTAMPTZ,
				discarded_at TIMESTAMPTZ,
				CONSTRAINT oban_jobs_state_check CHECK (
					state IN ('scheduled','available','executing','retryable','completed','discarded')
				)
			)`, schema),
		fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS oban_jobs_claim_idx
			ON %s.oban_jobs (state, queue, priority DESC, scheduled_at ASC)`, schema),
	}
}
