package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS battery_readings (
	id                 UUID PRIMARY KEY,
	seq                BIGSERIAL,
	request_id         UUID NOT NULL,
	site_id            INTEGER,
	battery_level      DOUBLE PRECISION,
	operator_id        TEXT,
	serial_number      TEXT,
	reading_timestamp  TIMESTAMPTZ,
	reading_offset     INTEGER,
	received_at        TIMESTAMPTZ NOT NULL,
	validation_status  TEXT NOT NULL,
	rejection_reason   TEXT,
	raw_payload        JSONB
);
CREATE INDEX IF NOT EXISTS idx_battery_readings_valid_ts
	ON battery_readings (validation_status, reading_timestamp);
CREATE INDEX IF NOT EXISTS idx_battery_readings_serial
	ON battery_readings (serial_number);
`

// EnsureSchema creates the readings table if it does not exist
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
	}
	return nil
}
