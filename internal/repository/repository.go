package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/battery-drain-worker/internal/analysis"
	"github.com/septivank/battery-drain-worker/internal/db"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

// Filter narrows a reading query; zero values mean no constraint
type Filter struct {
	SiteID     int
	OperatorID string
	Serial     string
	Start      *time.Time
	End        *time.Time
	MinLevel   *float64
	MaxLevel   *float64
	Limit      int
	Offset     int
	// Newest applies Limit to the most recently ingested rows; results stay in ingestion order
	Newest bool
}

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BeginTx starts a new transaction
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// InsertReadingTx inserts a battery reading within a transaction
func (r *Repository) InsertReadingTx(ctx context.Context, tx pgx.Tx, reading *db.BatteryReading) error {
	query := `
		INSERT INTO battery_readings (
			id, request_id, site_id, battery_level, operator_id, serial_number,
			reading_timestamp, reading_offset, received_at, validation_status,
			rejection_reason, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.Exec(ctx, query,
		reading.ID,
		reading.RequestID,
		reading.SiteID,
		reading.BatteryLevel,
		reading.OperatorID,
		reading.SerialNumber,
		reading.ReadingTimestamp,
		reading.ReadingOffset,
		reading.ReceivedAt,
		reading.ValidationStatus,
		reading.RejectionReason,
		reading.RawPayload,
	)

	if err != nil {
		return fmt.Errorf("failed to insert battery reading: %w", err)
	}

	return nil
}

// InsertBatch stores all rows of one ingest message atomically
func (r *Repository) InsertBatch(ctx context.Context, rows []db.BatteryReading) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range rows {
		if err := r.InsertReadingTx(ctx, tx, &rows[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListReadings returns valid readings matching the filter in ingestion order
func (r *Repository) ListReadings(ctx context.Context, f Filter) ([]analysis.Reading, error) {
	query, args := buildListQuery(f)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []analysis.Reading{}
	for rows.Next() {
		var (
			reading analysis.Reading
			ts      time.Time
			offset  int
		)
		if err := rows.Scan(
			&reading.SiteID,
			&reading.Level,
			&reading.OperatorID,
			&reading.Serial,
			&ts,
			&offset,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.Timestamp = RestoreOffset(ts, offset)
		readings = append(readings, reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if f.Newest {
		slices.Reverse(readings)
	}
	return readings, nil
}

// CountReadings counts valid readings matching the filter, ignoring limit and offset
func (r *Repository) CountReadings(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f)

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM battery_readings `+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return total, nil
}

// AllValidReadings returns every valid reading in ingestion order.
// A positive limit keeps only the newest limit readings.
func (r *Repository) AllValidReadings(ctx context.Context, limit int) ([]analysis.Reading, error) {
	return r.ListReadings(ctx, Filter{Limit: limit, Newest: true})
}

func buildListQuery(f Filter) (string, []any) {
	where, args := buildWhere(f)

	order := "seq"
	if f.Newest {
		order = "seq DESC"
	}

	query := `
		SELECT site_id, battery_level, operator_id, serial_number, reading_timestamp, reading_offset
		FROM battery_readings
		` + where + `
		ORDER BY ` + order

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func buildWhere(f Filter) (string, []any) {
	conditions := []string{"validation_status = $1"}
	args := []any{db.StatusValid}

	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if f.SiteID != 0 {
		add("site_id = $%d", f.SiteID)
	}
	if f.OperatorID != "" {
		add("operator_id = $%d", f.OperatorID)
	}
	if f.Serial != "" {
		add("serial_number = $%d", f.Serial)
	}
	if f.Start != nil {
		add("reading_timestamp >= $%d", *f.Start)
	}
	if f.End != nil {
		add("reading_timestamp <= $%d", *f.End)
	}
	if f.MinLevel != nil {
		add("battery_level >= $%d", *f.MinLevel)
	}
	if f.MaxLevel != nil {
		add("battery_level <= $%d", *f.MaxLevel)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// OffsetOf returns the UTC offset of t in seconds
func OffsetOf(t time.Time) int {
	_, offset := t.Zone()
	return offset
}

// RestoreOffset re-applies the offset a reading was reported with
func RestoreOffset(t time.Time, offsetSeconds int) time.Time {
	if offsetSeconds == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offsetSeconds))
}
