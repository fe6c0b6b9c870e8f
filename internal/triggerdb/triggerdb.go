// Package triggerdb persists scan runs, per-chunk outcomes, triggers and the
// searched segments in a sqlite database.
package triggerdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/triggers"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// ChunkStatus is the outcome of one analysis chunk.
type ChunkStatus string

const (
	ChunkProcessed ChunkStatus = "processed"
	ChunkDropped   ChunkStatus = "dropped" // trigger rate above the limit
	ChunkFailed    ChunkStatus = "failed"
)

// RunStatus is the state of a scan run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// Run describes one scan over a span of data.
type Run struct {
	ID         string
	Version    string
	ConfigJSON string
	GPSStart   int64
	GPSEnd     int64
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// ChunkRecord is the outcome of one chunk.
type ChunkRecord struct {
	Start        int64
	End          int64
	Status       ChunkStatus
	TriggerCount int
	LoudestSNR   float64
	Elapsed      time.Duration
	Err          string
}

// TriggerQuery selects triggers of a run. Zero bounds are open.
type TriggerQuery struct {
	TimeStart float64
	TimeEnd   float64
	MinSNR    float64
	Limit     int
}

// DB is a trigger database.
type DB struct {
	*sql.DB
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps pragmas.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	monitoring.Debugf(1, "triggerdb: opened %s", path)
	return db, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// StartRun records a new run. An empty ID is replaced by NewRunID; the
// stored run is returned.
func (db *DB) StartRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = NewRunID()
	}
	if r.ConfigJSON == "" {
		r.ConfigJSON = "{}"
	}
	r.Status = RunRunning
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, version, config_json, gps_start, gps_end, status, started_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Version, r.ConfigJSON, r.GPSStart, r.GPSEnd, string(r.Status), unixSeconds(r.StartedAt))
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return r, nil
}

// FinishRun marks a run complete or failed.
func (db *DB) FinishRun(ctx context.Context, runID string, status RunStatus, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_unix = ? WHERE run_id = ?`,
		string(status), unixSeconds(at), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads one run.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r        Run
		status   string
		started  float64
		finished sql.NullFloat64
	)
	err := db.QueryRowContext(ctx,
		`SELECT run_id, version, config_json, gps_start, gps_end, status, started_unix, finished_unix
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&r.ID, &r.Version, &r.ConfigJSON, &r.GPSStart, &r.GPSEnd, &status, &started, &finished)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		r.FinishedAt = fromUnixSeconds(finished.Float64)
	}
	return r, nil
}

// RecordChunk stores the outcome of one chunk, replacing an earlier record
// for the same chunk start.
func (db *DB) RecordChunk(ctx context.Context, runID string, c ChunkRecord) error {
	var errText sql.NullString
	if c.Err != "" {
		errText = sql.NullString{String: c.Err, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO chunks (run_id, chunk_start, chunk_end, status, trigger_count, loudest_snr, elapsed_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, chunk_start) DO UPDATE SET
		   chunk_end=excluded.chunk_end, status=excluded.status, trigger_count=excluded.trigger_count,
		   loudest_snr=excluded.loudest_snr, elapsed_ms=excluded.elapsed_ms, error=excluded.error`,
		runID, c.Start, c.End, string(c.Status), c.TriggerCount, c.LoudestSNR,
		float64(c.Elapsed)/float64(time.Millisecond), errText)
	if err != nil {
		return fmt.Errorf("failed to record chunk %d: %w", c.Start, err)
	}
	return nil
}

// Chunks returns the chunk records of a run ordered by start time.
func (db *DB) Chunks(ctx context.Context, runID string) ([]ChunkRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT chunk_start, chunk_end, status, trigger_count, loudest_snr, elapsed_ms, error
		 FROM chunks WHERE run_id = ? ORDER BY chunk_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRecord
	for rows.Next() {
		var (
			c       ChunkRecord
			status  string
			ms      float64
			errText sql.NullString
		)
		if err := rows.Scan(&c.Start, &c.End, &status, &c.TriggerCount, &c.LoudestSNR, &ms, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Status = ChunkStatus(status)
		c.Elapsed = time.Duration(ms * float64(time.Millisecond))
		c.Err = errText.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveChunkOutput stores the triggers of a chunk and the segments it
// searched in one transaction, so a run never holds one without the other.
func (db *DB) SaveChunkOutput(ctx context.Context, runID string, trigs []triggers.Trigger, segs *segments.List) error {
	if len(trigs) == 0 && (segs == nil || segs.Len() == 0) {
		return nil
	}
	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTriggers(ctx, tx, runID, trigs); err != nil {
		return err
	}
	if err := insertSegments(ctx, tx, runID, segs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk output: %w", err)
	}
	return nil
}

func insertTriggers(ctx context.Context, tx *sql.Tx, runID string, trigs []triggers.Trigger) error {
	if len(trigs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triggers (run_id, time, frequency, time_start, time_end,
		                      frequency_start, frequency_end, q, snr, amplitude, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare trigger insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trigs {
		if _, err := stmt.ExecContext(ctx, runID, t.Time, t.Frequency, t.TimeStart, t.TimeEnd,
			t.FrequencyStart, t.FrequencyEnd, t.Q, t.SNR, t.Amplitude, t.Phase); err != nil {
			return fmt.Errorf("failed to insert trigger at %.4f: %w", t.Time, err)
		}
	}
	return nil
}

func insertSegments(ctx context.Context, tx *sql.Tx, runID string, segs *segments.List) error {
	if segs == nil || segs.Len() == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (run_id, seg_start, seg_end) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range segs.Segments() {
		if _, err := stmt.ExecContext(ctx, runID, s.Start, s.End); err != nil {
			return fmt.Errorf("failed to insert segment %s: %w", s, err)
		}
	}
	return nil
}

// Triggers returns the triggers of a run matching q, ordered by start time.
func (db *DB) Triggers(ctx context.Context, runID string, q TriggerQuery) ([]triggers.Trigger, error) {
	query := `SELECT time, frequency, time_start, time_end, frequency_start, frequency_end,
	                 q, snr, amplitude, phase
	          FROM triggers WHERE run_id = ? AND snr >= ?`
	args := []interface{}{runID, q.MinSNR}
	if q.TimeEnd > 0 {
		query += ` AND time_start < ?`
		args = append(args, q.TimeEnd)
	}
	if q.TimeStart > 0 {
		query += ` AND time_end > ?`
		args = append(args, q.TimeStart)
	}
	query += ` ORDER BY time_start, trigger_id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var out []triggers.Trigger
	for rows.Next() {
		var t triggers.Trigger
		if err := rows.Scan(&t.Time, &t.Frequency, &t.TimeStart, &t.TimeEnd, &t.FrequencyStart,
			&t.FrequencyEnd, &t.Q, &t.SNR, &t.Amplitude, &t.Phase); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Segments returns the merged searched segments of a run.
func (db *DB) Segments(ctx context.Context, runID string) (*segments.List, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT seg_start, seg_end FROM segments WHERE run_id = ? ORDER BY seg_start`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	out := &segments.List{}
	for rows.Next() {
		var start, end float64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if err := out.Add(start, end); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}
