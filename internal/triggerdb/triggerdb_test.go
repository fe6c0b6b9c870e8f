package triggerdb

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/triggers"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "triggers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func startTestRun(t *testing.T, db *DB) Run {
	t.Helper()
	r, err := db.StartRun(context.Background(), Run{
		Version:   "test",
		GPSStart:  1000,
		GPSEnd:    1100,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	return r
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_triggers_run_time'`).Scan(&n))
	assert.Equal(t, 1, n)

	// Down one step drops the indexes, up restores them.
	require.NoError(t, db.MigrateDown(MigrationsFS()))
	version, _, err = db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	require.NoError(t, db.MigrateUp(MigrationsFS()))
	require.NoError(t, db.MigrateUp(MigrationsFS()), "no change is not an error")
}

func TestMigrateVersion_ReadsDatabase(t *testing.T) {
	db := openTestDB(t)
	short := fstest.MapFS{
		"000001_init.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE IF NOT EXISTS t1 (id INTEGER PRIMARY KEY);")},
		"000001_init.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE IF EXISTS t1;")},
	}
	// The embedded schema is at version 2; a shorter source still reports it.
	version, _, err := db.MigrateVersion(short)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := startTestRun(t, db)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, RunRunning, r.Status)

	got, err := db.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.StartedAt, got.StartedAt)
	assert.True(t, got.FinishedAt.IsZero())
	assert.Equal(t, "{}", got.ConfigJSON)

	done := r.StartedAt.Add(90 * time.Second)
	require.NoError(t, db.FinishRun(ctx, r.ID, RunComplete, done))
	got, err = db.GetRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, RunComplete, got.Status)
	assert.Equal(t, done, got.FinishedAt)

	_, err = db.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, db.FinishRun(ctx, "nope", RunFailed, done), ErrRunNotFound)

	_, err = db.StartRun(ctx, Run{ID: r.ID})
	assert.Error(t, err, "duplicate run IDs are rejected")
}

func TestChunks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := startTestRun(t, db)

	recs := []ChunkRecord{
		{Start: 1032, End: 1096, Status: ChunkDropped, TriggerCount: 9000, LoudestSNR: 40, Elapsed: 250 * time.Millisecond},
		{Start: 1000, End: 1064, Status: ChunkProcessed, TriggerCount: 12, LoudestSNR: 8.5, Elapsed: 120 * time.Millisecond},
	}
	for _, c := range recs {
		require.NoError(t, db.RecordChunk(ctx, r.ID, c))
	}
	// Re-recording a chunk replaces it.
	recs[0] = ChunkRecord{Start: 1032, End: 1096, Status: ChunkFailed, Err: "load failed"}
	require.NoError(t, db.RecordChunk(ctx, r.ID, recs[0]))

	got, err := db.Chunks(ctx, r.ID)
	require.NoError(t, err)
	want := []ChunkRecord{recs[1], recs[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, db.RecordChunk(ctx, "unknown-run", recs[1]), "foreign key enforced")
}

func TestTriggers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := startTestRun(t, db)

	trigs := []triggers.Trigger{
		{Time: 1010, TimeStart: 1009.9, TimeEnd: 1010.1, Frequency: 100, FrequencyStart: 90, FrequencyEnd: 110, Q: 8, SNR: 12, Amplitude: 1e-21, Phase: 0.5},
		{Time: 1002, TimeStart: 1001.5, TimeEnd: 1002.5, Frequency: 40, FrequencyStart: 35, FrequencyEnd: 45, Q: 4, SNR: 6},
		{Time: 1050, TimeStart: 1049, TimeEnd: 1051, Frequency: 60, FrequencyStart: 50, FrequencyEnd: 70, Q: 16, SNR: 30},
	}
	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, trigs, nil))
	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, nil, nil))

	all, err := db.Triggers(ctx, r.ID, TriggerQuery{})
	require.NoError(t, err)
	if diff := cmp.Diff([]triggers.Trigger{trigs[1], trigs[0], trigs[2]}, all); diff != "" {
		t.Errorf("triggers mismatch (-want +got):\n%s", diff)
	}

	loud, err := db.Triggers(ctx, r.ID, TriggerQuery{MinSNR: 10})
	require.NoError(t, err)
	assert.Len(t, loud, 2)

	window, err := db.Triggers(ctx, r.ID, TriggerQuery{TimeStart: 1002.4, TimeEnd: 1020})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, 1002.0, window[0].Time)

	first, err := db.Triggers(ctx, r.ID, TriggerQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1002.0, first[0].Time)
}

func TestSegments(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := startTestRun(t, db)

	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, nil, segments.MustList(segments.Segment{Start: 1000, End: 1032})))
	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, nil, segments.MustList(
		segments.Segment{Start: 1032, End: 1064},
		segments.Segment{Start: 1080, End: 1090},
	)))
	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, nil, nil))

	got, err := db.Segments(ctx, r.ID)
	require.NoError(t, err)
	want := segments.MustList(
		segments.Segment{Start: 1000, End: 1064},
		segments.Segment{Start: 1080, End: 1090},
	)
	assert.Equal(t, want.Segments(), got.Segments())
}

func TestSaveChunkOutput_Atomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	r := startTestRun(t, db)

	trigs := []triggers.Trigger{{Time: 1010, TimeStart: 1009.9, TimeEnd: 1010.1, Frequency: 100, Q: 8, SNR: 12}}
	segs := segments.MustList(segments.Segment{Start: 1001, End: 1007})
	require.NoError(t, db.SaveChunkOutput(ctx, r.ID, trigs, segs))

	// A failing segment write must roll the triggers back with it.
	_, err := db.Exec(`DROP TABLE segments`)
	require.NoError(t, err)
	assert.Error(t, db.SaveChunkOutput(ctx, r.ID, []triggers.Trigger{{Time: 1012, TimeStart: 1011, TimeEnd: 1013, SNR: 9}}, segs))

	got, err := db.Triggers(ctx, r.ID, TriggerQuery{})
	require.NoError(t, err)
	if diff := cmp.Diff(trigs, got); diff != "" {
		t.Errorf("triggers mismatch (-want +got):\n%s", diff)
	}
}
