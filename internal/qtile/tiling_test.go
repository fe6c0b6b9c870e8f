package qtile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/triggers"
)

func testConfig() Config {
	return Config{
		TimeRange:       testRange,
		Overlap:         2,
		QMin:            4,
		QMax:            64,
		FrequencyMin:    32,
		FrequencyMax:    256,
		SampleRate:      testRate,
		Mismatch:        0.2,
		FullMapTimeBins: 256,
	}
}

func newTestTiling(t *testing.T) *Tiling {
	t.Helper()
	tl, err := New(testConfig())
	require.NoError(t, err)
	return tl
}

func TestNew_Planes(t *testing.T) {
	tl := newTestTiling(t)

	qs := ComputeQs(4, 64, 0.2)
	require.Equal(t, len(qs), tl.QN())
	for i, want := range qs {
		q, err := tl.Q(i)
		require.NoError(t, err)
		assert.Equal(t, want, q)
	}

	assert.Equal(t, testRange, tl.TimeRange())
	assert.Equal(t, 2, tl.Overlap())
	assert.Equal(t, testRate, tl.SampleRate())
	assert.Equal(t, testRate*testRange, tl.SampleN())
	assert.Equal(t, 0.2, tl.Mismatch())
	assert.GreaterOrEqual(t, tl.FrequencyMin(), 32.0)
	assert.LessOrEqual(t, tl.FrequencyMax(), 256.0)
	assert.Equal(t, []int{testRange}, tl.PlotTimeWindows())

	total := 0
	for i := range tl.QN() {
		p, err := tl.Plane(i)
		require.NoError(t, err)
		total += p.TileN(0)
	}
	assert.Equal(t, total, tl.TileN(0))
}

func TestNew_ClampsAndErrors(t *testing.T) {
	cfg := testConfig()
	cfg.QMin = 1
	tl, err := New(cfg)
	require.NoError(t, err)
	q, _ := tl.Q(0)
	assert.InDelta(t, math.Sqrt(11), q, 1e-12)

	cfg = testConfig()
	cfg.QMax = 2
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	cfg = testConfig()
	cfg.FullMapTimeBins = -1
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	cfg = testConfig()
	cfg.FrequencyMin = 900
	cfg.FrequencyMax = 1000
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	cfg = testConfig()
	cfg.Overlap = testRange
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestTiling_FullMapIndex(t *testing.T) {
	tl := newTestTiling(t)
	last, err := tl.Plane(tl.QN() - 1)
	require.NoError(t, err)

	n, err := tl.BandN(FullMapIndex)
	require.NoError(t, err)
	assert.Equal(t, last.BandN(), n)

	edges, err := tl.Bands(FullMapIndex)
	require.NoError(t, err)
	assert.Equal(t, last.Bands(), edges)

	b, err := tl.Band(FullMapIndex, 0)
	require.NoError(t, err)
	want, _ := last.Band(0)
	assert.Equal(t, want, b)

	for _, i := range []int{-2, tl.QN()} {
		_, err = tl.BandN(i)
		assert.ErrorIs(t, err, ErrPlaneIndex, "index %d", i)
		_, err = tl.Plane(i)
		assert.ErrorIs(t, err, ErrPlaneIndex)
		_, err = tl.Loudest(i)
		assert.ErrorIs(t, err, ErrPlaneIndex)
	}
	_, err = tl.Q(FullMapIndex)
	assert.ErrorIs(t, err, ErrPlaneIndex, "the full map has no Q")
}

func TestTiling_ProjectInputLength(t *testing.T) {
	tl := newTestTiling(t)
	_, err := tl.Project(make([]complex128, 10))
	assert.ErrorIs(t, err, ErrInputLength)
}

func TestTiling_SaveTriggersNeedsChunk(t *testing.T) {
	tl := newTestTiling(t)
	_, err := tl.SaveTriggers(triggers.NewBuffer())
	assert.ErrorIs(t, err, ErrNoChunk)
}

func TestTiling_ChunkTriggers(t *testing.T) {
	tl := newTestTiling(t)
	tl.SetSNRThreshold(5, 8)
	assert.Equal(t, 5.0, tl.MapSNRThreshold())
	assert.Equal(t, 8.0, tl.TriggerSNRThreshold())

	seq := tl.Sequencer()
	require.Equal(t, 1, seq.SetSegments(segments.MustList(segments.Segment{Start: 1000, End: 1008}), nil))
	ok, newSeg := seq.NewChunk()
	require.True(t, ok)
	require.True(t, newSeg)

	n, err := tl.Project(chunkData(11, 1, 5, 10))
	require.NoError(t, err)
	assert.Positive(t, n)

	l := tl.LoudestTile()
	for i := range tl.QN() {
		pl, err := tl.Loudest(i)
		require.NoError(t, err)
		assert.LessOrEqual(t, pl.SNRSq, l.SNRSq)
	}
	assert.Equal(t, l.SNRSq, tl.SNRSqMax())
	assert.InDelta(t, 1.0, l.Time, 0.05)

	buf := triggers.NewBuffer()
	saved, err := tl.SaveTriggers(buf)
	require.NoError(t, err)
	require.Positive(t, saved)
	assert.Equal(t, saved, buf.Len())
	for _, tr := range buf.Triggers() {
		assert.InDelta(t, 1005, tr.Time, 0.5)
		assert.GreaterOrEqual(t, tr.SNR, 8.0)
	}
	assert.Equal(t, []segments.Segment{{Start: 1000, End: 1008}}, buf.Segments().Segments())

	thr, err := UniformThreshold(0, 1000, 8)
	require.NoError(t, err)
	segs, err := tl.TileSegments(thr)
	require.NoError(t, err)
	assert.True(t, segs.Contains(1004+l.Time))
	assert.Greater(t, segs.Start(), 1004.5)
	assert.Less(t, segs.End(), 1005.5)
}

func TestTiling_SaveTriggersHonoursActiveWindow(t *testing.T) {
	tl := newTestTiling(t)
	tl.SetSNRThreshold(0, 8)

	// Two chunks [0,8) and [6,14) over [0,14): the first is active on [0,7).
	seq := tl.Sequencer()
	require.Equal(t, 2, seq.SetSegments(segments.MustList(segments.Segment{Start: 0, End: 14}), nil))
	ok, _ := seq.NewChunk()
	require.True(t, ok)

	// Burst at 7.5 s: loud, but in the part of the chunk owned by its successor.
	_, err := tl.Project(chunkData(12, 1, 7.5, 10))
	require.NoError(t, err)

	buf := triggers.NewBuffer()
	saved, err := tl.SaveTriggers(buf)
	require.NoError(t, err)
	assert.Zero(t, saved)
	assert.Equal(t, []segments.Segment{{Start: 0, End: 7}}, buf.Segments().Segments())
}

func TestTiling_FullMap(t *testing.T) {
	tl := newTestTiling(t)
	tl.SetPlotTimeWindows([]int{2, 0, 100})
	assert.Equal(t, []int{2, testRange, testRange}, tl.PlotTimeWindows())

	_, err := tl.Project(chunkData(13, 1, 5, 10))
	require.NoError(t, err)

	require.NoError(t, tl.FillFullMap(0, 1))
	m, err := tl.FullMap(0)
	require.NoError(t, err)

	assert.Equal(t, 2, m.Window)
	assert.Equal(t, 0.0, m.TimeStart)
	assert.Equal(t, 2.0, m.TimeEnd)
	assert.Equal(t, 256, m.TimeBinN())
	n, _ := tl.BandN(FullMapIndex)
	assert.Equal(t, n, m.BandN())
	assert.Equal(t, ContentSNRSq, m.Fill)

	assert.Greater(t, m.Loudest.SNR(), 10.0)
	assert.InDelta(t, 1.0, m.Loudest.Time, 0.05)
	assert.InDelta(t, 100.0, m.Loudest.Frequency, 40)
	assert.Positive(t, m.Loudest.Q)

	peak := 0.0
	for _, row := range m.Content {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			peak = math.Max(peak, v)
		}
	}
	assert.Equal(t, m.Loudest.SNRSq, peak)
	assert.LessOrEqual(t, m.Loudest.SNRSq, tl.SNRSqMax()+1e-9)

	// The returned map is a copy.
	m.Content[0][0] = -1
	again, _ := tl.FullMap(0)
	assert.NotEqual(t, -1.0, again.Content[0][0])

	assert.ErrorIs(t, tl.FillFullMap(3, 0), ErrWindowIndex)
	_, err = tl.FullMap(-1)
	assert.ErrorIs(t, err, ErrWindowIndex)
}

func TestTiling_FullMapContentTypes(t *testing.T) {
	tl := newTestTiling(t)
	_, err := tl.Project(chunkData(14, 1, 4, 10))
	require.NoError(t, err)

	tl.SetMapFill(ContentPhase)
	assert.Equal(t, ContentPhase, tl.MapFill())
	require.NoError(t, tl.FillFullMap(0, 0))
	m, _ := tl.FullMap(0)
	for _, row := range m.Content {
		for _, v := range row {
			require.LessOrEqual(t, math.Abs(v), math.Pi)
		}
	}

	tl.SetNoiseScale(flatSpectrum(9), nil)
	tl.SetMapFill(ContentAmplitude)
	require.NoError(t, tl.FillFullMap(0, 0))
	m, _ = tl.FullMap(0)
	row := m.Content[m.Loudest.Band]
	assert.InDelta(t, 3*m.Loudest.SNR(), row[m.Loudest.Tile], 1e-6)
}

func TestTiling_FullResolutionMap(t *testing.T) {
	cfg := testConfig()
	cfg.FullMapTimeBins = 0
	tl, err := New(cfg)
	require.NoError(t, err)

	finest := 0
	for i := range tl.QN() {
		p, _ := tl.Plane(i)
		finest = max(finest, p.BinN())
	}
	m, err := tl.FullMap(0)
	require.NoError(t, err)
	assert.Equal(t, finest, m.TimeBinN())
}

func TestTiling_FillMaps(t *testing.T) {
	tl := newTestTiling(t)
	_, err := tl.Project(chunkData(15, 1, 4, 10))
	require.NoError(t, err)
	tl.FillMaps()

	for i := range tl.QN() {
		p, _ := tl.Plane(i)
		win, ct := p.Filled()
		assert.Equal(t, segments.Segment{Start: -4, End: 4}, win)
		assert.Equal(t, ContentSNRSq, ct)
	}
}
