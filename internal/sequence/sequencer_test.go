package sequence

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/qscan/internal/segments"
)

type chunk struct {
	Start, End int64
	Overlap    int64
	NewSeg     bool
}

func drain(t *testing.T, s *Sequencer) []chunk {
	t.Helper()
	var out []chunk
	for i := 0; i < 10000; i++ {
		ok, newSeg := s.NewChunk()
		if !ok {
			return out
		}
		out = append(out, chunk{s.ChunkStart(), s.ChunkEnd(), s.CurrentOverlap(), newSeg})
	}
	t.Fatal("sequence did not terminate")
	return nil
}

func TestNew_Adjustments(t *testing.T) {
	tests := []struct {
		name      string
		timeRange int
		overlap   int
		wantT     int64
		wantO     int64
		wantErr   bool
	}{
		{name: "valid", timeRange: 64, overlap: 4, wantT: 64, wantO: 4},
		{name: "odd range rounded up", timeRange: 7, overlap: 2, wantT: 8, wantO: 2},
		{name: "short range forced to 4", timeRange: 1, overlap: 0, wantT: 4, wantO: 0},
		{name: "odd overlap rounded up", timeRange: 8, overlap: 3, wantT: 8, wantO: 4},
		{name: "overlap equal to range", timeRange: 8, overlap: 8, wantErr: true},
		{name: "negative overlap", timeRange: 8, overlap: -2, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.timeRange, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOverlap)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantT, s.TimeRange())
			assert.Equal(t, tt.wantO, s.Overlap())
			assert.Equal(t, Uninitialized, s.State())
		})
	}
}

func TestNewChunk_WidenedLastOverlap(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)

	n := s.SetSegments(segments.MustList(segments.Segment{Start: 0, End: 9}), nil)
	assert.Equal(t, 4, n)

	got := drain(t, s)
	want := []chunk{
		{0, 4, 2, true},
		{2, 6, 2, false},
		{4, 8, 2, false},
		{5, 9, 3, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Exhausted, s.State())
}

func TestNewChunk_ExactFit(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)
	s.SetSegments(segments.MustList(segments.Segment{Start: 10, End: 18}), nil)

	got := drain(t, s)
	want := []chunk{
		{10, 14, 2, true},
		{12, 16, 2, false},
		{14, 18, 2, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestNewChunk_SkipsShortSegments(t *testing.T) {
	s, err := New(8, 2)
	require.NoError(t, err)

	in := segments.MustList(
		segments.Segment{Start: 0, End: 5},    // too short
		segments.Segment{Start: 100, End: 108}, // exactly one chunk
		segments.Segment{Start: 200, End: 207}, // too short
		segments.Segment{Start: 300, End: 320},
	)
	n := s.SetSegments(in, nil)

	got := drain(t, s)
	want := []chunk{
		{100, 108, 2, true},
		{300, 308, 2, true},
		{306, 314, 2, false},
		{312, 320, 2, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(want), n)
}

func TestNewChunk_NoSegments(t *testing.T) {
	s, err := New(8, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, s.SetSegments(segments.MustList(segments.Segment{Start: 0, End: 3}), nil))

	ok, newSeg := s.NewChunk()
	assert.False(t, ok)
	assert.False(t, newSeg)
	assert.Nil(t, s.ChunkOut())

	// Terminal until reset.
	ok, _ = s.NewChunk()
	assert.False(t, ok)
}

func TestResetSequence_Replays(t *testing.T) {
	s, err := New(16, 4)
	require.NoError(t, err)
	s.SetSegments(segments.MustList(
		segments.Segment{Start: 1000, End: 1050},
		segments.Segment{Start: 2000, End: 2017},
	), nil)

	first := drain(t, s)
	ok, _ := s.NewChunk()
	require.False(t, ok)

	s.ResetSequence()
	second := drain(t, s)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay differs (-first +second):\n%s", diff)
	}
}

func TestSetSegments_TruncatesEndpoints(t *testing.T) {
	s, err := New(4, 0)
	require.NoError(t, err)
	n := s.SetSegments(segments.MustList(segments.Segment{Start: 0.9, End: 8.7}), nil)
	assert.Equal(t, 2, n)

	got := drain(t, s)
	assert.Equal(t, []chunk{{0, 4, 0, true}, {4, 8, 0, false}}, got)
}

func TestChunkCount_MatchesFormula(t *testing.T) {
	for _, tc := range []struct{ T, O int }{{4, 2}, {8, 2}, {16, 4}, {64, 4}, {6, 0}} {
		for d := 0; d < 150; d += 7 {
			s, err := New(tc.T, tc.O)
			require.NoError(t, err)
			n := s.SetSegments(segments.MustList(segments.Segment{Start: 50, End: float64(50 + d)}), nil)
			got := drain(t, s)
			assert.Equal(t, n, len(got), "T=%d O=%d D=%d", tc.T, tc.O, d)

			want := 0
			if d >= tc.T {
				stride := float64(tc.T - tc.O)
				want = int(math.Ceil(float64(d-tc.T)/stride)) + 1
			}
			assert.Equal(t, want, n, "T=%d O=%d D=%d", tc.T, tc.O, d)
		}
	}
}

// The union of the active windows must tile each segment exactly.
func TestChunkOut_CoversSegments(t *testing.T) {
	for _, tc := range []struct{ T, O, D int }{{4, 2, 9}, {4, 2, 8}, {8, 2, 31}, {16, 4, 16}, {64, 4, 250}, {6, 0, 20}} {
		s, err := New(tc.T, tc.O)
		require.NoError(t, err)
		seg := segments.Segment{Start: 1000, End: float64(1000 + tc.D)}
		s.SetSegments(segments.MustList(seg), nil)

		union := &segments.List{}
		total := 0.0
		prevEnd := seg.Start
		for {
			ok, _ := s.NewChunk()
			if !ok {
				break
			}
			assert.GreaterOrEqual(t, float64(s.ChunkStart()), seg.Start)
			assert.LessOrEqual(t, float64(s.ChunkEnd()), seg.End)

			out := s.ChunkOut()
			require.Equal(t, 1, out.Len())
			w := out.At(0)
			assert.Equal(t, prevEnd, w.Start, "T=%d O=%d D=%d: gap or overlap", tc.T, tc.O, tc.D)
			prevEnd = w.End
			total += w.Duration()
			union.AddList(out)
		}
		assert.Equal(t, []segments.Segment{seg}, union.Segments(), "T=%d O=%d D=%d", tc.T, tc.O, tc.D)
		assert.InDelta(t, seg.Duration(), total, 1e-9)
	}
}

func TestChunkOut_OutputMask(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)
	mask := segments.MustList(segments.Segment{Start: 0, End: 2.5}, segments.Segment{Start: 7, End: 100})
	s.SetSegments(segments.MustList(segments.Segment{Start: 0, End: 9}), mask)

	var got [][]segments.Segment
	for {
		ok, _ := s.NewChunk()
		if !ok {
			break
		}
		got = append(got, s.ChunkOut().Segments())
	}
	want := [][]segments.Segment{
		{{Start: 0, End: 2.5}},
		{},
		{},
		{{Start: 7, End: 9}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("active windows mismatch (-want +got):\n%s", diff)
	}
}

func TestSkipSegment(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)
	s.SetSegments(segments.MustList(
		segments.Segment{Start: 0, End: 20},
		segments.Segment{Start: 100, End: 104},
	), nil)

	ok, newSeg := s.NewChunk()
	require.True(t, ok)
	require.True(t, newSeg)
	s.SkipSegment()

	ok, newSeg = s.NewChunk()
	require.True(t, ok)
	assert.True(t, newSeg)
	assert.Equal(t, int64(100), s.ChunkStart())

	ok, _ = s.NewChunk()
	assert.False(t, ok)
}
