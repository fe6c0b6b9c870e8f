package segments

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_AddMerges(t *testing.T) {
	tests := []struct {
		name string
		in   []Segment
		want []Segment
	}{
		{
			name: "disjoint stays sorted",
			in:   []Segment{{10, 20}, {0, 5}},
			want: []Segment{{0, 5}, {10, 20}},
		},
		{
			name: "overlap merges",
			in:   []Segment{{0, 5}, {3, 8}},
			want: []Segment{{0, 8}},
		},
		{
			name: "touching merges",
			in:   []Segment{{0, 5}, {5, 8}},
			want: []Segment{{0, 8}},
		},
		{
			name: "bridge swallows neighbours",
			in:   []Segment{{0, 2}, {4, 6}, {8, 10}, {1, 9}},
			want: []Segment{{0, 10}},
		},
		{
			name: "empty segment dropped",
			in:   []Segment{{3, 3}},
			want: []Segment{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewList(tt.in...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, append([]Segment{}, l.Segments()...))
		})
	}
}

func TestList_AddRejectsReversed(t *testing.T) {
	l := &List{}
	err := l.Add(5, 1)
	assert.ErrorIs(t, err, ErrInvalidSegment)
	assert.Equal(t, 0, l.Len())
}

func TestList_Contains(t *testing.T) {
	l := MustList(Segment{0, 4}, Segment{10, 12})

	assert.True(t, l.Contains(0))
	assert.True(t, l.Contains(3.99))
	assert.False(t, l.Contains(4), "end is exclusive")
	assert.False(t, l.Contains(7))
	assert.True(t, l.Contains(11))
	assert.False(t, l.Contains(-1))
	assert.False(t, (&List{}).Contains(1))
}

func TestList_Intersect(t *testing.T) {
	a := MustList(Segment{0, 10}, Segment{20, 30})
	b := MustList(Segment{5, 25})

	got := a.Intersect(b)
	assert.Equal(t, []Segment{{5, 10}, {20, 25}}, got.Segments())
	assert.Equal(t, 0, a.Intersect(&List{}).Len())
}

func TestList_LiveTimeAndBounds(t *testing.T) {
	l := MustList(Segment{0, 4}, Segment{10, 12.5})
	assert.InDelta(t, 6.5, l.LiveTime(), 1e-12)
	assert.Equal(t, 0.0, l.Start())
	assert.Equal(t, 12.5, l.End())
}

func TestList_Truncate(t *testing.T) {
	l := MustList(Segment{0.7, 4.9}, Segment{10.2, 10.8})
	got := l.Truncate()
	assert.Equal(t, []Segment{{0, 4}}, got.Segments())
}

func TestReadWrite(t *testing.T) {
	in := "# gps segments\n100 164\n\n200 300 extra\n150 170\n"
	l, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Segment{{100, 170}, {200, 300}}, l.Segments())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, l))
	assert.Equal(t, "100 170\n200 300\n", buf.String())
}

func TestRead_Errors(t *testing.T) {
	for _, in := range []string{"100\n", "abc 10\n", "10 x\n", "20 10\n"} {
		_, err := Read(strings.NewReader(in))
		assert.Error(t, err, "input %q", in)
	}
}
