// Package segments provides half-open time intervals and ordered,
// non-overlapping lists of them.
//
// Times are seconds (typically GPS seconds). A Segment covers [Start, End).
// A List is always kept sorted and merged: touching or overlapping
// segments collapse into one.
package segments

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidSegment is returned when a segment ends before it starts.
var ErrInvalidSegment = errors.New("invalid segment")

// Segment is the half-open interval [Start, End).
type Segment struct {
	Start float64
	End   float64
}

// Duration returns End-Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Contains reports whether t lies inside [Start, End).
func (s Segment) Contains(t float64) bool {
	return t >= s.Start && t < s.End
}

func (s Segment) String() string {
	return fmt.Sprintf("[%g, %g)", s.Start, s.End)
}

// List is an ordered set of disjoint segments.
type List struct {
	segs []Segment
}

// NewList builds a list from arbitrary segments. Empty segments are dropped.
func NewList(segs ...Segment) (*List, error) {
	l := &List{}
	for _, s := range segs {
		if err := l.Add(s.Start, s.End); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// MustList is NewList for literals known to be valid.
func MustList(segs ...Segment) *List {
	l, err := NewList(segs...)
	if err != nil {
		panic(err)
	}
	return l
}

// Add inserts [start, end) and merges it with its neighbours.
func (l *List) Add(start, end float64) error {
	if end < start {
		return fmt.Errorf("%w: end %g before start %g", ErrInvalidSegment, end, start)
	}
	if end == start {
		return nil
	}

	// first segment that is not strictly before the new one
	i := sort.Search(len(l.segs), func(i int) bool { return l.segs[i].End >= start })
	j := i
	for j < len(l.segs) && l.segs[j].Start <= end {
		start = math.Min(start, l.segs[j].Start)
		end = math.Max(end, l.segs[j].End)
		j++
	}

	merged := make([]Segment, 0, len(l.segs)-(j-i)+1)
	merged = append(merged, l.segs[:i]...)
	merged = append(merged, Segment{Start: start, End: end})
	merged = append(merged, l.segs[j:]...)
	l.segs = merged
	return nil
}

// AddList merges every segment of other into l.
func (l *List) AddList(other *List) {
	if other == nil {
		return
	}
	for _, s := range other.segs {
		_ = l.Add(s.Start, s.End)
	}
}

// Len returns the number of segments.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.segs)
}

// At returns the i-th segment.
func (l *List) At(i int) Segment {
	return l.segs[i]
}

// Segments returns a copy of the segments.
func (l *List) Segments() []Segment {
	if l == nil {
		return nil
	}
	out := make([]Segment, len(l.segs))
	copy(out, l.segs)
	return out
}

// Start returns the start of the first segment, or 0 for an empty list.
func (l *List) Start() float64 {
	if l.Len() == 0 {
		return 0
	}
	return l.segs[0].Start
}

// End returns the end of the last segment, or 0 for an empty list.
func (l *List) End() float64 {
	if l.Len() == 0 {
		return 0
	}
	return l.segs[len(l.segs)-1].End
}

// LiveTime returns the summed duration of all segments.
func (l *List) LiveTime() float64 {
	total := 0.0
	for _, s := range l.Segments() {
		total += s.Duration()
	}
	return total
}

// Contains reports whether t falls inside one of the segments.
func (l *List) Contains(t float64) bool {
	if l.Len() == 0 {
		return false
	}
	i := sort.Search(len(l.segs), func(i int) bool { return l.segs[i].End > t })
	return i < len(l.segs) && l.segs[i].Contains(t)
}

// Intersect returns the intersection of l and other as a new list.
func (l *List) Intersect(other *List) *List {
	out := &List{}
	if l.Len() == 0 || other.Len() == 0 {
		return out
	}
	i, j := 0, 0
	for i < len(l.segs) && j < len(other.segs) {
		a, b := l.segs[i], other.segs[j]
		start := math.Max(a.Start, b.Start)
		end := math.Min(a.End, b.End)
		if end > start {
			out.segs = append(out.segs, Segment{Start: start, End: end})
		}
		if a.End < b.End {
			i++
		} else {
			j++
		}
	}
	return out
}

// Truncate returns a copy with every endpoint truncated to an integer.
// Segments that become empty are dropped.
func (l *List) Truncate() *List {
	out := &List{}
	for _, s := range l.Segments() {
		_ = out.Add(math.Trunc(s.Start), math.Trunc(s.End))
	}
	return out
}

// Clone returns a deep copy.
func (l *List) Clone() *List {
	return &List{segs: l.Segments()}
}

func (l *List) String() string {
	return fmt.Sprintf("%v", l.Segments())
}
