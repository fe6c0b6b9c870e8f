// Package sequence divides a list of input segments into fixed-duration,
// overlapping analysis chunks.
//
// Within a segment consecutive chunks advance by the stride T-O. The last
// chunk of a segment is pulled back so that its trailing edge lands exactly
// on the segment end; only its overlap with the previous chunk grows.
// Segments shorter than the chunk duration are skipped.
//
//	-----------------------------------------|   input segment
//	    |--------------------------|              penultimate chunk
//	               |--------------------------|   last chunk
//	               |---------------|              widened overlap
package sequence

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/segments"
)

// ErrOverlap is returned when the overlap is negative or not shorter than the chunk.
var ErrOverlap = errors.New("invalid chunk overlap")

// State is the position of the sequencer in its segment list.
type State int

const (
	// Uninitialized: no chunk has been loaded since the last reset.
	Uninitialized State = iota
	// InSegment: the current chunk is followed by at least one more chunk in the same segment.
	InSegment
	// SegmentBoundaryReached: the current chunk ends on its segment end.
	SegmentBoundaryReached
	// Exhausted: all segments have been covered.
	Exhausted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case InSegment:
		return "in-segment"
	case SegmentBoundaryReached:
		return "segment-boundary"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sequencer iterates over integer-second input segments chunk by chunk.
// It is not safe for concurrent use.
type Sequencer struct {
	timeRange int64 // chunk duration T
	overlap   int64 // nominal overlap O

	in  []segments.Segment // integer input segments
	out *segments.List     // optional output mask, nil means everything

	state          State
	seg            int   // current segment index
	center         int64 // current chunk center
	overlapCurrent int64 // overlap with the previous chunk
}

// New creates a sequencer for chunks of timeRange seconds overlapping by overlap seconds.
// The time range is forced to an even number of at least 4 s and the overlap to an
// even number; both adjustments are logged.
func New(timeRange, overlap int) (*Sequencer, error) {
	if timeRange < 4 {
		monitoring.Logf("sequence: time range %d s is too short, using 4 s", timeRange)
		timeRange = 4
	}
	if timeRange%2 != 0 {
		monitoring.Logf("sequence: time range %d s must be even, using %d s", timeRange, timeRange+1)
		timeRange++
	}
	if overlap%2 != 0 {
		monitoring.Logf("sequence: overlap %d s must be even, using %d s", overlap, overlap+1)
		overlap++
	}
	if overlap < 0 || overlap >= timeRange {
		return nil, fmt.Errorf("%w: overlap %d s with time range %d s", ErrOverlap, overlap, timeRange)
	}

	s := &Sequencer{
		timeRange: int64(timeRange),
		overlap:   int64(overlap),
	}
	s.ResetSequence()
	return s, nil
}

// TimeRange returns the chunk duration [s].
func (s *Sequencer) TimeRange() int64 { return s.timeRange }

// Overlap returns the nominal overlap duration [s].
func (s *Sequencer) Overlap() int64 { return s.overlap }

// Stride returns the nominal chunk advance T-O [s].
func (s *Sequencer) Stride() int64 { return s.timeRange - s.overlap }

// CurrentOverlap returns the overlap between the current chunk and the previous one [s].
// It equals the nominal overlap except for the last chunk of a segment.
func (s *Sequencer) CurrentOverlap() int64 { return s.overlapCurrent }

// State returns the current state.
func (s *Sequencer) State() State { return s.state }

// ChunkCenter returns the central time of the current chunk.
func (s *Sequencer) ChunkCenter() int64 { return s.center }

// ChunkStart returns the start time of the current chunk.
func (s *Sequencer) ChunkStart() int64 { return s.center - s.timeRange/2 }

// ChunkEnd returns the end time of the current chunk.
func (s *Sequencer) ChunkEnd() int64 { return s.center + s.timeRange/2 }

// HasChunk reports whether a chunk is currently loaded.
func (s *Sequencer) HasChunk() bool {
	return s.state == InSegment || s.state == SegmentBoundaryReached
}

// SetSegments replaces the input segments and the optional output mask, resets
// the sequence, and returns the number of chunks needed to cover the input.
// Segment endpoints are truncated to integers.
func (s *Sequencer) SetSegments(in, out *segments.List) int {
	s.in = nil
	if in != nil {
		s.in = in.Truncate().Segments()
	}
	s.out = nil
	if out != nil {
		s.out = out.Clone()
	}
	s.ResetSequence()

	n := 0
	for _, seg := range s.in {
		n += s.chunksIn(seg)
	}
	monitoring.Debugf(1, "sequence: %d input segments, %d chunks of %d s (overlap %d s)",
		len(s.in), n, s.timeRange, s.overlap)
	return n
}

// chunksIn returns ceil((D-T)/S)+1 for a segment of duration D >= T, 0 otherwise.
func (s *Sequencer) chunksIn(seg segments.Segment) int {
	d := int64(seg.End - seg.Start)
	if d < s.timeRange {
		return 0
	}
	stride := s.Stride()
	return int((d-s.timeRange+stride-1)/stride) + 1
}

// ResetSequence rewinds to before the first chunk. The segments are kept.
func (s *Sequencer) ResetSequence() {
	s.state = Uninitialized
	s.seg = -1
	s.center = 0
	s.overlapCurrent = s.overlap
}

// NewChunk loads the next chunk. It returns false once every segment has been
// covered; newSegment is true when the loaded chunk is the first of its segment.
func (s *Sequencer) NewChunk() (ok bool, newSegment bool) {
	switch s.state {
	case Exhausted:
		return false, false

	case Uninitialized, SegmentBoundaryReached:
		ok = s.startNextSegment()
		return ok, ok

	default: // InSegment
		segEnd := int64(s.in[s.seg].End)
		next := s.center + s.Stride()
		if next+s.timeRange/2 >= segEnd {
			last := segEnd - s.timeRange/2
			s.overlapCurrent = s.ChunkEnd() - (last - s.timeRange/2)
			s.center = last
			s.state = SegmentBoundaryReached
		} else {
			s.center = next
			s.overlapCurrent = s.overlap
		}
		monitoring.Debugf(2, "sequence: chunk [%d, %d) overlap %d s", s.ChunkStart(), s.ChunkEnd(), s.overlapCurrent)
		return true, false
	}
}

// startNextSegment moves to the next segment long enough to hold one chunk.
func (s *Sequencer) startNextSegment() bool {
	for s.seg++; s.seg < len(s.in); s.seg++ {
		seg := s.in[s.seg]
		if int64(seg.End-seg.Start) < s.timeRange {
			monitoring.Debugf(1, "sequence: skipping segment %v shorter than %d s", seg, s.timeRange)
			continue
		}
		s.center = int64(seg.Start) + s.timeRange/2
		s.overlapCurrent = s.overlap
		if s.ChunkEnd() >= int64(seg.End) {
			s.state = SegmentBoundaryReached
		} else {
			s.state = InSegment
		}
		monitoring.Debugf(2, "sequence: new segment %v, chunk [%d, %d)", seg, s.ChunkStart(), s.ChunkEnd())
		return true
	}
	s.state = Exhausted
	return false
}

// SkipSegment abandons the rest of the current segment: the next call to
// NewChunk starts the following segment.
func (s *Sequencer) SkipSegment() {
	if s.state == InSegment {
		s.state = SegmentBoundaryReached
	}
}

// nextOverlap returns the overlap the current chunk will share with the next
// chunk of the same segment, or 0 if it is the last one.
func (s *Sequencer) nextOverlap() int64 {
	if s.state != InSegment {
		return 0
	}
	segEnd := int64(s.in[s.seg].End)
	next := s.center + s.Stride()
	if next+s.timeRange/2 >= segEnd {
		return s.ChunkEnd() - (segEnd - s.timeRange)
	}
	return s.overlap
}

// CurrentSegment returns the input segment holding the current chunk.
func (s *Sequencer) CurrentSegment() (segments.Segment, bool) {
	if !s.HasChunk() {
		return segments.Segment{}, false
	}
	return s.in[s.seg], true
}

// ChunkOut returns the active part of the current chunk: the chunk minus half
// of its overlap with each neighbour (no trim at the true segment start/end),
// intersected with the output mask. Consecutive active windows tile the
// segment without gaps or double coverage. Returns nil when no chunk is loaded.
func (s *Sequencer) ChunkOut() *segments.List {
	seg, ok := s.CurrentSegment()
	if !ok {
		return nil
	}

	start := float64(s.ChunkStart())
	end := float64(s.ChunkEnd())
	if s.ChunkStart() > int64(seg.Start) {
		start += float64(s.overlapCurrent) / 2
	}
	if s.ChunkEnd() < int64(seg.End) {
		end -= float64(s.nextOverlap()) / 2
	}
	active := segments.MustList(segments.Segment{Start: start, End: math.Max(start, end)})
	if s.out != nil {
		active = active.Intersect(s.out)
	}
	return active
}
