// Package triggers holds the trigger records emitted by the tiling and an
// in-memory buffer that collects them together with the time segments they
// were searched in.
package triggers

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/qscan/internal/segments"
)

// Trigger is one tile above the SNR threshold, or a cluster of such tiles.
type Trigger struct {
	Time           float64 `json:"time"`            // tile central time [s]
	Frequency      float64 `json:"frequency"`       // band central frequency [Hz]
	TimeStart      float64 `json:"time_start"`      // [s]
	TimeEnd        float64 `json:"time_end"`        // [s]
	FrequencyStart float64 `json:"frequency_start"` // [Hz]
	FrequencyEnd   float64 `json:"frequency_end"`   // [Hz]
	Q              float64 `json:"q"`
	SNR            float64 `json:"snr"`
	Amplitude      float64 `json:"amplitude"`
	Phase          float64 `json:"phase"` // [rad]
}

// Duration returns TimeEnd-TimeStart.
func (t Trigger) Duration() float64 { return t.TimeEnd - t.TimeStart }

// Bandwidth returns FrequencyEnd-FrequencyStart.
func (t Trigger) Bandwidth() float64 { return t.FrequencyEnd - t.FrequencyStart }

func (t Trigger) String() string {
	return fmt.Sprintf("t=%.4f f=%.2fHz Q=%.2f snr=%.2f [%.4f, %.4f) dur=%.4fs bw=%.2fHz",
		t.Time, t.Frequency, t.Q, t.SNR, t.TimeStart, t.TimeEnd, t.Duration(), t.Bandwidth())
}

// Buffer collects triggers and the segments that were searched for them.
// It is not safe for concurrent use.
type Buffer struct {
	triggers []Trigger
	segs     *segments.List
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{segs: &segments.List{}}
}

// AddTrigger appends a trigger.
func (b *Buffer) AddTrigger(t Trigger) {
	b.triggers = append(b.triggers, t)
}

// AddSegments records searched time.
func (b *Buffer) AddSegments(l *segments.List) {
	b.segs.AddList(l)
}

// Len returns the number of buffered triggers.
func (b *Buffer) Len() int { return len(b.triggers) }

// Triggers returns the buffered triggers sorted by start time.
func (b *Buffer) Triggers() []Trigger {
	out := make([]Trigger, len(b.triggers))
	copy(out, b.triggers)
	SortByStart(out)
	return out
}

// Segments returns a copy of the searched segments.
func (b *Buffer) Segments() *segments.List {
	return b.segs.Clone()
}

// Reset drops every trigger and segment.
func (b *Buffer) Reset() {
	b.triggers = b.triggers[:0]
	b.segs = &segments.List{}
}

// SortByStart orders triggers by start time, then frequency.
func SortByStart(trigs []Trigger) {
	sort.SliceStable(trigs, func(i, j int) bool {
		if trigs[i].TimeStart != trigs[j].TimeStart {
			return trigs[i].TimeStart < trigs[j].TimeStart
		}
		return trigs[i].Frequency < trigs[j].Frequency
	})
}

// Cluster merges triggers whose time ranges are separated by less than dt.
// A cluster spans the union of its members in time and frequency and takes
// the central time, frequency, Q, SNR, amplitude and phase of its loudest member.
// dt <= 0 returns the triggers sorted but unclustered.
func Cluster(trigs []Trigger, dt float64) []Trigger {
	sorted := make([]Trigger, len(trigs))
	copy(sorted, trigs)
	SortByStart(sorted)
	if dt <= 0 || len(sorted) == 0 {
		return sorted
	}

	var out []Trigger
	cur := sorted[0]
	for _, t := range sorted[1:] {
		if t.TimeStart-cur.TimeEnd < dt {
			cur = merge(cur, t)
			continue
		}
		out = append(out, cur)
		cur = t
	}
	return append(out, cur)
}

func merge(c, t Trigger) Trigger {
	loud := c
	if t.SNR > c.SNR {
		loud = t
	}
	loud.TimeStart = math.Min(c.TimeStart, t.TimeStart)
	loud.TimeEnd = math.Max(c.TimeEnd, t.TimeEnd)
	loud.FrequencyStart = math.Min(c.FrequencyStart, t.FrequencyStart)
	loud.FrequencyEnd = math.Max(c.FrequencyEnd, t.FrequencyEnd)
	return loud
}
