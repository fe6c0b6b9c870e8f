// Package scan drives the tiling over a list of segments: for every chunk it
// loads and conditions the data, projects it, extracts triggers and hands
// them, with the searched segments and optional maps, to the collaborators.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/qscan/internal/condition"
	"github.com/banshee-data/qscan/internal/config"
	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/qtile"
	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/timeutil"
	"github.com/banshee-data/qscan/internal/triggerdb"
	"github.com/banshee-data/qscan/internal/triggers"
)

// ErrTriggerRate reports a chunk whose trigger rate exceeds the limit.
var ErrTriggerRate = errors.New("trigger rate above limit")

// Source supplies raw samples for [start, end) GPS seconds.
type Source interface {
	SampleRate() int
	Load(ctx context.Context, start, end int64) ([]float64, error)
}

// ChunkRecord is the persisted outcome of one chunk.
type ChunkRecord = triggerdb.ChunkRecord

// Store persists chunk outcomes, triggers and searched segments.
type Store interface {
	RecordChunk(ctx context.Context, runID string, c ChunkRecord) error
	// SaveChunkOutput stores the triggers of a chunk with the segments it
	// searched, atomically.
	SaveChunkOutput(ctx context.Context, runID string, trigs []triggers.Trigger, segs *segments.List) error
}

// MapRenderer draws the full maps of a chunk.
type MapRenderer interface {
	Render(chunkCenter int64, maps []*qtile.FullMap) error
}

// Options configures a Processor.
type Options struct {
	Tiling          qtile.Config
	SNRThreshold    float64
	MapSNRThreshold float64
	PlotTimeWindows []int
	MapFill         qtile.ContentType
	TriggerRateMax  float64 // [Hz]; 0 disables the limit
	ClusterDT       float64 // [s]; 0 disables clustering
	PSDLength       int     // [s]
	TukeyAlpha      float64
}

// OptionsFromConfig maps an analysis configuration onto Options.
func OptionsFromConfig(cfg *config.AnalysisConfig) Options {
	return Options{
		Tiling:          cfg.TilingConfig(),
		SNRThreshold:    cfg.GetSNRThreshold(),
		MapSNRThreshold: cfg.GetMapSNRThreshold(),
		PlotTimeWindows: cfg.GetPlotTimeWindows(),
		MapFill:         cfg.GetMapContent(),
		TriggerRateMax:  cfg.GetTriggerRateMax(),
		ClusterDT:       cfg.GetClusterDT(),
		PSDLength:       cfg.GetPSDLength(),
		TukeyAlpha:      cfg.GetTukeyAlpha(),
	}
}

// Stats summarizes a run.
type Stats struct {
	Chunks     int     // chunks attempted
	Processed  int     // chunks whose triggers were kept
	Dropped    int     // chunks over the trigger rate limit
	Failed     int     // chunks that could not be loaded, conditioned or projected
	Triggers   int     // triggers kept, after clustering
	MapsDrawn  int     // chunks whose maps were rendered
	LiveTime   float64 // searched time [s]
	LoudestSNR float64
}

// Processor runs the chunk loop. It is not safe for concurrent use.
type Processor struct {
	opts     Options
	tiling   *qtile.Tiling
	cond     *condition.Conditioner
	buf      *triggers.Buffer
	src      Source
	store    Store
	renderer MapRenderer
	clock    timeutil.Clock
}

// New builds the tiling and conditioner for opts. store and renderer may be nil.
func New(opts Options, src Source, store Store, renderer MapRenderer, clock timeutil.Clock) (*Processor, error) {
	if src == nil {
		return nil, fmt.Errorf("scan: nil source")
	}
	if src.SampleRate() != opts.Tiling.SampleRate {
		return nil, fmt.Errorf("scan: source sample rate %d Hz, analysis expects %d Hz",
			src.SampleRate(), opts.Tiling.SampleRate)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	t, err := qtile.New(opts.Tiling)
	if err != nil {
		return nil, fmt.Errorf("scan: tiling: %w", err)
	}
	t.SetSNRThreshold(opts.MapSNRThreshold, opts.SNRThreshold)
	t.SetMapFill(opts.MapFill)
	if len(opts.PlotTimeWindows) > 0 {
		t.SetPlotTimeWindows(opts.PlotTimeWindows)
	}

	cond, err := condition.New(t.SampleRate(), t.TimeRange(), opts.PSDLength, opts.TukeyAlpha)
	if err != nil {
		return nil, fmt.Errorf("scan: conditioner: %w", err)
	}

	return &Processor{
		opts:     opts,
		tiling:   t,
		cond:     cond,
		buf:      triggers.NewBuffer(),
		src:      src,
		store:    store,
		renderer: renderer,
		clock:    clock,
	}, nil
}

// Tiling returns the tiling driven by the processor.
func (p *Processor) Tiling() *qtile.Tiling { return p.tiling }

// Run scans the input segments, restricted to the optional output mask.
// A chunk that fails to load, condition or project abandons the rest of its
// segment and the run continues. Store errors and context cancellation end
// the run.
func (p *Processor) Run(ctx context.Context, runID string, in, out *segments.List) (Stats, error) {
	var st Stats
	seq := p.tiling.Sequencer()
	n := seq.SetSegments(in, out)
	monitoring.Logf("scan: run %s: %d chunks over %.0f s", runID, n, in.LiveTime())

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ok, newSegment := seq.NewChunk()
		if !ok {
			break
		}
		if newSegment {
			seg, _ := seq.CurrentSegment()
			monitoring.Debugf(1, "scan: segment %v", seg)
		}
		st.Chunks++

		rec, err := p.processChunk(ctx, runID, &st)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return st, ctx.Err()
		case errors.Is(err, ErrTriggerRate):
			st.Dropped++
			monitoring.Logf("scan: chunk [%d, %d) dropped: %v", rec.Start, rec.End, err)
		default:
			var se storeError
			if errors.As(err, &se) {
				return st, err
			}
			st.Failed++
			monitoring.Logf("scan: chunk [%d, %d) failed, skipping the rest of the segment: %v", rec.Start, rec.End, err)
			seq.SkipSegment()
		}

		if p.store != nil {
			if err := p.store.RecordChunk(ctx, runID, rec); err != nil {
				return st, fmt.Errorf("scan: record chunk %d: %w", rec.Start, err)
			}
		}
	}

	monitoring.Logf("scan: run %s done: %d chunks, %d processed, %d dropped, %d failed, %d triggers, loudest SNR %.2f",
		runID, st.Chunks, st.Processed, st.Dropped, st.Failed, st.Triggers, st.LoudestSNR)
	return st, nil
}

// storeError marks persistence failures, which end the run.
type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

// processChunk handles the chunk currently loaded in the sequencer.
func (p *Processor) processChunk(ctx context.Context, runID string, st *Stats) (ChunkRecord, error) {
	seq := p.tiling.Sequencer()
	started := p.clock.Now()
	rec := ChunkRecord{Start: seq.ChunkStart(), End: seq.ChunkEnd(), Status: triggerdb.ChunkFailed}
	fail := func(err error) (ChunkRecord, error) {
		rec.Err = err.Error()
		rec.Elapsed = p.clock.Since(started)
		return rec, err
	}

	data, err := p.src.Load(ctx, rec.Start, rec.End)
	if err != nil {
		return fail(fmt.Errorf("load: %w", err))
	}
	res, err := p.cond.Condition(data)
	if err != nil {
		return fail(fmt.Errorf("condition: %w", err))
	}
	p.tiling.SetNoiseScale(res.Spectrum1, res.Spectrum2)
	if _, err := p.tiling.Project(res.Data); err != nil {
		return fail(fmt.Errorf("project: %w", err))
	}
	rec.LoudestSNR = math.Sqrt(p.tiling.SNRSqMax())

	buf := p.buf
	buf.Reset()
	count, err := p.tiling.SaveTriggers(buf)
	if err != nil {
		return fail(fmt.Errorf("triggers: %w", err))
	}
	active := buf.Segments()
	if live := active.LiveTime(); p.opts.TriggerRateMax > 0 && live > 0 {
		if rate := float64(count) / live; rate > p.opts.TriggerRateMax {
			rec.Status = triggerdb.ChunkDropped
			rec.TriggerCount = count
			return fail(fmt.Errorf("%w: %.1f Hz > %.1f Hz", ErrTriggerRate, rate, p.opts.TriggerRateMax))
		}
	}

	trigs := buf.Triggers()
	if p.opts.ClusterDT > 0 {
		trigs = triggers.Cluster(trigs, p.opts.ClusterDT)
	}
	if p.store != nil {
		if err := p.store.SaveChunkOutput(ctx, runID, trigs, active); err != nil {
			return fail(storeError{fmt.Errorf("save chunk output: %w", err)})
		}
	}

	if drawn, err := p.renderMaps(seq.ChunkCenter()); err != nil {
		monitoring.Logf("scan: maps for chunk %d: %v", seq.ChunkCenter(), err)
	} else if drawn {
		st.MapsDrawn++
	}

	rec.Status = triggerdb.ChunkProcessed
	rec.TriggerCount = len(trigs)
	rec.Elapsed = p.clock.Since(started)
	st.Processed++
	st.Triggers += len(trigs)
	st.LiveTime += active.LiveTime()
	st.LoudestSNR = math.Max(st.LoudestSNR, rec.LoudestSNR)
	monitoring.Debugf(1, "scan: chunk [%d, %d): %d triggers, loudest SNR %.2f, %v",
		rec.Start, rec.End, rec.TriggerCount, rec.LoudestSNR, rec.Elapsed)
	return rec, nil
}

// renderMaps fills and draws the full maps when the loudest cell of the
// first window reaches the map threshold.
func (p *Processor) renderMaps(center int64) (bool, error) {
	if p.renderer == nil {
		return false, nil
	}
	windows := p.tiling.PlotTimeWindows()
	maps := make([]*qtile.FullMap, len(windows))
	for w := range windows {
		if err := p.tiling.FillFullMap(w, 0); err != nil {
			return false, err
		}
		m, err := p.tiling.FullMap(w)
		if err != nil {
			return false, err
		}
		if w == 0 && m.Loudest.SNR() < p.tiling.MapSNRThreshold() {
			return false, nil
		}
		maps[w] = m
	}
	if err := p.renderer.Render(center, maps); err != nil {
		return false, err
	}
	return true, nil
}
