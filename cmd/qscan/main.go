// Command qscan searches a WAV time series for transients with a multi-Q
// tiling and stores the triggers in a sqlite database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/banshee-data/qscan/internal/config"
	"github.com/banshee-data/qscan/internal/monitoring"
	"github.com/banshee-data/qscan/internal/qtile"
	"github.com/banshee-data/qscan/internal/report"
	"github.com/banshee-data/qscan/internal/scan"
	"github.com/banshee-data/qscan/internal/segments"
	"github.com/banshee-data/qscan/internal/source"
	"github.com/banshee-data/qscan/internal/timeutil"
	"github.com/banshee-data/qscan/internal/triggerdb"
	"github.com/banshee-data/qscan/internal/version"
)

var (
	configPath   = flag.String("config", "", "Analysis configuration (JSON); defaults are used when empty")
	wavPath      = flag.String("wav", "", "Input WAV file")
	gpsStart     = flag.Int64("gps", 0, "GPS time of the first sample [s]")
	segmentsPath = flag.String("segments", "", "Segments to analyse (\"start end\" per line); default is the whole file")
	outSegsPath  = flag.String("out-segments", "", "Optional output mask segment file")
	dbPath       = flag.String("db", "triggers.db", "Trigger database path")
	plotsDir     = flag.String("plots", "", "Directory for full-map plots; no plots when empty")
	plotFormats  = flag.String("plot-formats", "png,html", "Comma-separated plot formats (png, html)")
	printTiling  = flag.Bool("print-tiling", false, "Print the tiling parameters and exit")
	showVersion  = flag.Bool("version", false, "Print the version and exit")
	verbosity    = flag.Int("v", -1, "Verbosity level; overrides the configuration when >= 0")
	topN         = flag.Int("top", 10, "Number of loudest triggers to print after the run")
)

// options is the parsed command line.
type options struct {
	configPath   string
	wavPath      string
	gpsStart     int64
	segmentsPath string
	outSegsPath  string
	dbPath       string
	plotsDir     string
	plotFormats  string
	printTiling  bool
	verbosity    int
	topN         int
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		configPath:   *configPath,
		wavPath:      *wavPath,
		gpsStart:     *gpsStart,
		segmentsPath: *segmentsPath,
		outSegsPath:  *outSegsPath,
		dbPath:       *dbPath,
		plotsDir:     *plotsDir,
		plotFormats:  *plotFormats,
		printTiling:  *printTiling,
		verbosity:    *verbosity,
		topN:         *topN,
	}
	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("qscan: %v", err)
	}
}

func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

func run(ctx context.Context, o options, stdout io.Writer) error {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	level := cfg.GetVerbosity()
	if o.verbosity >= 0 {
		level = o.verbosity
	}
	monitoring.SetVerbosity(level)

	if o.printTiling {
		t, err := qtile.New(cfg.TilingConfig())
		if err != nil {
			return err
		}
		t.SetPlotTimeWindows(cfg.GetPlotTimeWindows())
		t.PrintParameters()
		return nil
	}

	if o.wavPath == "" {
		return errors.New("-wav is required")
	}
	series, err := source.ReadWAV(o.wavPath, o.gpsStart)
	if err != nil {
		return err
	}
	log.Printf("loaded %s: %d samples at %d Hz, GPS %d (%s) to %d",
		o.wavPath, series.Len(), series.SampleRate(), series.Start(),
		timeutil.GPSToUTC(float64(series.Start())).Format("2006-01-02T15:04:05Z"), series.End())

	in := series.Segments()
	if o.segmentsPath != "" {
		if in, err = segments.ReadFile(o.segmentsPath); err != nil {
			return err
		}
		in = in.Intersect(series.Segments())
	}
	var out *segments.List
	if o.outSegsPath != "" {
		if out, err = segments.ReadFile(o.outSegsPath); err != nil {
			return err
		}
	}

	db, err := triggerdb.Open(o.dbPath)
	if err != nil {
		return fmt.Errorf("open trigger database: %w", err)
	}
	defer db.Close()

	var renderer scan.MapRenderer
	if o.plotsDir != "" {
		formats, err := report.ParseFormats(o.plotFormats)
		if err != nil {
			return err
		}
		if renderer, err = report.NewRenderer(o.plotsDir, formats...); err != nil {
			return err
		}
	}

	clock := timeutil.RealClock{}
	proc, err := scan.New(scan.OptionsFromConfig(cfg), series, db, renderer, clock)
	if err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	r, err := db.StartRun(ctx, triggerdb.Run{
		Version:    version.String(),
		ConfigJSON: string(cfgJSON),
		GPSStart:   int64(in.Start()),
		GPSEnd:     int64(in.End()),
		StartedAt:  clock.Now(),
	})
	if err != nil {
		return err
	}

	st, runErr := proc.Run(ctx, r.ID, in, out)
	status := triggerdb.RunComplete
	if runErr != nil {
		status = triggerdb.RunFailed
	}
	if err := db.FinishRun(context.WithoutCancel(ctx), r.ID, status, clock.Now()); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		return fmt.Errorf("run %s: %w", r.ID, runErr)
	}

	fmt.Fprintf(stdout, "run %s: %d chunks (%d processed, %d dropped, %d failed), %.0f s searched, %d triggers, loudest SNR %.2f\n",
		r.ID, st.Chunks, st.Processed, st.Dropped, st.Failed, st.LiveTime, st.Triggers, st.LoudestSNR)
	if o.topN <= 0 || st.Triggers == 0 {
		return nil
	}
	return printLoudest(ctx, db, r.ID, o.topN, cfg.GetSNRThreshold(), stdout)
}

// printLoudest lists the n loudest triggers of a run.
func printLoudest(ctx context.Context, db *triggerdb.DB, runID string, n int, minSNR float64, w io.Writer) error {
	trigs, err := db.Triggers(ctx, runID, triggerdb.TriggerQuery{MinSNR: minSNR})
	if err != nil {
		return err
	}
	sort.SliceStable(trigs, func(i, j int) bool { return trigs[i].SNR > trigs[j].SNR })
	if len(trigs) > n {
		trigs = trigs[:n]
	}
	for _, t := range trigs {
		fmt.Fprintf(w, "  %s\n", t)
	}
	return nil
}
