// Command linktracks links the stored detections of one or more videos into
// identities and records the run in the same database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gofrs/flock"

	"github.com/banshee-data/trajlink/internal/config"
	"github.com/banshee-data/trajlink/internal/linking"
	"github.com/banshee-data/trajlink/internal/monitoring"
	"github.com/banshee-data/trajlink/internal/pose"
	"github.com/banshee-data/trajlink/internal/storage/sqlite"
	"github.com/banshee-data/trajlink/internal/version"
)

type options struct {
	dbPath        string
	videos        string // comma-separated names; empty links every video
	configPath    string
	maxFrames     int
	pretracked    bool
	keepShort     bool
	deleteLowConf bool
	mergeClose    bool
	saveLinked    bool
	verbosity     int
	rounded       bool // table style for terminals
}

func main() {
	var opt options
	flag.StringVar(&opt.dbPath, "db", "trajlink.db", "path to sqlite DB file")
	flag.StringVar(&opt.videos, "videos", "", "comma-separated video names (default: all)")
	flag.StringVar(&opt.configPath, "config", "", "linking config, .json or .toml (default: built-in defaults)")
	flag.IntVar(&opt.maxFrames, "max-frames", 0, "process at most this many frames per video (0 = all)")
	flag.BoolVar(&opt.pretracked, "pretracked", false, "treat detector slots as existing tracklets")
	flag.BoolVar(&opt.keepShort, "keep-short", false, "do not delete short identities")
	flag.BoolVar(&opt.deleteLowConf, "delete-low-conf", false, "delete identities with low mean confidence")
	flag.BoolVar(&opt.mergeClose, "merge-close", false, "merge overlapping identities that stay close")
	flag.BoolVar(&opt.saveLinked, "save-linked", false, "store each linked sequence as video <name>.linked")
	flag.IntVar(&opt.verbosity, "v", -1, "log verbosity (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("linktracks"))
		return
	}
	opt.rounded = isTerminal(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opt, os.Stdout); err != nil {
		log.Fatalf("linktracks: %v", err)
	}
}

func loadConfig(path string) (*config.LinkingConfig, error) {
	if path == "" {
		return config.EmptyLinkingConfig(), nil
	}
	return config.LoadLinkingConfig(path)
}

// selectVideos resolves the requested names, or every stored video.
func selectVideos(ctx context.Context, store *sqlite.DetectionStore, names string) ([]*sqlite.Video, error) {
	if names == "" {
		videos, err := store.ListVideos(ctx)
		if err != nil {
			return nil, err
		}
		var out []*sqlite.Video
		for _, v := range videos {
			if !strings.HasSuffix(v.Name, ".linked") {
				out = append(out, v)
			}
		}
		return out, nil
	}
	var out []*sqlite.Video
	for _, name := range strings.Split(names, ",") {
		v, err := store.FindVideo(ctx, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func run(ctx context.Context, opt options, stdout io.Writer) error {
	cfg, err := loadConfig(opt.configPath)
	if err != nil {
		return err
	}
	params := linking.ParamsFromConfig(cfg)
	monitoring.SetVerbosity(params.Verbosity)
	if opt.verbosity >= 0 {
		monitoring.SetVerbosity(opt.verbosity)
	}

	// One run per database at a time; readers are unaffected.
	lock := flock.New(opt.dbPath + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another linktracks run holds %s", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	db, err := sqlite.Open(opt.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	detections := sqlite.NewDetectionStore(db)
	runs := sqlite.NewRunStore(db)

	videos, err := selectVideos(ctx, detections, opt.videos)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return fmt.Errorf("no videos in %s", opt.dbPath)
	}
	srcs := make([]pose.Source, len(videos))
	for i, v := range videos {
		seq, err := detections.LoadSequence(ctx, v.VideoID)
		if err != nil {
			return fmt.Errorf("load %q: %w", v.Name, err)
		}
		srcs[i] = seq
		monitoring.Logf("loaded %q: %d slots, frames [%d, %d]", v.Name, seq.NumTargets(), v.FirstFrame, v.LastFrame)
	}

	pl := linking.NewPipeline(params)
	pl.Pretracked = opt.pretracked
	pl.DeleteShort = !opt.keepShort
	pl.DeleteLowConf = opt.deleteLowConf
	pl.MergeClose = opt.mergeClose
	pl.MaxFrames = opt.maxFrames

	res, err := pl.Run(ctx, srcs)
	if err != nil {
		return err
	}

	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	statsJSON, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	var ids []sqlite.Identity
	for i, vr := range res.Videos {
		ids = append(ids, sqlite.IdentitiesOf(videos[i].VideoID, vr.Sequence)...)
		if opt.saveLinked {
			if _, err := detections.SaveSequence(ctx, videos[i].Name+".linked", vr.Sequence); err != nil {
				return fmt.Errorf("save linked %q: %w", videos[i].Name, err)
			}
		}
	}
	rec := &sqlite.Run{Stage: res.Stats.StageName, ParamsJSON: paramsJSON, StatsJSON: statsJSON}
	if err := runs.Insert(ctx, rec, ids); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	names := make([]string, len(videos))
	for i, v := range videos {
		names[i] = v.Name
	}
	fmt.Fprintf(stdout, "run %s: %d videos, %d identities\n", rec.RunID, len(videos), len(ids))
	fmt.Fprintln(stdout, renderStats(names, res.Stats.Videos, opt.rounded))
	return nil
}
