package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/dispatcher"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/metrics"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/osmreader"
	"github.com/flexosm/flex2pg/internal/schema"
	"github.com/flexosm/flex2pg/internal/sink"
)

var (
	bboxStr       string
	slimMode      bool
	dropMiddle    bool
	expireOutput  string
	expireMinZoom int
	expireMaxZoom int
)

var importCmd = &cobra.Command{
	Use:   "import <input.osm.pbf>",
	Short: "Run a full import against a style script's flex output tables",
	Long: `Run the complete import: a two-pass read of the PBF file builds a node
coordinate index, then streams nodes, ways and relations through the style
script's process_node/process_way/process_relation hooks, loading whatever
rows they produce into shadow tables that are swapped into place once the
import finishes.

Pass --slim to additionally populate the middle tables, which a later
'update' or 'replication' run needs to resolve dependency geometry and
propagate edits.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	importCmd.Flags().BoolVar(&slimMode, "slim", false, "Populate the middle tables for later incremental updates")
	importCmd.Flags().BoolVar(&dropMiddle, "drop", false, "Drop the middle tables once the import finishes")
	importCmd.Flags().StringVarP(&expireOutput, "expire-output", "e", "", "Path to write expired tile coordinates to")
	importCmd.Flags().IntVar(&expireMinZoom, "expire-min-zoom", 1, "Minimum zoom level for tile expiry")
	importCmd.Flags().IntVar(&expireMaxZoom, "expire-max-zoom", 18, "Maximum zoom level for tile expiry")
}

func runImport(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.SlimMode = slimMode
	cfg.DropMiddle = dropMiddle
	cfg.ExpireOutput = expireOutput
	cfg.ExpireMinZoom = expireMinZoom
	cfg.ExpireMaxZoom = expireMaxZoom
	log := logger.Get()

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	totalStart := time.Now()
	log.Info("starting import",
		zap.String("input", cfg.InputFile),
		zap.String("style", cfg.LuaFile),
		zap.Int("workers", cfg.Workers),
		zap.Int("projection", cfg.Projection),
		zap.Bool("slim", cfg.SlimMode),
	)

	pool, err := openPool(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect to postgresql", err)
	}
	defer pool.Close()

	eval, err := evaluator.NewLuaEvaluator(cfg.LuaFile, cfg.Projection, cfg.DBSchema)
	if err != nil {
		exitWithError("failed to load style script", err)
	}
	defer eval.Close()

	if err := schema.NewCapabilities(pool).Probe(ctx, eval.Tables()); err != nil {
		exitWithError("schema capability check failed", err)
	}

	var store *middle.MiddleStore
	if cfg.SlimMode {
		store = middle.NewMiddleStore(cfg, pool)
	}

	nodes, err := middle.NewNodeStore(ctx, true, cfg.OutputDir, store)
	if err != nil {
		exitWithError("failed to create node store", err)
	}

	snk := sink.NewSink(cfg, pool, eval.Tables(), true)
	reader := osmreader.NewPBFReader(cfg, nodes)
	dsp := dispatcher.New(cfg, eval, snk, store)

	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	go collector.Start(ctx)

	if err := dsp.RunImport(ctx, reader); err != nil {
		exitWithError("import failed", err)
	}

	if cfg.SlimMode && cfg.DropMiddle && store != nil {
		if err := store.DropTables(ctx); err != nil {
			log.Warn("failed to drop middle tables", zap.Error(err))
		}
	}

	stats := dsp.Stats()
	totalElapsed := time.Since(totalStart)
	log.Info("import complete",
		zap.Duration("total_time", totalElapsed.Round(time.Second)),
		zap.Int64("nodes", stats.NodesProcessed),
		zap.Int64("ways", stats.WaysProcessed),
		zap.Int64("relations", stats.RelationsProcessed),
	)
	fmt.Printf("Import complete in %s: %d nodes, %d ways, %d relations\n",
		totalElapsed.Round(time.Second), stats.NodesProcessed, stats.WaysProcessed, stats.RelationsProcessed)
}
