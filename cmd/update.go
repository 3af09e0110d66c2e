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
	"github.com/flexosm/flex2pg/internal/dispatcher"
	"github.com/flexosm/flex2pg/internal/evaluator"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/metrics"
	"github.com/flexosm/flex2pg/internal/middle"
	"github.com/flexosm/flex2pg/internal/osmreader"
	"github.com/flexosm/flex2pg/internal/schema"
	"github.com/flexosm/flex2pg/internal/sink"
)

var updateCmd = &cobra.Command{
	Use:   "update <changes.osc[.gz]>",
	Short: "Apply a single OSC changefile against an existing slim database",
	Long: `Apply one changefile's creates/modifies/deletes to the middle tables and
the style script's output tables, then propagate the edit to every way and
relation that depends on a changed primitive, bounded by
--propagation-max-depth.

This requires the target database to already hold middle tables from a
prior '--slim' import.`,
	Args: cobra.ExactArgs(1),
	Run:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.Mode = "update"
	log := logger.Get()

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
	log.Info("starting update", zap.String("input", cfg.InputFile), zap.String("style", cfg.LuaFile))

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

	store := middle.NewMiddleStore(cfg, pool)
	snk := sink.NewSink(cfg, pool, eval.Tables(), false)
	dsp := dispatcher.New(cfg, eval, snk, store)

	collector := metrics.NewCollector(cfg.MetricsInterval, logger.Named("metrics"))
	go collector.Start(ctx)

	changefile := osmreader.NewChangefileReader()
	changes, errs := changefile.Run(ctx, cfg.InputFile)
	if err := dsp.RunUpdate(ctx, changes, errs); err != nil {
		exitWithError("update failed", err)
	}

	stats := dsp.Stats()
	oscStats := changefile.Stats()
	totalElapsed := time.Since(totalStart)
	log.Info("update complete",
		zap.Duration("total_time", totalElapsed.Round(time.Second)),
		zap.Int64("nodes", stats.NodesProcessed),
		zap.Int64("ways", stats.WaysProcessed),
		zap.Int64("relations", stats.RelationsProcessed),
		zap.Int64("rows_rebuilt", stats.RowsRebuilt),
		zap.Int64("rows_dropped", stats.RowsDropped),
		zap.Int("expired_tiles", stats.ExpiredTiles),
		zap.Int64("created", oscStats.NodesCreated+oscStats.WaysCreated+oscStats.RelationsCreated),
		zap.Int64("modified", oscStats.NodesModified+oscStats.WaysModified+oscStats.RelationsModified),
		zap.Int64("deleted", oscStats.NodesDeleted+oscStats.WaysDeleted+oscStats.RelationsDeleted),
	)
	fmt.Printf("Update complete in %s: %d rebuilt, %d dropped\n",
		totalElapsed.Round(time.Second), stats.RowsRebuilt, stats.RowsDropped)
}
