package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/flexosm/flex2pg/internal/config"
	"github.com/flexosm/flex2pg/internal/logger"
	"github.com/flexosm/flex2pg/internal/proj"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
	styleFile       string
	projectionStr   string
	tablespaceMain  string
	tablespaceIndex string
	configFile      string
)

// configFileFromArgs pre-scans os.Args for --config/-c, ahead of cobra's
// own flag parsing, so a config file's values can seed the flag defaults
// registered in init() below — an explicit flag passed on the same command
// line still overrides whatever the file set, since cobra always applies a
// flag the user actually typed over its registered default.
func configFileFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "flex2pg",
	Short: "Flex output pipeline for loading OSM data into PostGIS",
	Long: `flex2pg streams OSM primitives through a Lua style script's flex output
tables and loads the results into PostgreSQL/PostGIS.

Features:
  - Two-pass PBF import with a memory-mapped node coordinate index
  - Lua flex style scripts defining arbitrary output tables
  - Slim mode: a middle store that supports incremental OSC updates
  - Minutely/hourly replication against planet or Geofabrik mirrors`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval
		cfg.LuaFile = styleFile
		cfg.TablespaceMain = tablespaceMain
		cfg.TablespaceIndex = tablespaceIndex

		if logFile != "" {
			logger.InitWithFile(verbose, logFile)
		} else {
			logger.Init(verbose)
		}

		if projectionStr != "" {
			srid, err := proj.ParseSRID(projectionStr)
			if err != nil {
				exitWithError("invalid projection", err)
			}
			cfg.Projection = srid
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if path := configFileFromArgs(os.Args[1:]); path != "" {
		fc, err := config.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "flex2pg: %v\n", err)
			os.Exit(1)
		}
		if err := fc.ApplyTo(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "flex2pg: %v\n", err)
			os.Exit(1)
		}
		configFile = path
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "Path to a YAML config file; flags override its values")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for the middle store's node index and replication cache")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// styleFile/projectionStr/tablespaceMain/tablespaceIndex/logFile/metricsInterval
	// are bound through local vars rather than straight into cfg, since
	// projectionStr needs post-parse validation via proj.ParseSRID; their
	// defaults are seeded from cfg (already possibly set by --config) so an
	// unset flag doesn't stomp a config-file value back to a bare literal.
	rootCmd.PersistentFlags().StringVarP(&styleFile, "style", "S", cfg.LuaFile, "Flex style Lua script defining output tables")
	rootCmd.PersistentFlags().StringVarP(&projectionStr, "projection", "E", "", "Target projection SRID (4326 or 3857); defaults to the config file's value, or 4326")
	rootCmd.PersistentFlags().StringVar(&tablespaceMain, "tablespace-main", cfg.TablespaceMain, "Default tablespace for table data")
	rootCmd.PersistentFlags().StringVar(&tablespaceIndex, "tablespace-index", cfg.TablespaceIndex, "Default tablespace for indexes")
	rootCmd.PersistentFlags().Int64Var(&cfg.WatermarkBytes, "watermark-bytes", cfg.WatermarkBytes, "Per-table staging buffer flush threshold, in bytes")
	rootCmd.PersistentFlags().IntVar(&cfg.PropagationMaxDepth, "propagation-max-depth", cfg.PropagationMaxDepth, "Maximum dependency depth walked when re-rendering affected geometries during an update")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", cfg.LogFile, "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m)")

	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	os.Exit(1)
}
