package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Mode selects which dispatcher state machine a run drives.
type Mode string

const (
	ModeImport Mode = "import"
	ModeUpdate Mode = "update"
)

// BBox represents a geographic bounding box.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box.
func (b *BBox) Contains(lat, lon float64) bool {
	if !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat".
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Config holds the global configuration for an import or update run.
type Config struct {
	Mode Mode

	// Input settings
	InputFile string // .osm.pbf for import, .osc/.osc.gz for a one-shot update
	BBox      *BBox
	LuaFile   string // flex output style script

	// Replication (continuous update mode)
	ReplicationSource   string // e.g. "planet-minute", "geofabrik/<region>", or a URL
	ReplicationStateFile string
	ReplicationMaxDiffs int // 0 = unbounded

	// Output / working directory
	OutputDir  string
	Projection int // target SRID for emitted geometry (4326 or 3857)

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Processing settings
	Workers        int
	WatermarkBytes int64 // per-table staging buffer flush threshold
	PropagationMaxDepth int

	// Feature flags
	Verbose bool

	// Slim mode (middle store retained for incremental updates)
	SlimMode   bool
	DropMiddle bool

	// Tile expiry settings
	ExpireOutput  string
	ExpireMinZoom int
	ExpireMaxZoom int

	// Tablespace settings (defaults; a table's own schema.Table options take precedence)
	TablespaceMain  string
	TablespaceIndex string

	// Logging and metrics
	LogFile         string
	MetricsInterval time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:                 ModeImport,
		OutputDir:            "./flex2pg_data",
		Projection:           4326,
		DBHost:               "localhost",
		DBPort:               5432,
		DBName:               "osm",
		DBUser:               "postgres",
		DBSchema:             "public",
		Workers:              runtime.NumCPU(),
		WatermarkBytes:       8 * 1024 * 1024,
		PropagationMaxDepth:  8,
		ExpireMinZoom:        1,
		ExpireMaxZoom:        18,
		MetricsInterval:      30 * time.Second,
	}
}

// ConnectionString returns a PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Validate checks that the configuration is internally consistent.
// It does not touch the database; live capability checks (tablespaces,
// schemas) are the schema package's job once a connection exists.
func (c *Config) Validate() error {
	if c.LuaFile == "" {
		return fmt.Errorf("a flex style script (--style) is required")
	}
	if c.Mode == ModeImport && c.InputFile == "" {
		return fmt.Errorf("input file is required for import mode")
	}
	if c.Mode == ModeUpdate && c.InputFile == "" && c.ReplicationSource == "" {
		return fmt.Errorf("update mode requires either an input changefile or a replication source")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.WatermarkBytes < 4096 {
		return fmt.Errorf("watermark bytes must be at least 4096")
	}
	if c.PropagationMaxDepth < 1 {
		return fmt.Errorf("propagation max depth must be at least 1")
	}
	return nil
}
