package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML shape accepted by --config. Every field is a
// pointer so an omitted key leaves the corresponding Config field at
// whatever a flag (or its default) already set — a config file only
// overrides what it explicitly mentions, and an explicit flag always wins
// over either.
type FileConfig struct {
	Mode    *string `yaml:"mode,omitempty"`
	Style   *string `yaml:"style,omitempty"`
	Input   *string `yaml:"input,omitempty"`
	BBox    *string `yaml:"bbox,omitempty"`

	Replication *ReplicationFileConfig `yaml:"replication,omitempty"`

	OutputDir  *string `yaml:"output_dir,omitempty"`
	Projection *int    `yaml:"projection,omitempty"`

	Database *DatabaseFileConfig `yaml:"database,omitempty"`

	Workers             *int   `yaml:"workers,omitempty"`
	WatermarkBytes      *int64 `yaml:"watermark_bytes,omitempty"`
	PropagationMaxDepth *int   `yaml:"propagation_max_depth,omitempty"`

	SlimMode   *bool `yaml:"slim_mode,omitempty"`
	DropMiddle *bool `yaml:"drop_middle,omitempty"`

	Expire *ExpireFileConfig `yaml:"expire,omitempty"`

	TablespaceMain  *string `yaml:"tablespace_main,omitempty"`
	TablespaceIndex *string `yaml:"tablespace_index,omitempty"`

	Verbose         *bool   `yaml:"verbose,omitempty"`
	LogFile         *string `yaml:"log_file,omitempty"`
	MetricsInterval *string `yaml:"metrics_interval,omitempty"`
}

type DatabaseFileConfig struct {
	Host     *string `yaml:"host,omitempty"`
	Port     *int    `yaml:"port,omitempty"`
	Name     *string `yaml:"name,omitempty"`
	User     *string `yaml:"user,omitempty"`
	Password *string `yaml:"password,omitempty"`
	Schema   *string `yaml:"schema,omitempty"`
}

type ReplicationFileConfig struct {
	Source    *string `yaml:"source,omitempty"`
	StateFile *string `yaml:"state_file,omitempty"`
	MaxDiffs  *int    `yaml:"max_diffs,omitempty"`
}

type ExpireFileConfig struct {
	Output  *string `yaml:"output,omitempty"`
	MinZoom *int    `yaml:"min_zoom,omitempty"`
	MaxZoom *int    `yaml:"max_zoom,omitempty"`
}

// LoadFile reads and parses a YAML config file. It does not validate the
// result — Config.Validate, run after ApplyTo and flag parsing, is the
// single source of truth for that.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return &fc, nil
}

// ApplyTo copies every field the file set onto cfg. Called before flag
// registration reads cfg's fields as flag defaults, so a flag the user
// actually passes on the command line still wins: cobra applies an
// explicit flag value over whatever default it was registered with.
func (fc *FileConfig) ApplyTo(cfg *Config) error {
	if fc.Mode != nil {
		cfg.Mode = Mode(*fc.Mode)
	}
	if fc.Style != nil {
		cfg.LuaFile = *fc.Style
	}
	if fc.Input != nil {
		cfg.InputFile = *fc.Input
	}
	if fc.BBox != nil {
		bbox, err := ParseBBox(*fc.BBox)
		if err != nil {
			return fmt.Errorf("config file bbox: %w", err)
		}
		cfg.BBox = bbox
	}
	if fc.OutputDir != nil {
		cfg.OutputDir = *fc.OutputDir
	}
	if fc.Projection != nil {
		cfg.Projection = *fc.Projection
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.WatermarkBytes != nil {
		cfg.WatermarkBytes = *fc.WatermarkBytes
	}
	if fc.PropagationMaxDepth != nil {
		cfg.PropagationMaxDepth = *fc.PropagationMaxDepth
	}
	if fc.SlimMode != nil {
		cfg.SlimMode = *fc.SlimMode
	}
	if fc.DropMiddle != nil {
		cfg.DropMiddle = *fc.DropMiddle
	}
	if fc.TablespaceMain != nil {
		cfg.TablespaceMain = *fc.TablespaceMain
	}
	if fc.TablespaceIndex != nil {
		cfg.TablespaceIndex = *fc.TablespaceIndex
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}
	if fc.MetricsInterval != nil {
		d, err := time.ParseDuration(*fc.MetricsInterval)
		if err != nil {
			return fmt.Errorf("config file metrics_interval: %w", err)
		}
		cfg.MetricsInterval = d
	}

	if db := fc.Database; db != nil {
		if db.Host != nil {
			cfg.DBHost = *db.Host
		}
		if db.Port != nil {
			cfg.DBPort = *db.Port
		}
		if db.Name != nil {
			cfg.DBName = *db.Name
		}
		if db.User != nil {
			cfg.DBUser = *db.User
		}
		if db.Password != nil {
			cfg.DBPassword = *db.Password
		}
		if db.Schema != nil {
			cfg.DBSchema = *db.Schema
		}
	}

	if repl := fc.Replication; repl != nil {
		if repl.Source != nil {
			cfg.ReplicationSource = *repl.Source
		}
		if repl.StateFile != nil {
			cfg.ReplicationStateFile = *repl.StateFile
		}
		if repl.MaxDiffs != nil {
			cfg.ReplicationMaxDiffs = *repl.MaxDiffs
		}
	}

	if exp := fc.Expire; exp != nil {
		if exp.Output != nil {
			cfg.ExpireOutput = *exp.Output
		}
		if exp.MinZoom != nil {
			cfg.ExpireMinZoom = *exp.MinZoom
		}
		if exp.MaxZoom != nil {
			cfg.ExpireMaxZoom = *exp.MaxZoom
		}
	}

	return nil
}
