// Package config loads the YAML description of a database: where it lives,
// where its JSON-lines sources are and which tables and indexes it has.
//
//	data_dir: ./data          # empty keeps everything in memory
//	source_dir: ./remote
//	log_level: info
//	metrics_addr: 127.0.0.1:9100
//	tables:
//	  - key: todos
//	    key_path: id
//	    indexes:
//	      enabled: active
//	    deleted_field: deleted
//	    updated_field: updated_at
//	    force_sync: false
package config

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/drpcorg/offline/filesource"
	"github.com/drpcorg/offline/tables"
	"gopkg.in/yaml.v3"
)

type Table struct {
	Key     string `yaml:"key"`
	KeyPath string `yaml:"key_path"`
	// Indexes maps index names to the column they index.
	Indexes      map[string]string `yaml:"indexes"`
	ForceSync    bool              `yaml:"force_sync"`
	DeletedField string            `yaml:"deleted_field"`
	UpdatedField string            `yaml:"updated_field"`
}

type Config struct {
	DataDir     string  `yaml:"data_dir"`
	SourceDir   string  `yaml:"source_dir"`
	CacheSize   int     `yaml:"cache_size"`
	LogLevel    string  `yaml:"log_level"`
	MetricsAddr string  `yaml:"metrics_addr"`
	Tables      []Table `yaml:"tables"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.SourceDir == "" {
		cfg.SourceDir = "."
	}
	return &cfg, nil
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(c.LogLevel))
	return level, err
}

// BuildTables turns the table section into definitions backed by
// JSON-lines sources under SourceDir. Indexes are ordered by name.
func (c *Config) BuildTables() []*tables.Table {
	ts := make([]*tables.Table, 0, len(c.Tables))
	for _, tc := range c.Tables {
		t := &tables.Table{
			Key:       tc.Key,
			KeyPath:   tc.KeyPath,
			ForceSync: tc.ForceSync,
			Source:    filesource.New(c.SourceDir, tc.Key, tc.UpdatedField),
		}
		names := make([]string, 0, len(tc.Indexes))
		for name := range tc.Indexes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.Indexes = append(t.Indexes, tables.Column(name, tc.Indexes[name]))
		}
		if field := tc.DeletedField; field != "" {
			t.IsItemDeleted = func(row tables.Row) (bool, error) {
				deleted, _ := row[field].(bool)
				return deleted, nil
			}
		}
		ts = append(ts, t)
	}
	return ts
}
