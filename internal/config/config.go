// Package config loads Laminark's JSON configuration files and the
// environment variables that override them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// EmbeddingMode selects which EmbeddingWorker backend the orchestrator
// constructs at startup.
type EmbeddingMode string

const (
	EmbeddingModeLocal     EmbeddingMode = "local"
	EmbeddingModePiggyback EmbeddingMode = "piggyback"
	EmbeddingModeHybrid    EmbeddingMode = "hybrid"
)

// Config is the root configuration for a Laminark server process, loaded
// from config.json and overridable by environment variables.
type Config struct {
	DataDir       string        `json:"data_dir"`
	DebugLogging  bool          `json:"debug_logging"`
	EmbeddingMode EmbeddingMode `json:"embedding_mode"`
	WebPort       int           `json:"web_port"`

	Store  StoreConfig  `json:"store"`
	Graph  GraphConfig  `json:"graph"`
	Hygiene HygieneConfig `json:"hygiene"`
	Topic  TopicConfig  `json:"topic"`
}

// StoreConfig controls Store-level behavior.
type StoreConfig struct {
	BusyTimeoutSeconds int `json:"busy_timeout_seconds"`
}

// GraphConfig mirrors graph-extraction.json.
type GraphConfig struct {
	MaxDegree            int     `json:"max_degree"`
	MinEdgeConfidence    float64 `json:"min_edge_confidence"`
	MaxFileNodesPerEvent int     `json:"max_file_nodes_per_observation"`
	HalfLifeDays         float64 `json:"half_life_days"`
	MaxAgeDays           float64 `json:"max_age_days"`
	DecayFloor           float64 `json:"decay_floor"`
	DeleteThreshold      float64 `json:"delete_threshold"`
}

// HygieneConfig mirrors hygiene.json — curation tiers for orphan pruning.
type HygieneConfig struct {
	PruneOrphansAfterDays float64 `json:"prune_orphans_after_days"`
}

// TopicConfig controls TopicDetector window/threshold bounds.
type TopicConfig struct {
	WindowMin      int     `json:"window_min"`
	WindowMax      int     `json:"window_max"`
	ThresholdMin   float64 `json:"threshold_min"`
	ThresholdMax   float64 `json:"threshold_max"`
	ThresholdStart float64 `json:"threshold_start"`
}

// Default returns the built-in default configuration, mirroring the shape
// of the teacher repo's DefaultConfig constructor.
func Default() *Config {
	return &Config{
		DataDir:       defaultDataDir(),
		DebugLogging:  false,
		EmbeddingMode: EmbeddingModeLocal,
		WebPort:       37820,
		Store: StoreConfig{
			BusyTimeoutSeconds: 5,
		},
		Graph: GraphConfig{
			MaxDegree:            50,
			MinEdgeConfidence:    0.45,
			MaxFileNodesPerEvent: 5,
			HalfLifeDays:         30,
			MaxAgeDays:           180,
			DecayFloor:           0.05,
			DeleteThreshold:      0.08,
		},
		Hygiene: HygieneConfig{
			PruneOrphansAfterDays: 90,
		},
		Topic: TopicConfig{
			WindowMin:      5,
			WindowMax:      20,
			ThresholdMin:   0.15,
			ThresholdMax:   0.55,
			ThresholdStart: 0.3,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".laminark"
	}
	return filepath.Join(home, ".laminark")
}

// Load reads config.json from dir, falling back to defaults (with a logged
// caller-visible warning) if the file does not exist. A malformed file is a
// fatal configuration error, since it indicates the operator intended to
// override defaults and got it wrong.
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, "config.json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		applyEnv(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config.json: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables on top of file-provided/default
// config, per spec.md §6.
func applyEnv(cfg *Config) {
	if dir := os.Getenv("LAMINARK_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if debug := os.Getenv("LAMINARK_DEBUG"); debug == "1" || debug == "true" {
		cfg.DebugLogging = true
	}
	if mode := os.Getenv("LAMINARK_EMBEDDING_MODE"); mode != "" {
		cfg.EmbeddingMode = EmbeddingMode(mode)
	}
	if port := os.Getenv("LAMINARK_WEB_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.WebPort = p
		}
	}
}

// DBPath returns the path to the single shared database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data.db")
}
