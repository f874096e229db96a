package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/meridian/internal/domain"
	"github.com/rcliao/meridian/internal/selection"
)

// Dir and File locate the config relative to the working directory.
const (
	Dir  = ".meridian"
	File = "config.yaml"
)

// Config represents the meridian configuration.
type Config struct {
	Selection    SelectionConfig    `yaml:"selection"`
	Prioritizer  PrioritizerConfig  `yaml:"prioritizer"`
	Distribution DistributionConfig `yaml:"distribution"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
}

// SelectionConfig tunes the context selector. Durations use Go syntax ("200ms").
type SelectionConfig struct {
	MaxSelectionTime    string  `yaml:"max_selection_time"`
	TargetHitRate       float64 `yaml:"target_hit_rate"`
	TargetSizeReduction float64 `yaml:"target_size_reduction"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CacheTTL            string  `yaml:"cache_ttl"`
	DefaultMaxTokens    int     `yaml:"default_max_tokens"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	MaxPredictions      int     `yaml:"max_predictions"`
	HeaderLength        int     `yaml:"header_length"`
}

type PrioritizerConfig struct {
	RecencyDecayHours    float64                  `yaml:"recency_decay_hours"`
	FrequencyWindowDays  int                      `yaml:"frequency_window_days"`
	SizePenaltyThreshold int                      `yaml:"size_penalty_threshold"`
	Weights              selection.ScoringWeights `yaml:"weights"`
}

type DistributionConfig struct {
	DefaultStrategy string `yaml:"default_strategy"`
	UserID          string `yaml:"user_id"`
}

// StorageConfig picks the repository backend: "memory" or "sqlite".
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// LogConfig controls the slog handler: level debug|info|warn|error, format text|json.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	sel := selection.DefaultSelectorConfig()
	pri := selection.DefaultPrioritizerConfig()
	return &Config{
		Selection: SelectionConfig{
			MaxSelectionTime:    sel.MaxSelectionTime.String(),
			TargetHitRate:       sel.TargetHitRate,
			TargetSizeReduction: sel.TargetSizeReduction,
			SimilarityThreshold: sel.SimilarityThreshold,
			CacheTTL:            sel.CacheTTL.String(),
			DefaultMaxTokens:    sel.DefaultMaxTokens,
			EmbeddingDimensions: 256,
			MaxPredictions:      10,
			HeaderLength:        200,
		},
		Prioritizer: PrioritizerConfig{
			RecencyDecayHours:    pri.RecencyDecayHours,
			FrequencyWindowDays:  pri.FrequencyWindowDays,
			SizePenaltyThreshold: pri.SizePenaltyThreshold,
			Weights:              pri.Weights,
		},
		Distribution: DistributionConfig{
			DefaultStrategy: string(domain.StrategyHybrid),
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(Dir, "meridian.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// WriteDefault writes the default configuration to a file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# meridian configuration
# Strategies: round_robin, load_balanced, skill_matched, priority_based, hybrid
# Storage drivers: memory, sqlite

`
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	return os.WriteFile(path, append([]byte(header), data...), 0600)
}

func (c *Config) Validate() error {
	if _, err := c.SelectorConfig(); err != nil {
		return err
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SelectorConfig converts the selection section for the selector.
func (c *Config) SelectorConfig() (selection.SelectorConfig, error) {
	maxTime, err := time.ParseDuration(c.Selection.MaxSelectionTime)
	if err != nil {
		return selection.SelectorConfig{}, fmt.Errorf("selection.max_selection_time: %w", err)
	}
	ttl, err := time.ParseDuration(c.Selection.CacheTTL)
	if err != nil {
		return selection.SelectorConfig{}, fmt.Errorf("selection.cache_ttl: %w", err)
	}
	return selection.SelectorConfig{
		MaxSelectionTime:    maxTime,
		TargetHitRate:       c.Selection.TargetHitRate,
		TargetSizeReduction: c.Selection.TargetSizeReduction,
		SimilarityThreshold: c.Selection.SimilarityThreshold,
		CacheTTL:            ttl,
		DefaultMaxTokens:    c.Selection.DefaultMaxTokens,
	}, nil
}

func (c *Config) PrioritizerConfig() selection.PrioritizerConfig {
	return selection.PrioritizerConfig{
		RecencyDecayHours:    c.Prioritizer.RecencyDecayHours,
		FrequencyWindowDays:  c.Prioritizer.FrequencyWindowDays,
		SizePenaltyThreshold: c.Prioritizer.SizePenaltyThreshold,
		Weights:              c.Prioritizer.Weights,
	}
}

// Strategy returns the default distribution strategy. Empty means hybrid.
func (c *Config) Strategy() (domain.DistributionStrategy, error) {
	if c.Distribution.DefaultStrategy == "" {
		return domain.StrategyHybrid, nil
	}
	st, ok := domain.ParseStrategy(c.Distribution.DefaultStrategy)
	if !ok {
		return "", fmt.Errorf("unknown distribution strategy %q", c.Distribution.DefaultStrategy)
	}
	return st, nil
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", l.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
