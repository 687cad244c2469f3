// Package config provides unified configuration for the moneytrail pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode represents the pipeline stage to run.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeImport Mode = "import"
	ModeDerive Mode = "derive"
)

// Config holds the unified configuration for the pipeline.
type Config struct {
	// Mode specifies which stages to run: all, import, derive
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// DBPath is the SQLite database path
	DBPath string `json:"db_path" yaml:"db_path"`

	// CheckpointPath is the pipeline checkpoint file path
	CheckpointPath string `json:"checkpoint_path" yaml:"checkpoint_path"`

	// Cycles is the set of election cycles to import, as 4-digit years
	Cycles []string `json:"cycles" yaml:"cycles"`

	// Raw input layout
	Raw RawConfig `json:"raw" yaml:"raw"`

	// Import stage configuration
	Import ImportConfig `json:"import" yaml:"import"`

	// Source configuration (where raw bulk files live)
	Source SourceConfig `json:"source" yaml:"source"`

	// Logging configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// RawConfig holds the raw input directory layout, relative to DataDir/raw
// unless absolute.
type RawConfig struct {
	// CampaignFinanceDir holds {yy}cands/{yy}cmtes/{yy}pacs/{yy}pac_other/{yy}indivs files
	CampaignFinanceDir string `json:"campaign_finance_dir" yaml:"campaign_finance_dir"`

	// ExpendDir holds {yy}expends files
	ExpendDir string `json:"expend_dir" yaml:"expend_dir"`

	// Dir527 holds cmtes527/rcpts527/expends527 files
	Dir527 string `json:"dir_527" yaml:"dir_527"`

	// ReferenceDir holds inflation.csv and CRP_Categories.txt
	ReferenceDir string `json:"reference_dir" yaml:"reference_dir"`
}

// ImportConfig holds import stage tuning.
type ImportConfig struct {
	// BatchSize is the number of rows buffered per insert batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// CommitEvery is the number of rows between transaction commits
	CommitEvery int `json:"commit_every" yaml:"commit_every"`
}

// SourceConfig holds input source configuration.
type SourceConfig struct {
	// Type is the source type: local, s3
	Type string `json:"type" yaml:"type"`

	// ScratchDir is where S3 objects are downloaded before parsing
	ScratchDir string `json:"scratch_dir" yaml:"scratch_dir"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 input source configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Prefix is the key prefix under which raw files are stored
	Prefix string `json:"prefix" yaml:"prefix"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the log level: debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// File is an optional log file path (in addition to the console)
	File string `json:"file" yaml:"file"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data",
		Cycles:  []string{"2004", "2008", "2012", "2020"},
		Raw: RawConfig{
			CampaignFinanceDir: "",
			ExpendDir:          "",
			Dir527:             "",
			ReferenceDir:       "",
		},
		Import: ImportConfig{
			BatchSize:   50000,
			CommitEvery: 500000,
		},
		Source: SourceConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}

	rawRoot := filepath.Join(c.DataDir, "raw")
	if c.Raw.CampaignFinanceDir == "" {
		c.Raw.CampaignFinanceDir = filepath.Join(rawRoot, "campaign_finance")
	}
	if c.Raw.ExpendDir == "" {
		c.Raw.ExpendDir = filepath.Join(rawRoot, "expend")
	}
	if c.Raw.Dir527 == "" {
		c.Raw.Dir527 = filepath.Join(rawRoot, "527")
	}
	if c.Raw.ReferenceDir == "" {
		c.Raw.ReferenceDir = filepath.Join(rawRoot, "reference")
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "moneytrail.db")
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = filepath.Join(c.DataDir, "checkpoint.json")
	}
	if c.Source.ScratchDir == "" {
		c.Source.ScratchDir = filepath.Join(c.DataDir, "scratch")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeImport, ModeDerive:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, import, or derive)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if len(c.Cycles) == 0 {
		return fmt.Errorf("at least one election cycle is required")
	}
	for _, cycle := range c.Cycles {
		if len(cycle) != 4 {
			return fmt.Errorf("invalid cycle %q: must be a 4-digit year", cycle)
		}
		for _, r := range cycle {
			if r < '0' || r > '9' {
				return fmt.Errorf("invalid cycle %q: must be a 4-digit year", cycle)
			}
		}
	}

	if c.Source.Type != "local" && c.Source.Type != "s3" {
		return fmt.Errorf("invalid source type: %s (must be local or s3)", c.Source.Type)
	}
	if c.Source.Type == "s3" && c.Source.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when source type is s3")
	}

	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be positive, got %d", c.Import.BatchSize)
	}
	if c.Import.CommitEvery < c.Import.BatchSize {
		return fmt.Errorf("import.commit_every (%d) must be at least import.batch_size (%d)",
			c.Import.CommitEvery, c.Import.BatchSize)
	}

	return nil
}

// ShouldRunImport returns true if the import stage should run.
func (c *Config) ShouldRunImport() bool {
	return c.Mode == ModeAll || c.Mode == ModeImport
}

// ShouldRunDerive returns true if the derive stage should run.
func (c *Config) ShouldRunDerive() bool {
	return c.Mode == ModeAll || c.Mode == ModeDerive
}

// CycleSuffix returns the 2-digit file suffix for a 4-digit cycle
// ("2004" → "04").
func CycleSuffix(cycle string) string {
	return cycle[2:]
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MONEYTRAIL_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MONEYTRAIL_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("MONEYTRAIL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MONEYTRAIL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MONEYTRAIL_CHECKPOINT_PATH"); v != "" {
		cfg.CheckpointPath = v
	}
	if v := os.Getenv("MONEYTRAIL_CYCLES"); v != "" {
		cfg.Cycles = strings.Split(v, ",")
	}

	// Import configuration
	if v := os.Getenv("MONEYTRAIL_IMPORT_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Import.BatchSize)
	}
	if v := os.Getenv("MONEYTRAIL_IMPORT_COMMIT_EVERY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Import.CommitEvery)
	}

	// Source configuration
	if v := os.Getenv("MONEYTRAIL_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("MONEYTRAIL_S3_BUCKET"); v != "" {
		cfg.Source.S3.Bucket = v
	}
	if v := os.Getenv("MONEYTRAIL_S3_REGION"); v != "" {
		cfg.Source.S3.Region = v
	}
	if v := os.Getenv("MONEYTRAIL_S3_ENDPOINT"); v != "" {
		cfg.Source.S3.Endpoint = v
	}
	if v := os.Getenv("MONEYTRAIL_S3_PREFIX"); v != "" {
		cfg.Source.S3.Prefix = v
	}

	// Logging configuration
	if v := os.Getenv("MONEYTRAIL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MONEYTRAIL_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
}

// EnsureDirectories creates the directories the pipeline writes into.
// Raw input directories are deliberately not created here: their absence is
// a prerequisite failure the import stage must report, not paper over.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		filepath.Dir(c.DBPath),
		filepath.Dir(c.CheckpointPath),
	}
	if c.Source.Type == "s3" {
		dirs = append(dirs, c.Source.ScratchDir)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
