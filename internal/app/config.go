// Package app holds loader configuration and wiring shared by the binaries.
package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/learnergraph-backend/internal/graphload"
	"github.com/yungbote/learnergraph-backend/internal/history"
	"github.com/yungbote/learnergraph-backend/internal/normalization"
	"github.com/yungbote/learnergraph-backend/internal/platform/envutil"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// Loader modes.
const (
	ModeTwoPhase = "two_phase"
	ModeSimple   = "simple"
)

// Source kinds.
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

type Config struct {
	Environment string
	Version     string

	Mode       string
	SourceKind string
	CSVPath    string
	SourceName string

	BatchSize     int
	ReadChunkSize int
	Workers       int
	Resume        bool

	MaxRetries     int
	RetryBaseDelay time.Duration

	// SnapshotDate is "now" for the history builders. Zero means wall-clock
	// time; pinning it makes reruns over old exports reproducible.
	SnapshotDate time.Time

	InactiveGapMonths       int
	UnemployedGapMonths     int
	InitialUnemployed       bool
	InitialUnemployedYears  int
	EntrepreneurKeywords    []string
	FreelancerKeywords      []string
}

// fileConfig is the optional YAML overlay named by LOADER_CONFIG_FILE.
// Pointer fields so absent keys fall through to the env-derived value.
type fileConfig struct {
	Mode       *string `yaml:"mode"`
	SourceKind *string `yaml:"source_kind"`
	CSVPath    *string `yaml:"csv_path"`
	SourceName *string `yaml:"source_name"`

	BatchSize     *int  `yaml:"batch_size"`
	ReadChunkSize *int  `yaml:"read_chunk_size"`
	Workers       *int  `yaml:"workers"`
	Resume        *bool `yaml:"resume"`

	MaxRetries   *int `yaml:"max_retries"`
	RetryBaseMS  *int `yaml:"retry_base_ms"`

	SnapshotDate *string `yaml:"snapshot_date"`

	InactiveGapMonths      *int     `yaml:"inactive_gap_months"`
	UnemployedGapMonths    *int     `yaml:"unemployed_gap_months"`
	InitialUnemployed      *bool    `yaml:"initial_unemployed"`
	InitialUnemployedYears *int     `yaml:"initial_unemployed_years"`
	EntrepreneurKeywords   []string `yaml:"entrepreneur_keywords"`
	FreelancerKeywords     []string `yaml:"freelancer_keywords"`
}

// Load reads configuration from the environment, then applies the optional
// LOADER_CONFIG_FILE overlay on top.
func Load(log *logger.Logger) (Config, error) {
	profDefaults := history.DefaultProfessionalConfig()
	cfg := Config{
		Environment: envutil.Str("APP_ENV", "development"),
		Version:     envutil.Str("APP_VERSION", "dev"),

		Mode:       envutil.Str("LOADER_MODE", ModeTwoPhase),
		SourceKind: envutil.Str("SOURCE_KIND", SourceCSV),
		CSVPath:    envutil.Str("SOURCE_CSV_PATH", "learners.csv"),
		SourceName: envutil.Str("SOURCE_NAME", ""),

		BatchSize:     envutil.Int("LOADER_BATCH_SIZE", 100),
		ReadChunkSize: envutil.Int("LOADER_READ_CHUNK", 500),
		Workers:       envutil.Int("LOADER_WORKERS", 4),
		Resume:        envutil.Bool("LOADER_RESUME", true),

		MaxRetries:     envutil.Int("LOADER_MAX_RETRIES", 5),
		RetryBaseDelay: envutil.Duration("LOADER_RETRY_BASE_DELAY", 500*time.Millisecond),

		InactiveGapMonths:      envutil.Int("LEARNING_INACTIVE_GAP_MONTHS", 6),
		UnemployedGapMonths:    envutil.Int("PROFESSIONAL_UNEMPLOYED_GAP_MONTHS", 1),
		InitialUnemployed:      envutil.Bool("PROFESSIONAL_INITIAL_UNEMPLOYED", true),
		InitialUnemployedYears: envutil.Int("PROFESSIONAL_INITIAL_UNEMPLOYED_YEARS", 1),
		EntrepreneurKeywords:   profDefaults.EntrepreneurKeywords,
		FreelancerKeywords:     profDefaults.FreelancerKeywords,
	}

	if raw := envutil.Str("SNAPSHOT_DATE", ""); raw != "" {
		snap, ok := normalization.ParseDate(raw)
		if !ok {
			return Config{}, fmt.Errorf("app: unparsable SNAPSHOT_DATE %q", raw)
		}
		cfg.SnapshotDate = snap
	}

	if path := envutil.Str("LOADER_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
		log.Info("config file applied", "path", path)
	}

	switch cfg.Mode {
	case ModeTwoPhase, ModeSimple:
	default:
		return Config{}, fmt.Errorf("app: unknown loader mode %q", cfg.Mode)
	}
	switch cfg.SourceKind {
	case SourceCSV, SourcePostgres:
	default:
		return Config{}, fmt.Errorf("app: unknown source kind %q", cfg.SourceKind)
	}
	if cfg.SourceName == "" {
		if cfg.SourceKind == SourceCSV {
			cfg.SourceName = cfg.CSVPath
		} else {
			cfg.SourceName = SourcePostgres
		}
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("app: read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("app: parse config file: %w", err)
	}

	if fc.Mode != nil {
		c.Mode = *fc.Mode
	}
	if fc.SourceKind != nil {
		c.SourceKind = *fc.SourceKind
	}
	if fc.CSVPath != nil {
		c.CSVPath = *fc.CSVPath
	}
	if fc.SourceName != nil {
		c.SourceName = *fc.SourceName
	}
	if fc.BatchSize != nil {
		c.BatchSize = *fc.BatchSize
	}
	if fc.ReadChunkSize != nil {
		c.ReadChunkSize = *fc.ReadChunkSize
	}
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.Resume != nil {
		c.Resume = *fc.Resume
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.RetryBaseMS != nil {
		c.RetryBaseDelay = time.Duration(*fc.RetryBaseMS) * time.Millisecond
	}
	if fc.SnapshotDate != nil {
		snap, ok := normalization.ParseDate(*fc.SnapshotDate)
		if !ok {
			return fmt.Errorf("app: unparsable snapshot_date %q", *fc.SnapshotDate)
		}
		c.SnapshotDate = snap
	}
	if fc.InactiveGapMonths != nil {
		c.InactiveGapMonths = *fc.InactiveGapMonths
	}
	if fc.UnemployedGapMonths != nil {
		c.UnemployedGapMonths = *fc.UnemployedGapMonths
	}
	if fc.InitialUnemployed != nil {
		c.InitialUnemployed = *fc.InitialUnemployed
	}
	if fc.InitialUnemployedYears != nil {
		c.InitialUnemployedYears = *fc.InitialUnemployedYears
	}
	if len(fc.EntrepreneurKeywords) > 0 {
		c.EntrepreneurKeywords = fc.EntrepreneurKeywords
	}
	if len(fc.FreelancerKeywords) > 0 {
		c.FreelancerKeywords = fc.FreelancerKeywords
	}
	return nil
}

func (c Config) LearningConfig() history.LearningConfig {
	lc := history.DefaultLearningConfig()
	lc.InactiveGapMonths = c.InactiveGapMonths
	if !c.SnapshotDate.IsZero() {
		lc.Snapshot = c.SnapshotDate
	}
	return lc
}

func (c Config) ProfessionalConfig() history.ProfessionalConfig {
	pc := history.DefaultProfessionalConfig()
	pc.UnemployedGapMonths = c.UnemployedGapMonths
	if !c.SnapshotDate.IsZero() {
		pc.Snapshot = c.SnapshotDate
	}
	pc.SynthesizeInitialUnemployed = c.InitialUnemployed
	pc.InitialUnemployedYears = c.InitialUnemployedYears
	pc.EntrepreneurKeywords = c.EntrepreneurKeywords
	pc.FreelancerKeywords = c.FreelancerKeywords
	return pc
}

func (c Config) RetryPolicy() graphload.RetryPolicy {
	return graphload.RetryPolicy{MaxRetries: c.MaxRetries, BaseDelay: c.RetryBaseDelay}
}

func (c Config) TwoPhaseConfig() graphload.TwoPhaseConfig {
	return graphload.TwoPhaseConfig{
		BatchSize:     c.BatchSize,
		ReadChunkSize: c.ReadChunkSize,
		Workers:       c.Workers,
	}
}

func (c Config) SimpleConfig() graphload.SimpleConfig {
	return graphload.SimpleConfig{
		BatchSize:     c.BatchSize,
		ReadChunkSize: c.ReadChunkSize,
		Resume:        c.Resume,
	}
}
