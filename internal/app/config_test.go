package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

func configTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	return log
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(configTestLogger(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mode != ModeTwoPhase || cfg.SourceKind != SourceCSV {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BatchSize != 100 || cfg.ReadChunkSize != 500 || cfg.Workers != 4 {
		t.Fatalf("unexpected sizing defaults: %+v", cfg)
	}
	if cfg.MaxRetries != 5 || cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.SourceName != cfg.CSVPath {
		t.Fatalf("csv source name should default to the path: %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOADER_MODE", "simple")
	t.Setenv("LOADER_BATCH_SIZE", "25")
	t.Setenv("LEARNING_INACTIVE_GAP_MONTHS", "3")

	cfg, err := Load(configTestLogger(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mode != ModeSimple || cfg.BatchSize != 25 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.LearningConfig().InactiveGapMonths != 3 {
		t.Fatalf("history config should reflect the override: %+v", cfg.LearningConfig())
	}
}

func TestLoad_FileOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	content := "mode: simple\nbatch_size: 7\nretry_base_ms: 50\nfreelancer_keywords: [gig]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOADER_BATCH_SIZE", "200")
	t.Setenv("LOADER_CONFIG_FILE", path)

	cfg, err := Load(configTestLogger(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Mode != ModeSimple || cfg.BatchSize != 7 {
		t.Fatalf("file overlay should win: %+v", cfg)
	}
	if cfg.RetryPolicy().BaseDelay != 50*time.Millisecond {
		t.Fatalf("retry_base_ms not applied: %+v", cfg.RetryPolicy())
	}
	pc := cfg.ProfessionalConfig()
	if len(pc.FreelancerKeywords) != 1 || pc.FreelancerKeywords[0] != "gig" {
		t.Fatalf("keyword overlay not applied: %+v", pc.FreelancerKeywords)
	}
	// Keys absent from the file keep their env or default values.
	if cfg.Workers != 4 {
		t.Fatalf("absent keys should fall through: %+v", cfg)
	}
}

func TestLoad_SnapshotDate(t *testing.T) {
	t.Setenv("SNAPSHOT_DATE", "2024-06-01")

	cfg, err := Load(configTestLogger(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.SnapshotDate.Equal(want) {
		t.Fatalf("snapshot date not applied: %v", cfg.SnapshotDate)
	}
	if !cfg.LearningConfig().Snapshot.Equal(want) || !cfg.ProfessionalConfig().Snapshot.Equal(want) {
		t.Fatalf("history configs should use the pinned snapshot: %v %v",
			cfg.LearningConfig().Snapshot, cfg.ProfessionalConfig().Snapshot)
	}
}

func TestLoad_SnapshotDateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.yaml")
	if err := os.WriteFile(path, []byte("snapshot_date: 2023-12-31\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SNAPSHOT_DATE", "2024-06-01")
	t.Setenv("LOADER_CONFIG_FILE", path)

	cfg, err := Load(configTestLogger(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	if !cfg.SnapshotDate.Equal(want) {
		t.Fatalf("file snapshot_date should win over env: %v", cfg.SnapshotDate)
	}
}

func TestLoad_RejectsUnparsableSnapshotDate(t *testing.T) {
	t.Setenv("SNAPSHOT_DATE", "sometime soon")
	if _, err := Load(configTestLogger(t)); err == nil {
		t.Fatalf("unparsable snapshot date should be rejected")
	}
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	t.Setenv("LOADER_MODE", "bulk")
	if _, err := Load(configTestLogger(t)); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
}

func TestLoad_RejectsUnknownSourceKind(t *testing.T) {
	t.Setenv("SOURCE_KIND", "excel")
	if _, err := Load(configTestLogger(t)); err == nil {
		t.Fatalf("unknown source kind should be rejected")
	}
}
