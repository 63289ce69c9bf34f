// Package checkpoint persists load progress so interrupted runs can resume
// without rewriting everything they already wrote. The graph side is
// idempotent either way; the checkpoint just avoids re-reading and
// re-merging rows that are already in.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/learnergraph-backend/internal/platform/envutil"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
)

// LoadCheckpoint is one row per source, upserted as the load progresses.
type LoadCheckpoint struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceName string         `gorm:"column:source_name;not null;uniqueIndex" json:"source_name"`
	LastRow    int64          `gorm:"column:last_row;not null;default:0" json:"last_row"`
	Totals     datatypes.JSON `gorm:"column:totals" json:"totals"`
	Status     string         `gorm:"column:status;not null" json:"status"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (LoadCheckpoint) TableName() string { return "load_checkpoint" }

type Store struct {
	db         *gorm.DB
	sourceName string
	log        *logger.Logger
}

// OpenFromEnv opens the checkpoint database named by CHECKPOINT_DRIVER
// (postgres or sqlite, default sqlite) and migrates the checkpoint table.
func OpenFromEnv(sourceName string, log *logger.Logger) (*Store, error) {
	storeLog := log.With("component", "CheckpointStore")
	driver := envutil.Str("CHECKPOINT_DRIVER", "sqlite")

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dsn := envutil.Str("CHECKPOINT_POSTGRES_DSN", "")
		if dsn == "" {
			host := envutil.Str("POSTGRES_HOST", "localhost")
			port := envutil.Str("POSTGRES_PORT", "5432")
			user := envutil.Str("POSTGRES_USER", "postgres")
			password := envutil.Str("POSTGRES_PASSWORD", "")
			name := envutil.Str("POSTGRES_NAME", "learnergraph")
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		}
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(envutil.Str("CHECKPOINT_SQLITE_PATH", "loader_checkpoints.db"))
	default:
		return nil, fmt.Errorf("checkpoint: unknown driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&LoadCheckpoint{}); err != nil {
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	storeLog.Info("checkpoint store ready", "driver", driver, "source", sourceName)
	return &Store{db: db, sourceName: sourceName, log: storeLog}, nil
}

// NewStore wraps an already open gorm handle. Used by tests.
func NewStore(db *gorm.DB, sourceName string, log *logger.Logger) (*Store, error) {
	if err := db.AutoMigrate(&LoadCheckpoint{}); err != nil {
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return &Store{db: db, sourceName: sourceName, log: log.With("component", "CheckpointStore")}, nil
}

// Load returns the persisted progress for this store's source, or zero
// values when no checkpoint exists yet.
func (s *Store) Load(ctx context.Context) (int64, string, error) {
	var cp LoadCheckpoint
	err := s.db.WithContext(ctx).Where("source_name = ?", s.sourceName).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("checkpoint: load %q: %w", s.sourceName, err)
	}
	return cp.LastRow, cp.Status, nil
}

// Save upserts the checkpoint row for this store's source.
func (s *Store) Save(ctx context.Context, lastRow int64, totals map[string]int64, status string) error {
	payload, err := json.Marshal(totals)
	if err != nil {
		return fmt.Errorf("checkpoint: encode totals: %w", err)
	}

	tx := s.db.WithContext(ctx)
	var cp LoadCheckpoint
	err = tx.Where("source_name = ?", s.sourceName).First(&cp).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		cp = LoadCheckpoint{
			ID:         uuid.New(),
			SourceName: s.sourceName,
			LastRow:    lastRow,
			Totals:     datatypes.JSON(payload),
			Status:     status,
		}
		if err := tx.Create(&cp).Error; err != nil {
			return fmt.Errorf("checkpoint: create %q: %w", s.sourceName, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("checkpoint: lookup %q: %w", s.sourceName, err)
	}

	updates := map[string]any{
		"last_row": lastRow,
		"totals":   datatypes.JSON(payload),
		"status":   status,
	}
	if err := tx.Model(&LoadCheckpoint{}).Where("id = ?", cp.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("checkpoint: update %q: %w", s.sourceName, err)
	}
	return nil
}
