// Package server manages sitepack's build history database.
// It initializes GORM with SQLite and records every build attempt.
package server

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/sitepack/internal/bundle"
	"github.com/vesaa/sitepack/internal/config"
	"github.com/vesaa/sitepack/internal/models"
	"github.com/vesaa/sitepack/internal/stats"
)

// Store persists build history.
type Store struct {
	DB *gorm.DB
}

// OpenStore opens the database and runs AutoMigrate.
func OpenStore(cfg *config.Config, log zerolog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported db_driver %q (use 'sqlite')", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Build{}, &models.Artifact{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	log.Debug().Msgf("[db] opened %s/%s", cfg.DBDriver, cfg.DBPath)
	return &Store{DB: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordBuild stores the outcome of one build. res is nil when the build
// failed; snap may be nil when stats are unavailable.
func (s *Store) RecordBuild(trigger string, started time.Time, res *bundle.Result, buildErr error, snap *stats.Snapshot) (*models.Build, error) {
	b := &models.Build{
		Trigger:    trigger,
		Status:     models.BuildSucceeded,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	}
	if buildErr != nil {
		b.Status = models.BuildFailed
		b.Error = buildErr.Error()
	}
	if res != nil {
		b.DurationMS = res.Duration.Milliseconds()
		b.Modules = res.Modules
		b.Warnings = len(res.Warnings)
		for _, a := range res.Artifacts {
			b.Artifacts = append(b.Artifacts, models.Artifact{
				Entry: a.Entry,
				Name:  a.Name,
				Bytes: len(a.Contents),
				Hash:  a.Hash,
			})
		}
	}
	if snap != nil {
		b.RSSBytes = snap.RSSBytes
		b.CPUPercent = snap.CPUPercent
	}

	if err := s.DB.Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// ListBuilds returns the most recent builds first, with their artifacts.
func (s *Store) ListBuilds(limit int) ([]models.Build, error) {
	if limit <= 0 {
		limit = 20
	}
	var builds []models.Build
	err := s.DB.Preload("Artifacts").Order("id desc").Limit(limit).Find(&builds).Error
	return builds, err
}

// LastBuild returns the most recent build, or gorm.ErrRecordNotFound.
func (s *Store) LastBuild() (*models.Build, error) {
	var b models.Build
	if err := s.DB.Preload("Artifacts").Order("id desc").First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}
