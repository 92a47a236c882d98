// Package models defines GORM data models for sitepack's build history.
package models

import (
	"time"

	"gorm.io/gorm"
)

// BuildStatus is the outcome of one build attempt.
type BuildStatus string

const (
	BuildSucceeded BuildStatus = "ok"
	BuildFailed    BuildStatus = "failed"
)

// Build records one build attempt, successful or not.
type Build struct {
	gorm.Model

	// Trigger is what started the build: "cli", "serve" or "watch".
	Trigger string      `gorm:"index;not null" json:"trigger"`
	Status  BuildStatus `gorm:"index;not null" json:"status"`
	Error   string      `json:"error,omitempty"`

	StartedAt  time.Time `gorm:"index" json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Modules    int       `json:"modules"`
	Warnings   int       `json:"warnings"`

	// Process resources sampled after the build.
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`

	Artifacts []Artifact `gorm:"foreignKey:BuildID" json:"artifacts,omitempty"`
}

// Artifact is one output file of a successful build.
type Artifact struct {
	gorm.Model

	BuildID uint   `gorm:"index;not null" json:"build_id"`
	Entry   string `json:"entry,omitempty"`
	Name    string `gorm:"not null" json:"name"`
	Bytes   int    `json:"bytes"`
	Hash    string `json:"hash"`
}
