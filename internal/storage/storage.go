// Package storage persists reports for diff, trend and browse commands.
package storage

import (
	"errors"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

// ErrNoRuns is returned when the history is empty.
var ErrNoRuns = errors.New("no runs found")

// Storage defines the interface for persisting reports
type Storage interface {
	// SaveReport stores a complete report and returns its path
	SaveReport(report *models.Report) (string, error)

	// LoadReport loads a report from a specific timestamp
	LoadReport(timestamp time.Time) (*models.Report, error)

	// GetLatestRun retrieves the most recent report
	GetLatestRun() (*models.Report, error)

	// GetLastNRuns retrieves the last N reports, oldest first
	GetLastNRuns(n int) ([]*models.Report, error)

	// ListRuns returns all available run timestamps
	ListRuns() ([]time.Time, error)
}
