package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

const (
	timestampLayout = "2006-01-02T15-04-05"
	reportSuffix    = "-report.json"
)

// LocalStorage implements Storage using the local filesystem
type LocalStorage struct {
	baseDir string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocal creates a new local storage instance
func NewLocal(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

func (s *LocalStorage) runsDir() string {
	return filepath.Join(s.baseDir, "runs")
}

// SaveReport writes the report as runs/<timestamp>-report.json. The file
// is written to a temp name first and renamed into place.
func (s *LocalStorage) SaveReport(report *models.Report) (string, error) {
	if err := s.EnsureDirectoryExists(); err != nil {
		return "", err
	}

	path := s.pathFor(report.Timestamp)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(s.runsDir(), ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	return path, nil
}

// LoadReport loads a report from a specific timestamp
func (s *LocalStorage) LoadReport(timestamp time.Time) (*models.Report, error) {
	return LoadReportFile(s.pathFor(timestamp))
}

// GetLatestRun retrieves the most recent report
func (s *LocalStorage) GetLatestRun() (*models.Report, error) {
	timestamps, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(timestamps) == 0 {
		return nil, ErrNoRuns
	}
	return s.LoadReport(timestamps[len(timestamps)-1])
}

// GetLastNRuns retrieves the last N reports, oldest first. Reports that
// fail to load are skipped.
func (s *LocalStorage) GetLastNRuns(n int) ([]*models.Report, error) {
	timestamps, err := s.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(timestamps) == 0 {
		return nil, ErrNoRuns
	}

	start := len(timestamps) - n
	if start < 0 || n <= 0 {
		start = 0
	}

	selected := timestamps[start:]
	reports := make([]*models.Report, 0, len(selected))
	for _, ts := range selected {
		report, err := s.LoadReport(ts)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// ListRuns returns all available run timestamps sorted chronologically
func (s *LocalStorage) ListRuns() ([]time.Time, error) {
	entries, err := os.ReadDir(s.runsDir())
	if os.IsNotExist(err) {
		return []time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var timestamps []time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), reportSuffix) {
			continue
		}
		ts, err := time.Parse(timestampLayout, strings.TrimSuffix(entry.Name(), reportSuffix))
		if err != nil {
			continue
		}
		timestamps = append(timestamps, ts)
	}

	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i].Before(timestamps[j])
	})
	return timestamps, nil
}

// Prune removes all but the newest keep reports and returns how many were removed.
func (s *LocalStorage) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	timestamps, err := s.ListRuns()
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(timestamps)-keep; i++ {
		if err := os.Remove(s.pathFor(timestamps[i])); err != nil {
			return removed, fmt.Errorf("failed to prune report: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (s *LocalStorage) pathFor(t time.Time) string {
	return filepath.Join(s.runsDir(), t.UTC().Format(timestampLayout)+reportSuffix)
}

// LoadReportFile loads a report from a file path
func LoadReportFile(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// GetStoragePath returns the full path to the storage directory
func (s *LocalStorage) GetStoragePath() string {
	return s.baseDir
}

// EnsureDirectoryExists creates the storage directory if it doesn't exist
func (s *LocalStorage) EnsureDirectoryExists() error {
	if err := os.MkdirAll(s.runsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	return nil
}
