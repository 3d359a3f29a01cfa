package models

import "errors"

var (
	// ErrMisconfigured marks scan-level failures caused by missing or
	// invalid run parameters.
	ErrMisconfigured = errors.New("misconfigured scan")

	// ErrNotDirectory is returned when a scan root is missing or not a directory.
	ErrNotDirectory = errors.New("target is not a directory")

	// ErrNoDatabase is returned by database scans without a connection source.
	ErrNoDatabase = errors.New("no database source configured")
)
