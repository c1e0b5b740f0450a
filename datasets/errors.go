package datasets

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by batch draws before Load succeeded.
	ErrNotLoaded = errors.New("dataset not loaded")

	// ErrAlreadyLoaded is returned by Load on a dataset that is already loaded.
	ErrAlreadyLoaded = errors.New("dataset already loaded")

	// ErrInvalidBatchSize is returned for batch sizes <= 0.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrEmptyPartition is returned when a partition would hold no samples.
	ErrEmptyPartition = errors.New("partition is empty")
)

// LoadError reports a failed Load. Source names the provider ("pixels",
// "labels") or the stage ("validate", "split") that failed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load dataset (%s): %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
