package store

import "errors"

var (
	// ErrLabelConflict is returned when a metric name is registered again
	// with a different set of label names.
	ErrLabelConflict = errors.New("metric already registered with different labels")
	ErrUnknownMetric = errors.New("metric not registered")
	ErrLabelMismatch = errors.New("label names do not match metric definition")
)
