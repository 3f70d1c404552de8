package config

import "errors"

// Fatal startup misconfiguration. Everything else degrades at runtime.
var (
	ErrInvalidWindowSize    = errors.New("window size must be positive")
	ErrInvalidFlushInterval = errors.New("flush interval must be positive")
	ErrInvalidBatchSize     = errors.New("batch size must be positive")
	ErrInvalidMaxConcurrent = errors.New("max concurrent must be positive")
)
