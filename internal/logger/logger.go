// Package logger builds the process logger.
package logger

import "go.uber.org/zap"

// New creates a production zap logger at the given level. Verbose forces
// debug regardless of the configured level.
func New(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		level = "debug"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	// Progress output owns stdout; diagnostics go to stderr.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
