package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process-wide logger. Development gets the console
// encoder with colored levels, everything else emits production JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
