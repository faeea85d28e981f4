package utils

import "go.uber.org/zap"

// NewLogger builds the service logger: a human-readable development logger at
// debug level when debug is set, otherwise the JSON production logger at info.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
