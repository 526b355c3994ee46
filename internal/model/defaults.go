package model

import "time"

// Shared defaults used by the CLI and the analysis packages.
const (
	DefaultSlowThresholdMS = 1000.0

	DefaultTopEndpoints = 10
	DefaultTopDBOps     = 10
	DefaultTopErrors    = 5
	DefaultTopSlow      = 5
	DefaultTopUsers     = 5

	DefaultQueryTimeout = 30 * time.Second
)
