// Package config holds process defaults and the bootstrap seed loader.
package config

import "time"

const (
	// DefaultPort is the default HTTP server port.
	DefaultPort = "8080"

	// DefaultDatabaseURL is empty; must be provided via flag or environment.
	DefaultDatabaseURL = ""

	// DefaultRuntimeURL is where the runtime orchestrator listens by default.
	DefaultRuntimeURL = "http://127.0.0.1:8010"

	// DefaultRuntimeTimeout bounds every orchestrator call.
	DefaultRuntimeTimeout = 2 * time.Second

	// DefaultReconcileConcurrency caps parallel polls during a workspace reconcile.
	DefaultReconcileConcurrency = 8

	// ShutdownTimeout is how long the server waits for in-flight requests.
	ShutdownTimeout = 10 * time.Second
)
