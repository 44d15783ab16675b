// Package logging provides a minimal logging interface and adapters for TrainMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the handler tree, launch hooks and collective layer use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - TrainMeshLogger with rank/run context and training domain helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	p := pipeline.New(pipeline.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
