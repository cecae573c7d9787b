// Package services defines shared utilities consumed by the pipeline phases
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs and phase names for logging.
//   - Structured error markers plus the Wrap helper so per-item failures,
//     lookup failures, and fatal startup errors are classified uniformly.
//
// Use these helpers when wiring new phase logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
