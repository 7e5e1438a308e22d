// Package services defines shared utilities consumed by the relay workers and
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp route names and scan batch identifiers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across endpoints and listeners.
//   - Thin abstractions that make command execution against DCMTK tools
//     testable.
//
// Use these helpers when wiring new delivery logic so operational behaviour
// (error handling, observability) stays uniform across the relay.
package services
