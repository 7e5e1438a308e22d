// Package preflight provides readiness checks for the filesystem paths
// and external tools the relay depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll and CheckSystemDeps at startup and logs
//     every failure before the relay begins accepting files.
//   - The CLI "dcmrelay status" and "dcmrelay endpoints ping" commands
//     use individual check functions to display health.
package preflight
