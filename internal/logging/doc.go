// Package logging builds the slog loggers used across dcmrelay and defines
// the structured field vocabulary shared by every component.
//
// Two output formats are supported: a compact console format for interactive
// use and JSON for ingestion. Both are driven by the [logging] section of the
// configuration. Helpers such as NewComponentLogger and the Field* constants
// keep route, endpoint, and file attributes consistent so that log lines from
// the workers, the endpoint manager, and the daemon can be correlated.
//
// Log files are pruned by CleanupOldLogs according to the configured
// retention window.
package logging
