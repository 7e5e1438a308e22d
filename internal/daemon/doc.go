// Package daemon ties the relay manager, journal, watcher, and
// notification service into a single long-running process. It enforces
// single-instance execution through a lock file and exposes the status
// surface the control socket and HTTP API serve.
package daemon
