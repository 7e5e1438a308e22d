// Package journal persists delivery outcomes to SQLite so operators can
// audit what was relayed where, long after the log files rotated away.
package journal
