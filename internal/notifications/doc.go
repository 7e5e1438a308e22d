// Package notifications pushes operator alerts through ntfy. Events can
// be suppressed per category in the config, and delivery failures are
// deduplicated so a flapping endpoint does not flood the topic.
package notifications
