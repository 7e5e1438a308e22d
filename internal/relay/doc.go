// Package relay implements the store-and-forward core: workers that drain
// listener inboxes and fan files out to endpoints, and the manager that owns
// worker and listener lifecycles.
//
// A worker repeats scan cycles against its route's inbox. Each cycle collects
// eligible files (regular files strictly older than the settle window, up to
// the buffer size), delivers every file to all route endpoints concurrently,
// and deletes a source file only after every endpoint confirmed delivery. A
// file that failed any endpoint stays in the inbox and is retried on a later
// cycle, so deliveries must stay idempotent.
//
// Stop requests are only observed between cycles and between the collect and
// deliver steps. Once a batch entered delivery it always runs to completion;
// the manager bounds shutdown with a fixed number of signal rounds per worker
// and reports a partial stop when a worker never accepted the signal.
package relay
