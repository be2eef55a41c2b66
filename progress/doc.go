// Package progress implements the best-effort event channel that streams
// job progress to connected users. It is a convenience layer, not a source
// of truth: callers must never rely on event delivery for correctness.
package progress
