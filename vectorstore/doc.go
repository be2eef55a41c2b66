// Package vectorstore manages the lifecycle of per-user vector collections:
// writes, scoped similarity search, and the cascading cleanup consumed by
// the session-deletion workflow.
package vectorstore
