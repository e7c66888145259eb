package constants

import "time"

// Timeout constants for LSP operations
const (
	// DefaultRequestTimeout bounds every correlated request; a hung server
	// fails the pending completion instead of hanging the workflow.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultInitializeTimeout is longer than the request timeout because
	// language servers can be slow to start and index a workspace.
	DefaultInitializeTimeout = 60 * time.Second

	// ProcessShutdownTimeout is how long to wait for a graceful exit after
	// shutdown/exit before force killing the server process.
	ProcessShutdownTimeout = 5 * time.Second
)

// LSPResponseBufferSize is the read buffer for server output. Inference
// results for large modules can be sizable, so use 1MB to avoid truncation.
const LSPResponseBufferSize = 1024 * 1024

// MaxConcurrentHandlers caps how many inbound notifications may be handled
// at once. The read loop blocks once the cap is reached, which bounds
// queuing when the server floods progress or diagnostic notifications.
const MaxConcurrentHandlers = 4
