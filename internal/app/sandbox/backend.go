package sandbox

import (
	"context"
	"time"
)

// Backend is the SandboxBackend contract from spec §4.7: run drives a
// script to its first terminal-or-suspended outcome; resume continues a
// previously suspended execution identified by the resume handle run()
// returned.
type Backend interface {
	Run(ctx context.Context, id, script string, secrets map[string]string, timeout time.Duration) Outcome
	Resume(id, llmResponse string, timeout time.Duration) Outcome
}
