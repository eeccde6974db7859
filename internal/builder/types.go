// Package builder adapts the external batch build system. The coordinator
// registers pending pages; the Batcher coalesces invalidations into
// compilation passes and drives the Compiler with the claimed entry targets.
package builder

import "context"

// EntryTarget names one page for a compilation pass. TargetName and Request
// are opaque descriptors handed to the compiler; ArtifactPath feeds the build
// system's own file-watch mechanism.
type EntryTarget struct {
	PageID       string
	TargetName   string
	Request      string
	ArtifactPath string
}

// Compiler is the external build system boundary: it compiles all targets of
// a pass in one batch and returns the pass result.
type Compiler interface {
	Compile(ctx context.Context, targets []EntryTarget) error
}

// Invalidator requests a new compilation pass. Idempotent while a pass is
// already pending.
type Invalidator interface {
	Invalidate()
}

// TargetSource is asked once per pass start for the pending entry targets.
// The implementation must atomically claim them so no target is handed to two
// passes.
type TargetSource interface {
	ClaimPending(passID string) []EntryTarget
}

// PassSink receives the result of every pass that claimed at least one target.
type PassSink interface {
	CompletePass(passID string, targets []EntryTarget, err error)
}
