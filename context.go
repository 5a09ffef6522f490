package hlsdl

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunContext is the process-local state for a single Download call: the
// cancellation flag, pause gate, and the in-process Playlist/ProgressSet
// caches used for resume. It is owned by the
// Processor for the duration of one call.
type RunContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	paused atomic.Bool
	gateMu sync.Mutex
	gate   chan struct{} // closed while running; replaced (re-armed) on pause

	playlist *Playlist
	progress *concurrentIntSet
}

func newRunContext(parent context.Context) *RunContext {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	rc := &RunContext{ctx: ctx, cancel: cancel}
	rc.gate = closedChan()
	return rc
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Cancel flips the cooperative cancellation flag, interrupts any blocked
// fetch/sleep via context cancellation, and — if a pause is in effect —
// releases the pause gate so blocked workers observe the cancellation
// instead of waiting forever. Per spec.md §4.6, "cancel overrides pause."
func (rc *RunContext) Cancel() {
	rc.cancel()
	rc.gateMu.Lock()
	select {
	case <-rc.gate:
	default:
		close(rc.gate)
	}
	rc.gateMu.Unlock()
}

func (rc *RunContext) Cancelled() bool {
	select {
	case <-rc.ctx.Done():
		return true
	default:
		return false
	}
}

// Pause arms a one-shot release signal and blocks future gate waiters until
// Resume is called.
func (rc *RunContext) Pause() {
	rc.gateMu.Lock()
	defer rc.gateMu.Unlock()
	if rc.paused.Swap(true) {
		return // already paused
	}
	select {
	case <-rc.gate:
		rc.gate = make(chan struct{})
	default:
		// already blocking
	}
}

// Resume releases the pause gate and re-arms paused=false so a subsequent
// Pause opens a fresh gate.
func (rc *RunContext) Resume() {
	rc.gateMu.Lock()
	defer rc.gateMu.Unlock()
	if !rc.paused.Swap(false) {
		return // wasn't paused
	}
	select {
	case <-rc.gate:
	default:
		close(rc.gate)
	}
}

// WaitIfPaused blocks the calling worker while paused, returning early if
// the run is cancelled in the meantime.
func (rc *RunContext) WaitIfPaused() {
	rc.gateMu.Lock()
	gate := rc.gate
	rc.gateMu.Unlock()
	select {
	case <-gate:
	case <-rc.ctx.Done():
	}
}
