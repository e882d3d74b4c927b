package runner

import (
	"io"
	"sync"
	"time"
)

// idleWatch fires a cancellation callback when none of its writers has
// received data for the configured timeout. Each non-empty Write resets the
// timer.
type idleWatch struct {
	timer      *time.Timer
	timeout    time.Duration
	cancel     func()
	idled      bool
	lastActive time.Time
	mu         sync.Mutex
}

// newIdleWatch returns a watch that calls cancel after timeout of silence.
// A zero or negative timeout disables detection.
func newIdleWatch(timeout time.Duration, cancel func()) *idleWatch {
	iw := &idleWatch{timeout: timeout, cancel: cancel, lastActive: time.Now()}
	if timeout > 0 {
		iw.timer = time.AfterFunc(timeout, iw.onTimeout)
	}
	return iw
}

// Writer wraps w so that writes through it count as activity.
func (iw *idleWatch) Writer(w io.Writer) io.Writer {
	if iw.timer == nil {
		return w
	}
	return &idleWriter{w: w, watch: iw}
}

func (iw *idleWatch) touch() {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	if !iw.idled {
		iw.lastActive = time.Now()
		iw.timer.Reset(iw.timeout)
	}
}

func (iw *idleWatch) onTimeout() {
	iw.mu.Lock()
	// A fire that raced with touch is stale: output arrived within the
	// window and the timer is already re-armed.
	if iw.idled || time.Since(iw.lastActive) < iw.timeout {
		iw.mu.Unlock()
		return
	}
	iw.idled = true
	iw.mu.Unlock()
	if iw.cancel != nil {
		iw.cancel()
	}
}

// Idled returns true if the idle timeout fired.
func (iw *idleWatch) Idled() bool {
	iw.mu.Lock()
	defer iw.mu.Unlock()
	return iw.idled
}

// Stop stops the idle timer. Call once the process has exited.
func (iw *idleWatch) Stop() {
	if iw.timer != nil {
		iw.timer.Stop()
	}
}

type idleWriter struct {
	w     io.Writer
	watch *idleWatch
}

func (iw *idleWriter) Write(p []byte) (int, error) {
	n, err := iw.w.Write(p)
	if n > 0 {
		iw.watch.touch()
	}
	return n, err
}
