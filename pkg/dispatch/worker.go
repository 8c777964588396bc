// Package dispatch implements the Command Dispatcher (spec.md §4.6): the
// single entry point through which operator console keys and client TCP
// commands reach the Mapping, Routing, and Navigation workers, preempting
// them according to a per-command priority triple.
//
// Grounded on the teacher's x/robotics/pipeline step-loop shape (one struct
// owning a small explicit state field, ticked from a supervising goroutine);
// the cancel-safe/pause-and-quiesce handshake itself has no direct teacher
// analog, so it is built from stdlib context.Context and sync.Cond, the
// idiomatic Go primitives for exactly this "cooperative cancellation" and
// "wait for a condition" shape (see DESIGN.md).
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rn1robotics/hostcore/pkg/logging"
)

var log = logging.Component("dispatch")

// WorkerControl is handed to a worker's run loop (Mapping Engine, Routing
// Coordinator, Navigation Controller) so it can participate in preemption
// (§4.6, §9 "cooperative cancellation"). The worker declares itself
// cancel-safe only around sections where an abrupt context cancellation
// would leave no inconsistent state, and polls PauseRequested at its own
// loop boundary otherwise.
type WorkerControl struct {
	name string

	cancelSafe atomic.Bool

	mu             sync.Mutex
	cond           *sync.Cond
	pauseRequested bool
	quiesced       bool
}

func newWorkerControl(name string) *WorkerControl {
	wc := &WorkerControl{name: name}
	wc.cond = sync.NewCond(&wc.mu)
	return wc
}

// SetCancelSafe marks or clears the worker's cancel-safe window
// (`*_thread_cancel_state`, §4.6). A worker should set this true only while
// it holds no partially-applied state, e.g. just before blocking on its next
// tick.
func (wc *WorkerControl) SetCancelSafe(v bool) { wc.cancelSafe.Store(v) }

// CancelSafe reports whether the worker is currently in a cancelable
// window.
func (wc *WorkerControl) CancelSafe() bool { return wc.cancelSafe.Load() }

// PauseRequested reports whether the dispatcher has asked this worker to
// quiesce at its next loop boundary. A low-priority-preempted worker that is
// not cancel-safe must poll this and, when true, call Quiesce.
func (wc *WorkerControl) PauseRequested() bool {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	return wc.pauseRequested
}

// Quiesce is called by the worker once it has reached a safe pause boundary.
// It blocks until the dispatcher signals resume.
func (wc *WorkerControl) Quiesce() {
	wc.mu.Lock()
	wc.quiesced = true
	wc.cond.Broadcast()
	for wc.pauseRequested {
		wc.cond.Wait()
	}
	wc.quiesced = false
	wc.mu.Unlock()
}

func (wc *WorkerControl) requestPause() {
	wc.mu.Lock()
	wc.pauseRequested = true
	wc.mu.Unlock()
}

func (wc *WorkerControl) waitQuiesced(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wc.mu.Lock()
		for !wc.quiesced {
			wc.cond.Wait()
		}
		wc.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wc *WorkerControl) resume() {
	wc.mu.Lock()
	wc.pauseRequested = false
	wc.cond.Broadcast()
	wc.mu.Unlock()
}

// Worker bundles a restartable run loop with its WorkerControl. Run must
// return promptly once its context is canceled; the dispatcher relaunches it
// in a fresh goroutine with a fresh context after a cancel-and-restart
// preemption (§4.6: "re-spawn any canceled workers").
type Worker struct {
	Name    string
	Control *WorkerControl
	Run     func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWorker builds a Worker bound to the given run loop.
func NewWorker(name string, run func(ctx context.Context) error) *Worker {
	return &Worker{Name: name, Control: newWorkerControl(name), Run: run}
}

// start launches (or relaunches) the worker's run loop under a fresh
// cancelable context derived from parent.
func (w *Worker) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("worker", w.Name).Msg("worker exited with error")
		}
	}()
}

func (w *Worker) cancelCurrent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}
