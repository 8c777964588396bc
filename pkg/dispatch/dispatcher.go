package dispatch

import (
	"context"
	"sync"
)

// Dispatcher is the Command Dispatcher (§4.6): it owns the preempt handshake
// against the Mapping, Routing, and Navigation workers and serializes
// command execution against them. The operator console and the TCP listener
// both submit through the same Submit call, matching §4.6's "waits on three
// readable sources... run the command" loop collapsed into a single
// synchronous entry point fed by separate goroutines (console.go, tcp.go).
type Dispatcher struct {
	mu      sync.Mutex // serializes Submit itself: one command runs at a time
	workers map[string]*Worker
	deps    *Deps
}

// Worker names, used as map keys and in log lines.
const (
	WorkerMapping    = "mapping"
	WorkerRouting    = "routing"
	WorkerNavigation = "navigation"
)

// New builds a Dispatcher over the given collaborators. RegisterWorker must
// be called for each of mapping/routing/navigation before Submit is used
// with a command whose priority triple touches that worker.
func New(deps *Deps) *Dispatcher {
	return &Dispatcher{workers: make(map[string]*Worker), deps: deps}
}

// RegisterWorker wires a supervised worker under the given name and starts
// it immediately.
func (d *Dispatcher) RegisterWorker(ctx context.Context, name string, run func(ctx context.Context) error) *WorkerControl {
	w := NewWorker(name, run)
	d.mu.Lock()
	d.workers[name] = w
	d.mu.Unlock()
	w.start(ctx)
	return w.Control
}

// Submit runs the preempt handshake for cmd's priority triple, executes the
// command, then resumes/re-spawns whatever it preempted (§4.6).
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) Ack {
	d.mu.Lock()
	defer d.mu.Unlock()

	preempted := d.preempt(ctx, cmd.Priority)
	defer d.release(ctx, preempted)

	ack := cmd.Exec(ctx, d.deps)
	log.Debug().
		Str("correlation_id", cmd.CorrelationID).
		Str("kind", cmd.Kind.String()).
		Bool("ok", ack.Err == nil).
		Msg("command executed")
	return ack
}

type preemptedWorker struct {
	name     string
	canceled bool
}

// preempt implements the per-bit cancel-or-wait decision (§4.6, §9): a
// cancel-safe worker is canceled and flagged for respawn; otherwise the
// dispatcher sets the pause flag and blocks until the worker quiesces at its
// own loop boundary.
func (d *Dispatcher) preempt(ctx context.Context, p Priority) []preemptedWorker {
	var names []string
	if p.Map {
		names = append(names, WorkerMapping)
	}
	if p.Rout {
		names = append(names, WorkerRouting)
	}
	if p.Nav {
		names = append(names, WorkerNavigation)
	}

	var preempted []preemptedWorker
	for _, name := range names {
		w, ok := d.workers[name]
		if !ok {
			continue
		}
		if w.Control.CancelSafe() {
			w.cancelCurrent()
			preempted = append(preempted, preemptedWorker{name: name, canceled: true})
			continue
		}
		w.Control.requestPause()
		if err := w.Control.waitQuiesced(ctx); err != nil {
			log.Warn().Str("worker", name).Err(err).Msg("timed out waiting for worker to quiesce")
		}
		preempted = append(preempted, preemptedWorker{name: name, canceled: false})
	}
	return preempted
}

// release resumes paused workers and re-spawns canceled ones (§4.6: "signal
// paused workers to resume and re-spawn any canceled workers").
func (d *Dispatcher) release(ctx context.Context, preempted []preemptedWorker) {
	for _, p := range preempted {
		w, ok := d.workers[p.name]
		if !ok {
			continue
		}
		if p.canceled {
			w.start(ctx)
			continue
		}
		w.Control.resume()
	}
}
