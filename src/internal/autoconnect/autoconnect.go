// Package autoconnect connects many stopped profiles concurrently, bounded by
// a worker pool and the configured capacity limit.
package autoconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hoangvu/wireproxyman/src/internal/events"
	"github.com/hoangvu/wireproxyman/src/internal/portmanager"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

const (
	maxWorkers = 4

	// maxProbeAttempts bounds how many host probes a single reservation
	// attempt may burn. Without a cap, a pathological host with many
	// transiently-busy ports could starve a worker indefinitely.
	maxProbeAttempts = 64
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
// Only one auto-connect run may exist at a time.
var ErrAlreadyRunning = errors.New("auto-connect is already running")

// StartFunc launches a process for a profile on a port and returns its PID.
type StartFunc func(p profile.Profile, port int) (int, error)

// Options selects which profiles a run covers and how ports are assigned.
type Options struct {
	// Names restricts the run to the given profiles; empty means all.
	Names []string

	// StartPort, when positive, switches to sequential assignment: a shared
	// counter starting here hands out candidate ports so earlier-queued
	// profiles tend to receive earlier ports. A value outside the allowed
	// range is rejected, never clamped.
	StartPort int
}

// Result summarizes a completed run.
type Result struct {
	Attempted int
	Started   int
}

// Orchestrator drives concurrent connects over the shared profile store.
type Orchestrator struct {
	store     *profile.Store
	ports     *portmanager.Registry
	bus       *events.Bus
	portLimit func() int
	persist   func() error
	start     StartFunc

	mu       sync.Mutex
	running  bool
	queue    []string
	reserved map[int]bool
	nextPort int
}

// New creates an orchestrator. portLimit is read at the start of each run;
// persist is called after every successful start so a crash mid-run loses at
// most the in-flight profile.
func New(store *profile.Store, ports *portmanager.Registry, bus *events.Bus,
	portLimit func() int, persist func() error, start StartFunc) *Orchestrator {
	return &Orchestrator{
		store:     store,
		ports:     ports,
		bus:       bus,
		portLimit: portLimit,
		persist:   persist,
		start:     start,
	}
}

// Running reports whether a run is currently active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Run executes one auto-connect pass and blocks until the queue drains, the
// limit is saturated, or ctx is cancelled. A second concurrent Run returns
// ErrAlreadyRunning immediately.
//
// Per profile the attempt is at-most-once: a failure is logged, reported as a
// progress event, and never retried within the run.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.StartPort != 0 {
		if lo, hi := portmanager.AllowedRange(o.portLimit()); opts.StartPort < lo || opts.StartPort > hi {
			return Result{}, fmt.Errorf("%w: start port %d not in %d-%d",
				portmanager.ErrPortOutOfRange, opts.StartPort, lo, hi)
		}
	}

	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	o.running = true
	o.reserved = make(map[int]bool)
	o.nextPort = opts.StartPort
	o.mu.Unlock()

	var res Result
	var resMu sync.Mutex

	// Reservations are cleared and the finished event fires no matter how
	// workers exit, so a failure can never wedge future runs.
	defer func() {
		o.mu.Lock()
		o.running = false
		o.reserved = nil
		o.queue = nil
		o.mu.Unlock()
		o.bus.Publish(events.Event{
			Type:      events.AutoConnectFinished,
			Started:   res.Started,
			Attempted: res.Attempted,
		})
		slog.Info("auto-connect finished",
			slog.Int("started", res.Started),
			slog.Int("attempted", res.Attempted))
	}()

	o.store.RefreshLiveness()
	queue := o.buildQueue(opts.Names)
	if len(queue) == 0 {
		return res, nil
	}

	o.mu.Lock()
	o.queue = queue
	o.mu.Unlock()

	limit := o.portLimit()
	workers := maxWorkers
	if len(queue) < workers {
		workers = len(queue)
	}
	slog.Debug("starting auto-connect",
		slog.Int("candidates", len(queue)),
		slog.Int("workers", workers),
		slog.Int("limit", limit))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return o.worker(ctx, limit, opts.StartPort > 0, func(started bool) {
				resMu.Lock()
				res.Attempted++
				if started {
					res.Started++
				}
				resMu.Unlock()
			})
		})
	}
	err := g.Wait()
	return res, err
}

// buildQueue filters candidates down to stopped profiles whose source config
// still exists, preserving order.
func (o *Orchestrator) buildQueue(names []string) []string {
	if len(names) == 0 {
		for _, p := range o.store.Snapshot() {
			names = append(names, p.Name)
		}
	}

	var queue []string
	for _, name := range names {
		p, ok := o.store.FindByName(name)
		if !ok || p.Running {
			continue
		}
		if _, err := os.Stat(p.ConfPath); err != nil {
			slog.Warn("skipping profile with missing config",
				slog.String("profile", name),
				slog.String("path", p.ConfPath))
			continue
		}
		queue = append(queue, name)
	}
	return queue
}

func (o *Orchestrator) worker(ctx context.Context, limit int, sequential bool, record func(started bool)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Pop and limit check stay under the lock; everything slow happens
		// outside it.
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return nil
		}
		if limit > 0 {
			used := o.ports.PortsInUse(o.store.Snapshot())
			if len(used) >= limit {
				o.mu.Unlock()
				return nil
			}
		}
		name := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		prof, ok := o.store.FindByName(name)
		if !ok || prof.Running {
			continue
		}

		port, err := o.findAndReserve(prof, limit, sequential)
		if err != nil {
			record(false)
			o.bus.Publish(events.Event{
				Type:    events.AutoConnectProgress,
				Profile: name,
				Error:   err.Error(),
			})
			continue
		}

		pid, startErr := o.start(prof, port)

		o.mu.Lock()
		delete(o.reserved, port)
		o.mu.Unlock()

		if startErr != nil {
			record(false)
			slog.Error("auto-connect failed to start profile",
				slog.String("profile", name),
				slog.Int("port", port),
				slog.String("error", startErr.Error()))
			o.bus.Publish(events.Event{
				Type:    events.AutoConnectProgress,
				Profile: name,
				Error:   startErr.Error(),
			})
			continue
		}

		o.store.MarkStarted(name, pid, port)
		if o.persist != nil {
			if err := o.persist(); err != nil {
				slog.Warn("failed to persist state after connect",
					slog.String("error", err.Error()))
			}
		}
		record(true)
		o.bus.Publish(events.Event{
			Type:    events.AutoConnectProgress,
			Profile: name,
			Port:    port,
		})
	}
}

// findAndReserve picks a port for a profile and claims it in the shared
// reservation set. The host probe runs outside the lock because it is slow;
// the reservation set membership is re-checked inside the lock to close the
// window where two workers both saw the same port as free.
func (o *Orchestrator) findAndReserve(prof profile.Profile, limit int, sequential bool) (int, error) {
	used := o.ports.PortsInUse(o.store.Snapshot())
	lo, hi := portmanager.AllowedRange(limit)

	tryReserve := func(port int) bool {
		if used[port] {
			return false
		}
		o.mu.Lock()
		if o.reserved[port] {
			o.mu.Unlock()
			return false
		}
		o.mu.Unlock()

		if !o.ports.IsPortFreeOnHost(port) {
			return false
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.reserved[port] {
			return false
		}
		o.reserved[port] = true
		return true
	}

	if sequential {
		for attempts := 0; attempts < maxProbeAttempts; attempts++ {
			o.mu.Lock()
			port := o.nextPort
			o.nextPort++
			o.mu.Unlock()

			if port > hi {
				return 0, portmanager.ErrNoFreePort
			}
			if tryReserve(port) {
				return port, nil
			}
		}
		return 0, portmanager.ErrNoFreePort
	}

	if lp := prof.LastPort; lp != 0 && portmanager.InAllowedRange(lp, limit) && tryReserve(lp) {
		return lp, nil
	}

	attempts := 0
	for port := lo; port <= hi && attempts < maxProbeAttempts; port++ {
		if used[port] {
			continue
		}
		o.mu.Lock()
		taken := o.reserved[port]
		o.mu.Unlock()
		if taken {
			continue
		}
		attempts++
		if tryReserve(port) {
			return port, nil
		}
	}
	return 0, portmanager.ErrNoFreePort
}
