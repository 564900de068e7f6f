// Package sync runs the coordination pipeline on a schedule: process new
// events, sweep open triggers, then deliver what is pending.
package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/coordination/internal/coordination"
	"github.com/nhle/coordination/internal/notify"
)

// Stage names one step of a run.
type Stage string

const (
	StageProcess Stage = "process"
	StageSweep   Stage = "sweep"
	StageDeliver Stage = "deliver"
)

// Stages lists the steps of a run in execution order.
var Stages = []Stage{StageProcess, StageSweep, StageDeliver}

// SyncState represents the current state of a stage.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the state of a single stage.
type SyncStatus struct {
	Stage    Stage
	State    SyncState
	LastSync time.Time
	Error    error
}

// RunResult is the outcome of one full pass.
type RunResult struct {
	Process *coordination.ProcessResult `json:"process,omitempty"`
	Sweep   *coordination.SweepResult   `json:"sweep,omitempty"`
	Deliver *notify.DeliveryResult      `json:"deliver,omitempty"`
}

// stageTimeout is the maximum time allowed for a single stage.
const stageTimeout = 2 * time.Minute

// limiterMaxAge evicts pacing state for projects that went quiet.
const limiterMaxAge = time.Hour

// Options configures a Runner.
type Options struct {
	// ProjectID scopes every stage; empty means all projects.
	ProjectID string

	Interval            time.Duration
	DeliveriesPerMinute int
}

// Runner orchestrates periodic coordination passes.
type Runner struct {
	engine  *coordination.Engine
	gate    *notify.Gate
	opts    Options
	logger  *zap.Logger
	limiter *projectLimiter

	statuses  map[Stage]*SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        gosync.Mutex
	running   bool
}

// New creates a Runner. A nil logger disables logging.
func New(engine *coordination.Engine, gate *notify.Gate, opts Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	r := &Runner{
		engine:    engine,
		gate:      gate,
		opts:      opts,
		logger:    logger.Named("sync"),
		limiter:   newProjectLimiter(opts.DeliveriesPerMinute),
		statuses:  make(map[Stage]*SyncStatus, len(Stages)),
		triggerCh: make(chan struct{}, 1),
	}
	for _, st := range Stages {
		r.statuses[st] = &SyncStatus{Stage: st, State: SyncIdle}
	}
	return r
}

// Start launches the background loop. It runs a pass immediately and then
// every Interval until Stop is called or ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop(ctx, r.stopCh, r.doneCh)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	done := r.doneCh
	r.running = false
	r.mu.Unlock()

	<-done
}

// Refresh requests an immediate pass from the running loop.
func (r *Runner) Refresh() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
		// A pass is already queued.
	}
}

// Statuses returns the current state of every stage in execution order.
func (r *Runner) Statuses() []SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(Stages))
	for _, st := range Stages {
		statuses = append(statuses, *r.statuses[st])
	}
	return statuses
}

func (r *Runner) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.runLogged(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runLogged(ctx)
		case <-r.triggerCh:
			r.runLogged(ctx)
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("coordination pass failed", zap.Error(err))
	}
	r.limiter.Evict(limiterMaxAge)
}

// RunOnce performs one process, sweep and deliver pass. A failing stage
// stops the pass; the next pass retries from stored state.
func (r *Runner) RunOnce(ctx context.Context) (*RunResult, error) {
	res := &RunResult{}

	err := r.stage(ctx, StageProcess, func(ctx context.Context) error {
		var err error
		res.Process, err = r.engine.ProcessCoordinationEvents(ctx, coordination.ProcessOptions{
			ProjectID: r.opts.ProjectID,
		})
		return err
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, StageSweep, func(ctx context.Context) error {
		var err error
		res.Sweep, err = r.engine.RunScheduledCoordinationSweep(ctx, r.opts.ProjectID)
		return err
	})
	if err != nil {
		return res, err
	}

	err = r.stage(ctx, StageDeliver, func(ctx context.Context) error {
		var err error
		res.Deliver, err = r.gate.DeliverPending(ctx, r.opts.ProjectID, r.limiter)
		return err
	})
	return res, err
}

func (r *Runner) stage(ctx context.Context, st Stage, fn func(context.Context) error) error {
	r.setStatus(st, SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		r.setStatus(st, SyncError, err)
		return fmt.Errorf("%s stage: %w", st, err)
	}
	r.setStatus(st, SyncIdle, nil)
	return nil
}

// setStatus updates the status of a stage.
func (r *Runner) setStatus(st Stage, state SyncState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.statuses[st]
	if !ok {
		return
	}

	status.State = state
	status.Error = err
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
