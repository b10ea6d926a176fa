/*
Package api
File: owner.go
Description:
    The owner loop is the single execution context allowed to touch artifact
    state. Socket read pumps and HTTP handlers never mutate inline; they
    Submit a task, and the loop runs queued tasks one at a time at the start
    of each step, then steps the effect systems, then periodically flushes
    dirty artifacts to storage.

    A task that Do gave up on before the loop reached it never runs: either
    the caller gets its result, or the caller is told it did not happen.
*/

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/everforgeworks/galaxies-core/internal/game"
)

// OwnerConfig tunes the command buffer and the step cadence.
type OwnerConfig struct {
	TickInterval    time.Duration
	CommandCapacity int
	PerActorLimit   int // Max queued tasks per requester per step; 0 disables
	FlushEvery      int // Steps between storage flushes
}

// Owner runs the authoritative loop.
type Owner struct {
	buffer  *CommandBuffer
	roster  *Roster
	systems []game.System
	cfg     OwnerConfig
	logger  *slog.Logger
	metrics *Metrics

	tick uint64
}

// ErrAbandoned is returned by Do when ctx ended before the loop started the
// task. The task is then skipped.
var ErrAbandoned = errors.New("task abandoned before it ran")

const (
	taskQueued int32 = iota
	taskStarted
	taskAbandoned
)

// NewOwner wires the loop. systems are stepped in order for every loaded artifact.
func NewOwner(roster *Roster, systems []game.System, cfg OwnerConfig, metrics *Metrics, logger *slog.Logger) *Owner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlushEvery < 1 {
		cfg.FlushEvery = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	return &Owner{
		buffer:  NewCommandBuffer(cfg.CommandCapacity, cfg.PerActorLimit, metrics),
		roster:  roster,
		systems: systems,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Submit queues fn for the next step. It never blocks. On refusal the
// returned reason is ReasonQueueLimit or ReasonQueueFull.
func (o *Owner) Submit(requester string, fn func()) (bool, string) {
	if err := o.buffer.Push(Task{Requester: requester, Run: fn}); err != nil {
		return false, refusalReason(err)
	}
	return true, ""
}

// Do runs fn on the loop and waits for it. If ctx ends while fn is still
// queued, fn is skipped and Do returns ErrAbandoned wrapping ctx.Err(); once
// the loop has started fn, Do waits for it to finish and returns nil.
// A refused submission wraps ErrQueueLimit or ErrQueueFull.
func (o *Owner) Do(ctx context.Context, requester string, fn func()) error {
	var state atomic.Int32
	done := make(chan struct{})
	task := func() {
		if !state.CompareAndSwap(taskQueued, taskStarted) {
			return
		}
		defer close(done)
		fn()
	}
	if err := o.buffer.Push(Task{Requester: requester, Run: task}); err != nil {
		return fmt.Errorf("owner loop refused task: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(taskQueued, taskAbandoned) {
			return fmt.Errorf("%w: %w", ErrAbandoned, ctx.Err())
		}
		// Already running on the loop.
		<-done
		return nil
	}
}

// refusalReason maps a buffer refusal onto its wire reason.
func refusalReason(err error) string {
	if errors.Is(err, ErrQueueLimit) {
		return ReasonQueueLimit
	}
	return ReasonQueueFull
}

// Pending reports queued tasks.
func (o *Owner) Pending() int { return o.buffer.Len() }

// Tick reports completed steps.
func (o *Owner) Tick() uint64 { return o.tick }

// Run steps the loop every TickInterval until ctx ends, then runs one final
// step and flush so accepted requests are not lost.
func (o *Owner) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.Step(context.WithoutCancel(ctx))
			if err := o.roster.Flush(context.WithoutCancel(ctx)); err != nil {
				return fmt.Errorf("final flush: %w", err)
			}
			return nil
		case <-ticker.C:
			o.Step(ctx)
		}
	}
}

// Step drains queued tasks, steps every effect system over loaded artifacts
// and flushes on the configured cadence.
func (o *Owner) Step(ctx context.Context) {
	start := time.Now()

	// 1. Deferred requests, FIFO
	for _, t := range o.buffer.Drain() {
		o.runTask(t)
	}

	// 2. Effect systems
	for _, a := range o.roster.Loaded() {
		for _, sys := range o.systems {
			sys.Step(a)
		}
		o.metrics.ObserveSpent(a.DrainSpent())
	}

	// 3. Persistence
	o.tick++
	if o.tick%uint64(o.cfg.FlushEvery) == 0 {
		if err := o.roster.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.metrics.ObserveFlushFailure()
			o.logger.Error("flush artifacts", slog.String("error", err.Error()))
		}
	}
	o.metrics.ObserveTick(time.Since(start).Seconds())
}

func (o *Owner) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("owner task panicked",
				slog.String("requester", t.Requester),
				slog.Any("panic", r))
		}
	}()
	t.Run()
}
