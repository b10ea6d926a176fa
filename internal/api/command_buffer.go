/*
Package api
File: command_buffer.go
Description:
    Fixed-size FIFO ring of tasks waiting for the owner loop, with a
    per-requester allowance that refills every time the loop drains.

    Any number of producers (socket read pumps, HTTP handlers) may push;
    only the owner loop drains. A refused push says why, so the caller can
    tell the requester whether the whole server is busy or only they are.
*/

package api

import (
	"errors"
	"sync"
)

const (
	commandBufferOccupancyMetricKey = "command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "command_buffer_overflow_total"
	commandBufferActorLimitKey      = "command_buffer_actor_limit_total"
)

var (
	// ErrQueueFull means the ring has no free slot.
	ErrQueueFull = errors.New("command buffer full")
	// ErrQueueLimit means the requester already used its allowance for this step.
	ErrQueueLimit = errors.New("requester over per-step command limit")
)

// Task is one unit of deferred work for the owner loop.
type Task struct {
	Requester string
	Run       func()
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// CommandBuffer stages tasks between steps.
type CommandBuffer struct {
	mu    sync.Mutex
	ring  []Task
	head  int
	count int

	actorLimit int // 0 disables the per-requester allowance
	perActor   map[string]int

	metrics telemetryMetrics
}

// NewCommandBuffer creates a buffer holding at most capacity tasks, of which
// at most actorLimit may come from one requester between drains.
func NewCommandBuffer(capacity, actorLimit int, metrics telemetryMetrics) *CommandBuffer {
	return &CommandBuffer{
		ring:       make([]Task, max(capacity, 1)),
		actorLimit: max(actorLimit, 0),
		perActor:   make(map[string]int),
		metrics:    metrics,
	}
}

// Capacity reports how many tasks fit in the ring.
func (b *CommandBuffer) Capacity() int { return len(b.ring) }

// Push stages t. It returns ErrQueueLimit or ErrQueueFull on refusal and
// never blocks.
func (b *CommandBuffer) Push(t Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.actorLimit > 0 && b.perActor[t.Requester] >= b.actorLimit {
		b.bump(commandBufferActorLimitKey)
		return ErrQueueLimit
	}
	if b.count == len(b.ring) {
		b.bump(commandBufferOverflowMetricKey)
		return ErrQueueFull
	}
	b.ring[(b.head+b.count)%len(b.ring)] = t
	b.count++
	b.perActor[t.Requester]++
	b.report()
	return nil
}

// Drain hands back every staged task in arrival order and refills every
// requester's allowance.
func (b *CommandBuffer) Drain() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.perActor)
	if b.count == 0 {
		return nil
	}
	out := make([]Task, 0, b.count)
	for ; b.count > 0; b.count-- {
		out = append(out, b.ring[b.head])
		b.ring[b.head] = Task{}
		b.head = (b.head + 1) % len(b.ring)
	}
	b.report()
	return out
}

// Len reports staged tasks.
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Queued reports how many staged tasks belong to requester.
func (b *CommandBuffer) Queued(requester string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perActor[requester]
}

func (b *CommandBuffer) bump(key string) {
	if b.metrics != nil {
		b.metrics.Add(key, 1)
	}
}

func (b *CommandBuffer) report() {
	if b.metrics != nil {
		b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
	}
}
