package compute

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrConductorBusy is returned when the completion queue is full.
var ErrConductorBusy = errors.New("conductor queue is full")

// completion is an accepted task waiting to be finished.
type completion struct {
	InstanceID string
	Op         Operation
	Host       string
}

// Conductor finishes accepted tasks in the background, moving instances to
// their destination vm_state and clearing task_state.
type Conductor struct {
	store     *InstanceStore
	lifecycle *Lifecycle
	logger    *slog.Logger
	queue     chan completion
	delay     time.Duration
}

// NewConductor creates a conductor with a bounded queue. delay simulates the
// time an operation takes on the hypervisor.
func NewConductor(store *InstanceStore, lifecycle *Lifecycle, queueSize int, delay time.Duration, logger *slog.Logger) *Conductor {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Conductor{
		store:     store,
		lifecycle: lifecycle,
		logger:    logger,
		queue:     make(chan completion, queueSize),
		delay:     delay,
	}
}

// Submit queues a task for completion without blocking.
func (c *Conductor) Submit(instanceID string, op Operation, host string) error {
	select {
	case c.queue <- completion{InstanceID: instanceID, Op: op, Host: host}:
		return nil
	default:
		return ErrConductorBusy
	}
}

// Pending returns the number of queued tasks.
func (c *Conductor) Pending() int {
	return len(c.queue)
}

// Run starts workers and blocks until ctx is cancelled.
func (c *Conductor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-c.queue:
					if c.delay > 0 {
						select {
						case <-ctx.Done():
							return
						case <-time.After(c.delay):
						}
					}
					c.finish(ctx, job)
				}
			}
		}()
	}
	wg.Wait()
}

// Drain finishes every queued task synchronously.
func (c *Conductor) Drain(ctx context.Context) {
	for {
		select {
		case job := <-c.queue:
			c.finish(ctx, job)
		default:
			return
		}
	}
}

func (c *Conductor) finish(ctx context.Context, job completion) {
	inst, err := c.store.Get(ctx, job.InstanceID)
	if err != nil {
		c.logger.Error("conductor: instance lookup failed", "instance", job.InstanceID, "op", job.Op, "error", err)
		return
	}
	dst, err := c.lifecycle.Complete(ctx, job.Op, inst.VMState)
	if err != nil {
		c.logger.Error("conductor: transition failed, marking instance error",
			"instance", job.InstanceID, "op", job.Op, "from", inst.VMState, "error", err)
		dst = VMStateError
	}
	if err := c.store.FinishTask(ctx, job.InstanceID, dst, job.Host); err != nil {
		c.logger.Error("conductor: finish task failed", "instance", job.InstanceID, "op", job.Op, "error", err)
		return
	}
	c.logger.Info("conductor: task finished", "instance", job.InstanceID, "op", job.Op, "vm_state", dst)
}
