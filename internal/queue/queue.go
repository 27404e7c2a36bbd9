// Package queue implements the per-instance serialized event queue.
//
// A Queue runs at most one task at a time, in the order tasks were enqueued.
// Enqueue never runs a task inline and never waits for one to finish. Task
// failures (returned errors or panics) are logged and the task is dropped;
// nothing is retried. Tasks live in memory only, so a restart loses whatever
// was still waiting.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/wppbridge/internal/metrics"
	"go.uber.org/zap"
)

// Kind classifies a task for logs and metrics.
type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
	KindEdit    Kind = "edit"
)

// Task is one unit of serialized work.
type Task struct {
	Kind          Kind
	CorrelationID string
	Run           func(ctx context.Context) error
}

// Queue is an ordered single-consumer task queue owned by one instance.
type Queue struct {
	instanceID string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu         sync.Mutex
	tasks      []Task
	processing bool
	started    bool
	stopped    bool
	ctx        context.Context
	wg         sync.WaitGroup
}

// New creates a queue for the given instance. It accepts tasks immediately
// but runs none until Start is called.
func New(instanceID string, logger *zap.Logger, m *metrics.Metrics) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		instanceID: instanceID,
		logger:     logger.With(zap.String("component", "queue")),
		metrics:    m,
		ctx:        context.Background(),
	}
}

// Start begins draining. Tasks receive ctx; the queue itself never cancels a
// running task.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	q.ctx = ctx
	q.kickLocked()
}

// Stop rejects further tasks, discards the ones still waiting and blocks
// until the running task, if any, has returned.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	dropped := len(q.tasks)
	q.tasks = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("queue stopped with pending tasks", zap.Int("dropped", dropped))
	}
	q.metrics.SetQueueDepth(0)
	q.wg.Wait()
}

// Enqueue appends a task to the tail and starts the worker if it is idle.
// It returns false once the queue has been stopped.
func (q *Queue) Enqueue(kind Kind, correlationID string, run func(ctx context.Context) error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.tasks = append(q.tasks, Task{Kind: kind, CorrelationID: correlationID, Run: run})
	q.metrics.SetQueueDepth(len(q.tasks))
	q.kickLocked()
	return true
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// kickLocked starts a worker unless one is already draining. The caller holds
// q.mu, which is also held when the worker observes an empty list and clears
// processing, so a task appended concurrently is never stranded.
func (q *Queue) kickLocked() {
	if q.processing || !q.started || q.stopped || len(q.tasks) == 0 {
		return
	}
	q.processing = true
	q.wg.Add(1)
	go q.drain(q.ctx)
}

func (q *Queue) drain(ctx context.Context) {
	defer q.wg.Done()
	for {
		task, ok := q.next()
		if !ok {
			return
		}
		q.run(ctx, task)
	}
}

// next pops the head task, or marks the worker idle when there is none.
func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 || q.stopped {
		q.processing = false
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	q.metrics.SetQueueDepth(len(q.tasks))
	return task, true
}

func (q *Queue) run(ctx context.Context, task Task) {
	logger := q.logger.With(
		zap.String("kind", string(task.Kind)),
		zap.String("correlation_id", task.CorrelationID),
	)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		return task.Run(ctx)
	}()

	if err != nil {
		logger.Error("task failed", zap.Error(err))
		q.metrics.TaskDone(string(task.Kind), metrics.ResultFailed)
		return
	}
	logger.Debug("task done")
	q.metrics.TaskDone(string(task.Kind), metrics.ResultOK)
}
