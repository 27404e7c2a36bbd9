package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func started(t *testing.T) *Queue {
	t.Helper()
	q := New("test", nil, nil)
	q.Start(context.Background())
	t.Cleanup(q.Stop)
	return q
}

// waitDone blocks until the queue has run a sentinel task enqueued last.
func waitDone(t *testing.T, q *Queue) {
	t.Helper()
	done := make(chan struct{})
	if !q.Enqueue(KindMessage, "sentinel", func(context.Context) error {
		close(done)
		return nil
	}) {
		t.Fatal("sentinel rejected")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for queue to drain")
	}
}

func TestFIFOOrder(t *testing.T) {
	q := started(t)

	var mu sync.Mutex
	var got []int
	for i := range 100 {
		q.Enqueue(KindMessage, fmt.Sprint(i), func(context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			return nil
		})
	}
	waitDone(t, q)

	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d ran task %d, want FIFO order", i, v)
		}
	}
}

func TestConcurrentEnqueueNeverOverlaps(t *testing.T) {
	q := started(t)

	var inFlight, maxInFlight atomic.Int32
	var perProducer [8][]int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				q.Enqueue(KindStatus, fmt.Sprintf("%d-%d", p, i), func(context.Context) error {
					n := inFlight.Add(1)
					for {
						old := maxInFlight.Load()
						if n <= old || maxInFlight.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(10 * time.Microsecond)
					mu.Lock()
					perProducer[p] = append(perProducer[p], i)
					mu.Unlock()
					inFlight.Add(-1)
					return nil
				})
			}
		}()
	}
	wg.Wait()
	waitDone(t, q)

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxInFlight.Load())
	}
	// Each producer's tasks must keep their relative order.
	for p, seq := range perProducer {
		if len(seq) != 50 {
			t.Fatalf("producer %d: ran %d tasks, want 50", p, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("producer %d: position %d ran %d", p, i, v)
			}
		}
	}
}

func TestEnqueueReturnsWhileTaskRuns(t *testing.T) {
	q := started(t)

	release := make(chan struct{})
	running := make(chan struct{})
	q.Enqueue(KindMessage, "prior", func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running

	m1Started := make(chan struct{})
	returned := make(chan bool, 1)
	go func() {
		returned <- q.Enqueue(KindMessage, "M1", func(context.Context) error {
			close(m1Started)
			return nil
		})
	}()

	select {
	case ok := <-returned:
		if !ok {
			t.Fatal("Enqueue(M1) rejected")
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while another task was running")
	}

	select {
	case <-m1Started:
		t.Fatal("M1 started before the prior task completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-m1Started:
	case <-time.After(time.Second):
		t.Fatal("M1 never ran after prior task completed")
	}
}

func TestEnqueueNeverRunsInline(t *testing.T) {
	q := New("test", nil, nil)
	defer q.Stop()

	ran := false
	q.Enqueue(KindMessage, "x", func(context.Context) error {
		ran = true
		return nil
	})
	if ran {
		t.Fatal("task ran inline before Start")
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	q.Start(context.Background())
	waitDone(t, q)
	if !ran {
		t.Error("pending task did not run after Start")
	}
}

func TestFailingTasksDoNotStopLoop(t *testing.T) {
	q := started(t)

	var count atomic.Int32
	q.Enqueue(KindMessage, "err", func(context.Context) error {
		count.Add(1)
		return errors.New("boom")
	})
	q.Enqueue(KindMessage, "panic", func(context.Context) error {
		count.Add(1)
		panic("kaboom")
	})
	q.Enqueue(KindMessage, "ok", func(context.Context) error {
		count.Add(1)
		return nil
	})
	waitDone(t, q)

	if count.Load() != 3 {
		t.Errorf("ran %d tasks, want 3 (failures must not stop the loop)", count.Load())
	}
}

func TestFailedTaskIsNotRequeued(t *testing.T) {
	q := started(t)

	var count atomic.Int32
	q.Enqueue(KindStatus, "once", func(context.Context) error {
		count.Add(1)
		return errors.New("fail")
	})
	waitDone(t, q)
	waitDone(t, q)

	if count.Load() != 1 {
		t.Errorf("failed task ran %d times, want 1", count.Load())
	}
}

// TestEnqueueDuringWorkerExit hammers the window where the worker finds the
// list empty and goes idle. No task may be stranded.
func TestEnqueueDuringWorkerExit(t *testing.T) {
	q := started(t)

	for i := range 2000 {
		done := make(chan struct{})
		q.Enqueue(KindMessage, fmt.Sprint(i), func(context.Context) error {
			close(done)
			return nil
		})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("task %d stranded", i)
		}
	}
}

func TestStopRejectsAndWaits(t *testing.T) {
	q := New("test", nil, nil)
	q.Start(context.Background())

	release := make(chan struct{})
	running := make(chan struct{})
	finished := make(chan struct{})
	q.Enqueue(KindMessage, "slow", func(context.Context) error {
		close(running)
		<-release
		close(finished)
		return nil
	})
	var dropped atomic.Bool
	q.Enqueue(KindMessage, "pending", func(context.Context) error {
		dropped.Store(true)
		return nil
	})
	<-running

	stopped := make(chan struct{})
	go func() {
		q.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a task was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after running task finished")
	}
	<-finished

	if dropped.Load() {
		t.Error("pending task ran after Stop")
	}
	if q.Enqueue(KindMessage, "late", func(context.Context) error { return nil }) {
		t.Error("Enqueue after Stop should return false")
	}
}
