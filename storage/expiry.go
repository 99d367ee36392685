package storage

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// expiration is a pending removal of a key
type expiration struct {
	key     string
	version uint64
	at      time.Time
}

// expiryQueue is a min-heap of expirations ordered by deadline
type expiryQueue []expiration

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x any) {
	*q = append(*q, x.(expiration))
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// expiryWorker owns one queue and one timer
type expiryWorker struct {
	mu    sync.Mutex
	queue expiryQueue
	wake  chan struct{}
}

// expiryScheduler runs a fixed pool of workers. A key is always routed
// to the same worker so its expirations fire in deadline order.
type expiryScheduler struct {
	workers []*expiryWorker
	fire    func(key string, version uint64)
	logger  *zap.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	// onPanic is invoked after a recovered panic in fire
	onPanic func()
}

func newExpiryScheduler(workers int, logger *zap.Logger, fire func(key string, version uint64)) *expiryScheduler {
	if workers < 1 {
		workers = 1
	}
	if workers > MaxExpiryWorkers {
		workers = MaxExpiryWorkers
	}

	s := &expiryScheduler{
		workers: make([]*expiryWorker, workers),
		fire:    fire,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	for i := range s.workers {
		s.workers[i] = &expiryWorker{wake: make(chan struct{}, 1)}
	}

	s.wg.Add(len(s.workers))
	for i, w := range s.workers {
		go s.run(i, w)
	}

	return s
}

// workerFor selects the worker responsible for a key
func (s *expiryScheduler) workerFor(key string) *expiryWorker {
	return s.workers[xxhash.Sum64String(key)%uint64(len(s.workers))]
}

// Schedule queues a removal of key at the given deadline
func (s *expiryScheduler) Schedule(key string, version uint64, at time.Time) {
	w := s.workerFor(key)

	w.mu.Lock()
	heap.Push(&w.queue, expiration{key: key, version: version, at: at})
	head := w.queue[0].at.Equal(at)
	w.mu.Unlock()

	// Only a new head changes when the worker must wake up
	if head {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued expirations across all workers
func (s *expiryScheduler) Pending() int {
	total := 0
	for _, w := range s.workers {
		w.mu.Lock()
		total += len(w.queue)
		w.mu.Unlock()
	}
	return total
}

// Close stops all workers. Queued expirations are dropped.
func (s *expiryScheduler) Close() {
	close(s.stop)
	s.wg.Wait()
}

func (s *expiryScheduler) run(id int, w *expiryWorker) {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		var wait <-chan time.Time
		if d, ok := w.nextDelay(time.Now()); ok {
			timer.Reset(d)
			wait = timer.C
		}

		select {
		case <-s.stop:
			return
		case <-w.wake:
			timer.Stop()
		case <-wait:
			for _, e := range w.due(time.Now()) {
				s.expire(id, e)
			}
		}
	}
}

// nextDelay returns the time until the earliest deadline
func (w *expiryWorker) nextDelay(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) == 0 {
		return 0, false
	}
	d := w.queue[0].at.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// due pops every expiration whose deadline has passed
func (w *expiryWorker) due(now time.Time) []expiration {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []expiration
	for len(w.queue) > 0 && !w.queue[0].at.After(now) {
		ready = append(ready, heap.Pop(&w.queue).(expiration))
	}
	return ready
}

// expire runs one removal pass. A panic is logged and swallowed so the
// worker keeps serving later expirations.
func (s *expiryScheduler) expire(id int, e expiration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("expiry removal failed",
				zap.Int("worker", id),
				zap.String("key", e.key),
				zap.Error(fmt.Errorf("panic: %v", r)),
			)
			if s.onPanic != nil {
				s.onPanic()
			}
		}
	}()

	s.fire(e.key, e.version)
}
