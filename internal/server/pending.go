package server

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/zot/ui-data/internal/config"
)

// maxPendingFrames bounds a poll queue; the oldest frames are dropped first.
const maxPendingFrames = 1000

// PendingQueue accumulates frames for a long-polling client.
type PendingQueue struct {
	store    string
	queue    []Frame
	waiters  []chan struct{}
	lastPoll time.Time
	cancel   func()
	mu       sync.Mutex
}

// NewPendingQueue creates a queue for the events of a store.
func NewPendingQueue(storeID string) *PendingQueue {
	return &PendingQueue{store: storeID, lastPoll: time.Now()}
}

// Store returns the id of the store the queue follows.
func (q *PendingQueue) Store() string {
	return q.store
}

// Enqueue adds a frame and wakes any waiting poll.
func (q *PendingQueue) Enqueue(f Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue = append(q.queue, f)
	if over := len(q.queue) - maxPendingFrames; over > 0 {
		q.queue = q.queue[over:]
	}
	q.notify()
}

// notify wakes waiting polls. Callers hold mu.
func (q *PendingQueue) notify() {
	for _, ch := range q.waiters {
		select {
		case ch <- struct{}{}:
		default:
			// Waiter already notified
		}
	}
}

// wake releases waiting polls without adding frames.
func (q *PendingQueue) wake() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.notify()
}

// Drain returns all pending frames and clears the queue.
func (q *PendingQueue) Drain() []Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastPoll = time.Now()
	frames := q.queue
	q.queue = nil
	return frames
}

// Poll returns pending frames, waiting up to wait for the first one to
// arrive. A zero wait returns immediately.
func (q *PendingQueue) Poll(ctx context.Context, wait time.Duration) []Frame {
	frames := q.Drain()
	if len(frames) > 0 || wait <= 0 {
		return frames
	}

	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}

	q.mu.Lock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	return q.Drain()
}

// Len returns the number of pending frames.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *PendingQueue) idleSince() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastPoll
}

// PendingQueueManager tracks the queues of long-polling clients by client id.
type PendingQueueManager struct {
	config *config.Config
	queues map[string]*PendingQueue
	mu     sync.RWMutex
}

// NewPendingQueueManager creates an empty manager.
func NewPendingQueueManager(cfg *config.Config) *PendingQueueManager {
	return &PendingQueueManager{
		config: cfg,
		queues: make(map[string]*PendingQueue),
	}
}

// Open creates a queue for storeID and returns its client id. follow is
// called with the queue's Enqueue and returns the function that stops the
// feed when the queue is removed.
func (m *PendingQueueManager) Open(storeID string, follow func(sink func(Frame)) func()) string {
	id := ulid.Make().String()
	q := NewPendingQueue(storeID)
	q.cancel = follow(q.Enqueue)

	m.mu.Lock()
	m.queues[id] = q
	m.mu.Unlock()
	m.config.Log(1, "poll client %s opened for store %s", id, storeID)
	return id
}

// GetQueue returns a client's queue.
func (m *PendingQueueManager) GetQueue(clientID string) (*PendingQueue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[clientID]
	return q, ok
}

// RemoveQueue stops a client's feed and drops its queue.
func (m *PendingQueueManager) RemoveQueue(clientID string) bool {
	m.mu.Lock()
	q, ok := m.queues[clientID]
	delete(m.queues, clientID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.wake()
	m.config.Log(1, "poll client %s closed", clientID)
	return true
}

// Reap removes queues that have not been polled for longer than idle and
// returns how many it removed.
func (m *PendingQueueManager) Reap(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []string
	m.mu.RLock()
	for id, q := range m.queues {
		if q.idleSince().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range stale {
		m.RemoveQueue(id)
	}
	return len(stale)
}

// Len returns the number of open poll clients.
func (m *PendingQueueManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queues)
}

// Close removes every queue.
func (m *PendingQueueManager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.RemoveQueue(id)
	}
}
