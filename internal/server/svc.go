package server

import (
	"errors"
	"sync"

	"github.com/zot/ui-data/internal/config"
)

var errStopped = errors.New("server is shutting down")

// ChanSvc is a serial executor: functions sent to it run one at a time, in
// the order they were queued.
type ChanSvc chan func()

// SvcSync runs code on s and waits for its result, giving up with
// errStopped when done closes.
func SvcSync[T any](s ChanSvc, done <-chan struct{}, code func() (T, error)) (T, error) {
	var zero T
	var value T
	var err error
	select {
	case <-done:
		return zero, errStopped
	default:
	}
	result := make(chan struct{})
	select {
	case s <- func() {
		value, err = code()
		close(result)
	}:
	case <-done:
		return zero, errStopped
	}
	select {
	case <-result:
		return value, err
	case <-done:
		return zero, errStopped
	}
}

// RunSvc runs a service until done closes.
func RunSvc(s ChanSvc, done <-chan struct{}) {
	go func() {
		for {
			select {
			case cmd := <-s:
				cmd()
			case <-done:
				return
			}
		}
	}()
}

// executors hands out one ChanSvc per store id, so HTTP reads and writes on
// a store run in issue order while different stores proceed in parallel.
type executors struct {
	config   *config.Config
	svcs     map[string]ChanSvc
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

func newExecutors(cfg *config.Config) *executors {
	return &executors{
		config: cfg,
		svcs:   make(map[string]ChanSvc),
		done:   make(chan struct{}),
	}
}

// get returns the executor for id, starting one if needed.
func (e *executors) get(id string) ChanSvc {
	e.mu.Lock()
	defer e.mu.Unlock()
	if svc, ok := e.svcs[id]; ok {
		return svc
	}
	svc := make(ChanSvc)
	e.svcs[id] = svc
	RunSvc(svc, e.done)
	e.config.Log(3, "executor started for store %s", id)
	return svc
}

// stop ends every executor. Callers still waiting get errStopped.
func (e *executors) stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

// run executes fn on the executor for id.
func run[T any](e *executors, id string, fn func() (T, error)) (T, error) {
	return SvcSync(e.get(id), e.done, fn)
}
