package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nomadai/kbase/internal/logger"
)

// DefaultSaveInterval is the period between background flushes.
const DefaultSaveInterval = 5 * time.Minute

// FlushFunc persists one store.
type FlushFunc func(ctx context.Context) error

// Autosaver flushes stores on a ticker and once more when stopped.
type Autosaver struct {
	interval time.Duration
	flushers map[string]FlushFunc
	names    []string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewAutosaver creates an autosaver. A non-positive interval uses DefaultSaveInterval.
func NewAutosaver(interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	return &Autosaver{
		interval: interval,
		flushers: make(map[string]FlushFunc),
	}
}

// Add registers a store under name. Stores flush in registration order.
func (a *Autosaver) Add(name string, fn FlushFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.flushers[name]; !ok {
		a.names = append(a.names, name)
	}
	a.flushers[name] = fn
}

// Start runs the ticker loop in the background until Stop or ctx is done.
func (a *Autosaver) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})

	a.wg.Add(1)
	go a.run(ctx, a.stopCh)
}

func (a *Autosaver) run(ctx context.Context, stop <-chan struct{}) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				logger.Warn("autosave: %v", err)
			}
		}
	}
}

// Flush persists every registered store and joins their errors.
func (a *Autosaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	names := append([]string(nil), a.names...)
	fns := make([]FlushFunc, len(names))
	for i, name := range names {
		fns[i] = a.flushers[name]
	}
	a.mu.Unlock()

	var errs []error
	for i, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Stop ends the loop, waits for an in-flight flush and performs the final flush.
func (a *Autosaver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.running = false
		close(a.stopCh)
	}
	a.mu.Unlock()

	a.wg.Wait()
	logger.Debug("autosave: final flush")
	return a.Flush(ctx)
}
