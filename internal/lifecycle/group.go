// Package lifecycle runs the daemon's long-lived tasks and tears them down
// in a fixed order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

type step struct {
	name string
	fn   func() error
}

// Group collects tasks and teardown steps. Tasks and steps must be
// registered before Run and Shutdown respectively.
type Group struct {
	mu    sync.Mutex
	tasks []task
	steps []step

	once     sync.Once
	shutdown error
}

// New returns an empty group.
func New() *Group {
	return &Group{}
}

// Go registers a task. A task should return nil when ctx is cancelled;
// any non-nil error stops the whole group.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.mu.Lock()
	g.tasks = append(g.tasks, task{name: name, fn: fn})
	g.mu.Unlock()
}

// OnShutdown registers a teardown step. Steps run in registration order.
func (g *Group) OnShutdown(name string, fn func() error) {
	g.mu.Lock()
	g.steps = append(g.steps, step{name: name, fn: fn})
	g.mu.Unlock()
}

// Run starts every task and blocks until all have returned. The first task
// error cancels the others and is returned.
func (g *Group) Run(ctx context.Context) error {
	g.mu.Lock()
	tasks := append([]task(nil), g.tasks...)
	g.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		eg.Go(func() error {
			log.WithField("task", t.name).Debug("lifecycle: task started")
			if err := t.fn(ctx); err != nil {
				log.WithField("task", t.name).WithError(err).Error("lifecycle: task failed")
				return fmt.Errorf("%s: %w", t.name, err)
			}
			log.WithField("task", t.name).Debug("lifecycle: task stopped")
			return nil
		})
	}
	return eg.Wait()
}

// Shutdown runs the teardown steps once. A failing step is logged and does
// not stop the ones after it. Later calls return the first call's result.
func (g *Group) Shutdown() error {
	g.once.Do(func() {
		g.mu.Lock()
		steps := append([]step(nil), g.steps...)
		g.mu.Unlock()

		var errs []error
		for _, s := range steps {
			if err := s.fn(); err != nil {
				log.WithField("step", s.name).WithError(err).Warn("lifecycle: teardown step failed")
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			log.WithField("step", s.name).Debug("lifecycle: teardown step done")
		}
		g.shutdown = errors.Join(errs...)
	})
	return g.shutdown
}
