// Package supervise runs activation tasks concurrently. A Task's failure is
// returned from Wait; a BestEffort task can only log.
package supervise

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Task is work whose failure the caller must see.
type Task func(ctx context.Context) error

// BestEffort is work whose failure is logged and dropped.
type BestEffort func(ctx context.Context) error

// Group is a set of tasks sharing one context.
type Group struct {
	g      *errgroup.Group
	ctx    context.Context
	logger *log.Logger
}

// New returns a Group whose context is cancelled when a Task fails or ctx
// is done.
func New(ctx context.Context, logger *log.Logger) *Group {
	if logger == nil {
		logger = log.Default()
	}
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx, logger: logger}
}

// Go starts a Task. Its error, wrapped with name, is returned by Wait.
func (s *Group) Go(name string, task Task) {
	s.g.Go(func() error {
		if err := task(s.ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// GoBestEffort starts a BestEffort task. Errors and panics are logged at
// warn level and never reach Wait.
func (s *Group) GoBestEffort(name string, task BestEffort) {
	s.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Warn("best-effort task panicked", "task", name, "panic", r)
			}
		}()
		if err := task(s.ctx); err != nil {
			s.logger.Warn("best-effort task failed", "task", name, "err", err)
		}
		return nil
	})
}

// Wait blocks until every task returns and reports the first Task error.
func (s *Group) Wait() error {
	return s.g.Wait()
}
