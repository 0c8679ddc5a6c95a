// Package schedule switches the panel backlight on a cron schedule, e.g.
// off at night and back on in the morning.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "stlcd/internal/log"
)

// Display is the part of the panel driver the schedule drives.
type Display interface {
	TurnDisplayOff() error
	TurnDisplayOn() error
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// New registers the off and on expressions (standard 5-field cron). An
// empty expression is skipped. Returns an error for an invalid expression.
func New(d Display, offSpec, onSpec string) (*Scheduler, error) {
	c := cron.New()

	add := func(spec, what string, fn func() error) error {
		if spec == "" {
			return nil
		}
		_, err := c.AddFunc(spec, func() {
			if err := fn(); err != nil {
				appLog.Error("scheduled backlight change failed", err, "action", what)
				return
			}
			appLog.Info("scheduled backlight change", "action", what)
		})
		if err != nil {
			return fmt.Errorf("schedule: invalid %s expression %q: %w", what, spec, err)
		}
		return nil
	}

	if err := add(offSpec, "off", d.TurnDisplayOff); err != nil {
		return nil, err
	}
	if err := add(onSpec, "on", d.TurnDisplayOn); err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

// Len is the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
