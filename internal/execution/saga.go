package execution

import (
	"context"

	"github.com/rs/zerolog"
)

// compensation undoes one forward step.
type compensation struct {
	step string
	desc string
	undo func(ctx context.Context) error
}

// saga runs forward steps and keeps their compensations on a stack.
//
// Each compensation is pushed before its forward step runs. Forward steps
// are atomic (a single CAS, transfer or ledger batch), so a step that
// fails is popped again without being undone.
type saga struct {
	log  zerolog.Logger
	done []compensation
}

// run pushes undo, then executes do. On failure the undo is discarded.
func (s *saga) run(ctx context.Context, step, desc string, do, undo func(ctx context.Context) error) error {
	s.done = append(s.done, compensation{step: step, desc: desc, undo: undo})
	if err := do(ctx); err != nil {
		s.done = s.done[:len(s.done)-1]
		return err
	}
	return nil
}

// rollback runs every recorded compensation in reverse order. It keeps
// going past failures and returns how many compensations failed.
func (s *saga) rollback(ctx context.Context) int {
	failed := 0
	for i := len(s.done) - 1; i >= 0; i-- {
		c := s.done[i]
		if err := c.undo(ctx); err != nil {
			failed++
			s.log.Error().Err(err).Str("step", c.step).Str("target", c.desc).Msg("compensation failed")
			continue
		}
		s.log.Debug().Str("step", c.step).Str("target", c.desc).Msg("compensated")
	}
	s.done = nil
	return failed
}
