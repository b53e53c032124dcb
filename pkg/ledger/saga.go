package ledger

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type sagaStep struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the undo of every step already done runs in reverse order.
type saga struct {
	steps []sagaStep
}

func (s *saga) add(name string, do func(ctx context.Context) error, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, do: do, undo: undo})
}

func (s *saga) run(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.do(ctx); err != nil {
			log.Warnf("saga step %q failed, compensating %d step(s): %v", step.name, i, err)
			s.compensate(ctx, s.steps[:i])
			return err
		}
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, done []sagaStep) {
	// undo must complete even when the request is gone
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.undo == nil {
			continue
		}
		if err := step.undo(ctx); err != nil {
			log.Errorf("saga: could not undo step %q: %v", step.name, err)
		}
	}
}
