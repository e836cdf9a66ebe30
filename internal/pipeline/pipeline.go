// Package pipeline runs an ordered, fixed list of stages over a per-run
// context value.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/autolog/autoanalysis/internal/metrics"
)

// ErrHalt stops a run early without failing it. The context returned by the
// halting stage becomes the result.
var ErrHalt = errors.New("pipeline halted")

// Stage is one step of a pipeline. It receives the context produced by the
// previous stage and returns the context for the next one.
type Stage[C any] interface {
	Name() string
	Run(ctx context.Context, c C) (C, error)
}

type stageFunc[C any] struct {
	name string
	fn   func(ctx context.Context, c C) (C, error)
}

func (s stageFunc[C]) Name() string { return s.name }

func (s stageFunc[C]) Run(ctx context.Context, c C) (C, error) { return s.fn(ctx, c) }

// StageFunc adapts a function to a named Stage.
func StageFunc[C any](name string, fn func(ctx context.Context, c C) (C, error)) Stage[C] {
	return stageFunc[C]{name: name, fn: fn}
}

// Pipeline is immutable once built and safe for concurrent runs, provided
// the stages themselves are.
type Pipeline[C any] struct {
	name   string
	stages []Stage[C]
}

func New[C any](name string, stages ...Stage[C]) *Pipeline[C] {
	return &Pipeline[C]{name: name, stages: append([]Stage[C](nil), stages...)}
}

// Run executes the stages in order. The first stage error stops the run
// and is returned as is, together with the context produced by the last
// successful stage. There is no retry or rollback.
func (p *Pipeline[C]) Run(ctx context.Context, c C) (C, error) {
	for _, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return c, err
		}

		start := time.Now()
		next, err := s.Run(ctx, c)
		outcome := "ok"
		switch {
		case errors.Is(err, ErrHalt):
			outcome = "halted"
		case err != nil:
			outcome = "error"
		}
		metrics.StageDuration.WithLabelValues(p.name, s.Name(), outcome).Observe(time.Since(start).Seconds())

		if errors.Is(err, ErrHalt) {
			return next, nil
		}
		if err != nil {
			return c, err
		}
		c = next
	}
	return c, nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline[C]) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
