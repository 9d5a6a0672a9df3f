// Package saga runs a sequence of steps, each paired with a compensating
// action. When a step fails, the compensations of every completed step run in
// reverse order.
package saga

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// Step is one forward action and its undo. Undo may be nil for steps with
// nothing to roll back.
type Step struct {
	Name string
	Do   func(ctx context.Context) error
	Undo func(ctx context.Context) error
}

// StepError reports which step failed. The saga was fully compensated.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CompensationError reports that one or more compensations failed after a
// step error, leaving partial state behind that needs manual reconciliation.
type CompensationError struct {
	// Cause is the step failure that triggered compensation.
	Cause *StepError
	// Failed names the steps whose Undo failed, in the order they ran.
	Failed []string
	// Errs combines every Undo error.
	Errs error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for [%s] after %v: %v",
		strings.Join(e.Failed, ", "), e.Cause, e.Errs)
}

func (e *CompensationError) Unwrap() error {
	return e.Cause
}

// Saga executes steps with one span per action.
type Saga struct {
	name   string
	tracer trace.Tracer
}

// New creates a Saga whose spans are named after name.
func New(name string, tp trace.TracerProvider) *Saga {
	return &Saga{
		name:   name,
		tracer: tp.Tracer("saga"),
	}
}

// Run executes steps in order. On the first failure it compensates and
// returns *StepError, or *CompensationError if any Undo failed too.
//
// Compensations run on a context detached from ctx's cancellation so a client
// disconnect cannot abort a rollback halfway.
func (s *Saga) Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := s.do(ctx, step); err != nil {
			cause := &StepError{Step: step.Name, Err: err}
			return s.compensate(context.WithoutCancel(ctx), steps[:i], cause)
		}
	}
	return nil
}

func (s *Saga) do(ctx context.Context, step Step) error {
	ctx, span := s.tracer.Start(ctx, s.name+"."+step.Name)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "before step")
	}
	if err := step.Do(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Saga) compensate(ctx context.Context, done []Step, cause *StepError) error {
	var (
		failed []string
		errs   error
	)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}

		stepCtx, span := s.tracer.Start(ctx, s.name+".compensate."+step.Name,
			trace.WithAttributes(attribute.String("saga.cause", cause.Step)),
		)
		if err := step.Undo(stepCtx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			failed = append(failed, step.Name)
			errs = multierr.Append(errs, errors.Wrapf(err, "undo %s", step.Name))
		}
		span.End()
	}

	if errs != nil {
		return &CompensationError{Cause: cause, Failed: failed, Errs: errs}
	}
	return cause
}
