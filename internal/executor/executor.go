// Package executor runs task plans against the desktop capabilities,
// with retries, timeouts, cancellation and advisory policy gates. Every
// event of one execution carries the same correlation id.
package executor

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"luna/internal/apperr"
	"luna/internal/events"
	"luna/internal/planner"
)

const DryRunPrefix = "[DRY-RUN] Would execute: "

// Result summarises one execution. Messages is indexed by step number;
// steps that did not run leave an empty message.
type Result struct {
	PlanID         uuid.UUID
	CorrelationID  uuid.UUID
	Success        bool
	DryRun         bool
	Messages       []string
	StepsCompleted int
	StepsFailed    int
	StepsSkipped   int
	Duration       time.Duration
}

type Executor struct {
	caps    Capabilities
	bus     *events.Bus
	retry   RetryPolicy
	policy  ExecutionPolicy
	state   *State
	now     func() time.Time
	browser string

	cancelled atomic.Bool
	mu        sync.Mutex
	inflight  map[uuid.UUID]context.CancelCauseFunc
}

type Option func(*Executor)

func WithRetryPolicy(p RetryPolicy) Option { return func(e *Executor) { e.retry = p } }

func WithExecutionPolicy(p ExecutionPolicy) Option { return func(e *Executor) { e.policy = p } }

func WithState(s *State) Option { return func(e *Executor) { e.state = s } }

func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// WithBrowser names the program SearchWeb launches with the search URL.
func WithBrowser(name string) Option { return func(e *Executor) { e.browser = name } }

func New(caps Capabilities, bus *events.Bus, opts ...Option) *Executor {
	e := &Executor{
		caps:     caps,
		bus:      bus,
		retry:    DefaultRetryPolicy(),
		policy:   DefaultExecutionPolicy(),
		state:    NewState(),
		now:      time.Now,
		browser:  "xdg-open",
		inflight: map[uuid.UUID]context.CancelCauseFunc{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) State() *State { return e.state }

func (e *Executor) Capabilities() Capabilities { return e.caps }

var errCancelled = errors.New("execution cancelled")

func cancelledErr() *apperr.Error { return apperr.New(apperr.Cancelled, "Execution cancelled") }

// Cancel stops every running execution. No further step or retry starts,
// and in-flight steps, waits and backoffs return promptly.
func (e *Executor) Cancel() {
	e.cancelled.Store(true)
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.inflight {
		cancel(errCancelled)
	}
	log.Info("Execution cancelled", "running", len(e.inflight))
}

// ExecutePlan runs the plan and reports its outcome. The returned error is
// the first step failure, a cancellation or a plan timeout.
func (e *Executor) ExecutePlan(ctx context.Context, plan planner.TaskPlan) (Result, error) {
	e.cancelled.Store(false)
	return e.run(ctx, plan, false)
}

// Preview runs the plan in dry-run mode: every step reports what it would
// do and no capability is called.
func (e *Executor) Preview(ctx context.Context, plan planner.TaskPlan) (Result, error) {
	return e.run(ctx, plan, true)
}

type execution struct {
	*Executor
	plan   planner.TaskPlan
	id     uuid.UUID
	corr   uuid.UUID
	dryRun bool

	mu        sync.Mutex
	res       Result
	completed map[int]bool
	skipped   map[int]bool
}

func (x *execution) publish(ev events.Event) { x.bus.PublishCorrelated(x.corr, ev) }

func (e *Executor) run(ctx context.Context, plan planner.TaskPlan, dryRun bool) (Result, error) {
	corr, ok := events.CorrelationFrom(ctx)
	if !ok {
		corr = uuid.New()
	}
	x := &execution{
		Executor:  e,
		plan:      plan,
		id:        uuid.New(),
		corr:      corr,
		dryRun:    dryRun,
		completed: map[int]bool{},
		skipped:   map[int]bool{},
	}
	x.res = Result{
		PlanID:        x.id,
		CorrelationID: x.corr,
		DryRun:        dryRun,
		Messages:      make([]string, len(plan.Steps)),
	}
	start := time.Now()

	x.publish(events.PlanStarted{
		PlanID:         x.id,
		StepCount:      len(plan.Steps),
		ParallelGroups: len(plan.ParallelGroups),
		DryRun:         dryRun,
	})
	log.Info("Plan started", "plan", x.id, "steps", len(plan.Steps), "groups", len(plan.ParallelGroups), "dry_run", dryRun)

	err := x.execute(ctx)

	x.res.Duration = time.Since(start)
	x.res.Success = err == nil && x.res.StepsFailed == 0
	x.publish(events.PlanCompleted{
		PlanID:          x.id,
		Success:         x.res.Success,
		TotalDurationMs: x.res.Duration.Milliseconds(),
		StepsCompleted:  x.res.StepsCompleted,
		StepsFailed:     x.res.StepsFailed,
	})
	if err != nil {
		log.Warn("Plan failed", "plan", x.id, "error", err, "completed", x.res.StepsCompleted, "failed", x.res.StepsFailed)
	} else {
		log.Info("Plan completed", "plan", x.id, "completed", x.res.StepsCompleted, "skipped", x.res.StepsSkipped, "duration", x.res.Duration)
	}
	return x.res, err
}

func (x *execution) execute(parent context.Context) error {
	if !x.plan.Valid {
		msg := "invalid plan"
		if len(x.plan.ValidationErrors) > 0 {
			msg += ": " + strings.Join(x.plan.ValidationErrors, "; ")
		}
		err := apperr.Invalid(msg)
		x.publish(events.Error{Error: err.Error(), ErrorCode: int(err.Code), Context: "validation", Recoverable: false})
		return err
	}

	// the plan deadline covers scheduled waits on top of the ceiling
	limit := x.policy.PlanTimeout + time.Duration(x.plan.WaitTotal())*time.Second
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	ctx, stop := context.WithTimeout(ctx, limit)
	defer stop()

	if !x.dryRun {
		x.Executor.mu.Lock()
		x.inflight[x.id] = cancel
		x.Executor.mu.Unlock()
		defer func() {
			x.Executor.mu.Lock()
			delete(x.inflight, x.id)
			x.Executor.mu.Unlock()
		}()
	}

	for _, stage := range x.plan.Stages() {
		if err := x.interrupted(ctx); err != nil {
			return err
		}
		var err error
		if len(stage) == 1 {
			err = x.step(ctx, stage[0])
		} else {
			err = x.group(ctx, stage)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// group runs the members of one parallel group concurrently and waits for
// all of them. A failing member does not cancel its siblings; the first
// failure is returned.
func (x *execution) group(ctx context.Context, members []int) error {
	var g errgroup.Group
	for _, idx := range members {
		g.Go(func() error { return x.step(ctx, idx) })
	}
	return g.Wait()
}

// interrupted reports cancellation or plan timeout.
func (x *execution) interrupted(ctx context.Context) error {
	if !x.dryRun && x.cancelled.Load() {
		return cancelledErr()
	}
	if ctx.Err() == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), errCancelled) {
		return cancelledErr()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Timeout, "plan exceeded its time limit", ctx.Err()).Fatal()
	}
	return apperr.Wrap(apperr.Cancelled, "Execution cancelled", ctx.Err())
}

func (x *execution) markCompleted(idx int, msg string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.completed[idx] = true
	x.res.Messages[idx] = msg
	x.res.StepsCompleted++
}

func (x *execution) markFailed(idx int, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.res.Messages[idx] = apperr.UserMessage(err)
	x.res.StepsFailed++
}

func (x *execution) markSkipped(idx int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.skipped[idx] = true
	x.res.StepsSkipped++
}

func (x *execution) fail(s planner.ActionStep, err error, dur time.Duration) error {
	x.publish(events.ActionCompleted{
		PlanID:     x.id,
		StepNumber: s.StepNumber,
		Action:     s.Action.String(),
		Success:    false,
		Result:     err.Error(),
		DurationMs: dur.Milliseconds(),
	})
	x.publish(events.Error{
		Error:       err.Error(),
		ErrorCode:   int(apperr.CodeOf(err)),
		Context:     fmt.Sprintf("step %d %s", s.StepNumber, s.Action),
		Recoverable: apperr.IsRecoverable(err),
	})
	x.markFailed(s.StepNumber, err)
	return err
}

// preconditions decides whether the step may run. skip is set when a
// state condition does not hold, or a step it waits on was skipped.
func (x *execution) preconditions(s planner.ActionStep) (skip bool, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, p := range s.Preconditions {
		switch p.Kind {
		case planner.StepCompleted:
			if x.skipped[p.Step] {
				return true, nil
			}
			if !x.completed[p.Step] {
				return false, apperr.Invalid(fmt.Sprintf("step %d has not completed", p.Step))
			}
		case planner.StateCondition:
			if x.dryRun {
				continue
			}
			if !x.state.Holds(p.Key, p.Value) {
				return true, nil
			}
		case planner.ResourceAvailable:
			if !x.dryRun && !x.caps.Has(p.Resource) {
				return false, apperr.New(apperr.SystemOperation, "capability unavailable: "+p.Resource).Fatal()
			}
		case planner.ConfidenceThreshold:
			if s.Confidence < p.Threshold {
				log.Debug("Step below confidence threshold", "step", s.StepNumber, "confidence", s.Confidence, "threshold", p.Threshold)
			}
		}
	}
	return false, nil
}

func (x *execution) step(ctx context.Context, idx int) error {
	s := x.plan.Steps[idx]

	if err := x.interrupted(ctx); err != nil {
		return err
	}

	skip, err := x.preconditions(s)
	if err != nil {
		return x.fail(s, err, 0)
	}
	if skip {
		x.markSkipped(idx)
		x.publish(events.Custom{Name: "step_skipped", Payload: map[string]any{
			"plan_id": x.id.String(),
			"step":    idx,
			"action":  s.Action.String(),
		}})
		log.Info("Step skipped", "plan", x.id, "step", idx, "action", s.Action)
		return nil
	}

	if x.dryRun {
		msg := DryRunPrefix + s.Describe()
		x.publish(events.ActionStarted{PlanID: x.id, StepNumber: idx, Action: s.Action.String(), Params: s.Params, Attempt: 1})
		x.publish(events.ActionCompleted{PlanID: x.id, StepNumber: idx, Action: s.Action.String(), Success: true, Result: msg})
		x.markCompleted(idx, msg)
		return nil
	}

	if x.policy.NeedsConfirmation(s.Action) {
		x.publish(events.PolicyGateTriggered{
			PlanID:     x.id,
			StepNumber: idx,
			Action:     s.Action.String(),
			Reason:     fmt.Sprintf("%s requires confirmation", s.Action),
		})
	}

	return x.retrying(ctx, s)
}

func (x *execution) retrying(ctx context.Context, s planner.ActionStep) error {
	maxAttempts := x.retry.attempts()
	for attempt := 1; ; attempt++ {
		if err := x.interrupted(ctx); err != nil {
			return x.fail(s, err, 0)
		}

		x.publish(events.ActionStarted{
			PlanID:     x.id,
			StepNumber: s.StepNumber,
			Action:     s.Action.String(),
			Params:     s.Params,
			Attempt:    attempt,
		})
		start := time.Now()
		msg, err := x.attempt(ctx, s)
		dur := time.Since(start)

		if err == nil {
			x.publish(events.ActionCompleted{
				PlanID:     x.id,
				StepNumber: s.StepNumber,
				Action:     s.Action.String(),
				Success:    true,
				Result:     msg,
				DurationMs: dur.Milliseconds(),
			})
			x.markCompleted(s.StepNumber, msg)
			x.applyPostconditions(s)
			return nil
		}

		if stop := x.interrupted(ctx); stop != nil {
			return x.fail(s, stop, dur)
		}
		if !apperr.IsRecoverable(err) || attempt >= maxAttempts {
			return x.fail(s, err, dur)
		}

		backoff := x.retry.Backoff(attempt)
		x.publish(events.ActionRetry{
			PlanID:      x.id,
			StepNumber:  s.StepNumber,
			Action:      s.Action.String(),
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Error:       err.Error(),
			BackoffMs:   backoff.Milliseconds(),
		})
		log.Warn("Retrying step", "plan", x.id, "step", s.StepNumber, "attempt", attempt, "backoff", backoff, "error", err)
		if err := sleep(ctx, backoff); err != nil {
			return x.fail(s, x.interrupted(ctx), dur)
		}
	}
}

// attempt races one call of the step against its timeout.
func (x *execution) attempt(ctx context.Context, s planner.ActionStep) (string, error) {
	limit := x.policy.StepTimeout
	if s.Action == planner.Wait {
		if secs, err := waitDuration(s); err == nil {
			limit += secs
		}
	}
	sctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type outcome struct {
		msg string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := x.dispatch(sctx, s)
		done <- outcome{msg, err}
	}()

	select {
	case o := <-done:
		return o.msg, o.err
	case <-sctx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Wrap(apperr.Timeout, fmt.Sprintf("step %d timed out after %s", s.StepNumber, limit), sctx.Err())
	}
}

func (x *execution) applyPostconditions(s planner.ActionStep) {
	for _, p := range s.Postconditions {
		if p.Kind != planner.StateChanged {
			continue
		}
		x.state.Set(p.Key, p.Value)
		x.publish(events.StateChanged{Key: p.Key, Value: p.Value})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
