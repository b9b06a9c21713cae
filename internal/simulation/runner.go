// Package simulation drives a token service through a scripted scenario on
// a manual clock.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"reflection-token-lab/internal/clock"
	"reflection-token-lab/internal/domain"
	"reflection-token-lab/internal/service"
)

// Runner errors
var (
	ErrUnexpectedResult = errors.New("step result does not match expectation")
	ErrUnknownStep      = errors.New("unknown step kind")
)

// StepKind identifies a scenario step.
type StepKind string

const (
	StepTransfer  StepKind = "transfer"
	StepLaunch    StepKind = "launch"
	StepSetPair   StepKind = "set_pair"
	StepSetExempt StepKind = "set_exempt"
	StepAdvance   StepKind = "advance" // move the clock forward
)

// Step is one scripted action.
type Step struct {
	Kind    StepKind
	Caller  domain.Address // launch, set_pair, set_exempt
	From    domain.Address
	To      domain.Address // transfer receiver or flag target
	Amount  *uint256.Int
	Flag    bool
	Advance time.Duration

	// ExpectErr, when set, must match the step's error via errors.Is.
	ExpectErr error
}

// Outcome records what a step did.
type Outcome struct {
	Step      Step
	Operation *domain.Operation // nil for advance and failed steps
	Err       error
	At        time.Time
}

// Runner executes scenarios.
type Runner struct {
	svc   *service.Service
	clock *clock.Manual
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Service *service.Service
	Clock   *clock.Manual // must be the clock the service's ledger runs on
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{svc: opts.Service, clock: opts.Clock}
}

// Run executes steps in order. It stops at the first step whose result
// differs from its expectation.
func (r *Runner) Run(ctx context.Context, steps []Step) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		out := Outcome{Step: step, At: r.clock.Now()}
		out.Operation, out.Err = r.exec(ctx, step)
		outcomes = append(outcomes, out)

		if errors.Is(out.Err, ErrUnknownStep) {
			return outcomes, fmt.Errorf("step %d: %w", i, out.Err)
		}
		if !matches(out.Err, step.ExpectErr) {
			return outcomes, fmt.Errorf("%w: step %d (%s): want %v, got %v",
				ErrUnexpectedResult, i, step.Kind, step.ExpectErr, out.Err)
		}
	}
	return outcomes, nil
}

func (r *Runner) exec(ctx context.Context, s Step) (*domain.Operation, error) {
	switch s.Kind {
	case StepTransfer:
		return r.svc.Transfer(ctx, s.From, s.To, s.Amount)
	case StepLaunch:
		return r.svc.Launch(ctx, s.Caller)
	case StepSetPair:
		return r.svc.SetPair(ctx, s.Caller, s.To, s.Flag)
	case StepSetExempt:
		return r.svc.SetExempt(ctx, s.Caller, s.To, s.Flag)
	case StepAdvance:
		return nil, r.clock.Advance(s.Advance)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, s.Kind)
	}
}

func matches(got, want error) bool {
	if want == nil {
		return got == nil
	}
	return errors.Is(got, want)
}
