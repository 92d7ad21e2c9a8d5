// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"context"
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/rs/zerolog"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/driver"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/sim"
	"github.com/wlanhost/hostd/pkg/erx"
)

const waitPoll = 5 * time.Millisecond

// StepResult records the outcome of one step.
type StepResult struct {
	Index     int           `yaml:"index" json:"index"`
	Action    string        `yaml:"action" json:"action"`
	Interface string        `yaml:"interface,omitempty" json:"interface,omitempty"`
	Error     string        `yaml:"error,omitempty" json:"error,omitempty"`
	ErrorType string        `yaml:"errorType,omitempty" json:"errorType,omitempty"`
	Category  string        `yaml:"category,omitempty" json:"category,omitempty"`
	Took      time.Duration `yaml:"took" json:"took"`
}

// Status is the driver state after the last step.
type Status struct {
	State      string               `yaml:"state" json:"state"`
	GlobalMode string               `yaml:"globalMode" json:"globalMode"`
	Firmware   hal.Image            `yaml:"firmware" json:"firmware"`
	IdleArmed  bool                 `yaml:"idleArmed" json:"idleArmed"`
	Recoveries int64                `yaml:"recoveries" json:"recoveries"`
	Interfaces []core.InterfaceInfo `yaml:"interfaces" json:"interfaces"`
}

type Result struct {
	Scenario string       `yaml:"scenario" json:"scenario"`
	Steps    []StepResult `yaml:"steps" json:"steps"`
	Status   Status       `yaml:"status" json:"status"`
}

// Runner executes scenarios against one driver and the device behind it.
type Runner struct {
	driver  *driver.Driver
	device  *sim.Device
	aliases map[string]core.VdevID
	logger  *zerolog.Logger
}

type Option func(*Runner)

func WithLogger(logger *zerolog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRunner(d *driver.Driver, dev *sim.Device, opts ...Option) *Runner {
	r := &Runner{
		driver:  d,
		device:  dev,
		aliases: make(map[string]core.VdevID),
		logger:  logx.As(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes every step in order and stops at the first step whose outcome does not
// match its expectation. The result is filled in either way.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	res := &Result{Scenario: sc.Name}
	r.device.Inject(func(f *sim.Faults) { *f = sc.Faults })

	var runErr error
	for i, step := range sc.Steps {
		start := time.Now()
		err := r.exec(ctx, step)

		sr := StepResult{Index: i, Action: step.Action, Interface: step.Interface, Took: time.Since(start)}
		if err != nil {
			sr.Error = err.Error()
			sr.ErrorType = errorx.GetTypeName(err)
			sr.Category = erx.Classify(err).String()
		}
		res.Steps = append(res.Steps, sr)

		r.logger.Debug().
			Int("step", i).
			Str("action", step.Action).
			Str("interface", step.Interface).
			Err(err).
			Msg("Scenario step executed")

		if merr := matches(step.Expect, err); merr != nil {
			runErr = errorx.Decorate(merr, "step %d (%s)", i, step.Action)
			break
		}
	}

	res.Status = r.Status()
	return res, runErr
}

// Status snapshots the driver.
func (r *Runner) Status() Status {
	return Status{
		State:      r.driver.State().String(),
		GlobalMode: r.driver.GlobalMode().String(),
		Firmware:   r.driver.Firmware(),
		IdleArmed:  r.driver.IdleArmed(),
		Recoveries: r.driver.Notifier().Count(),
		Interfaces: r.driver.Interfaces(),
	}
}

func (r *Runner) exec(ctx context.Context, step Step) error {
	switch step.Action {
	case ActionBringUp:
		return r.driver.BringUp(ctx)

	case ActionShutDown:
		return r.driver.ShutDown(ctx)

	case ActionAdd:
		mode, err := core.ParseMode(step.Mode)
		if err != nil {
			return err
		}
		id, err := r.driver.AddInterface(ctx, mode, step.Address)
		if err != nil {
			return err
		}
		r.aliases[step.Interface] = id
		return nil

	case ActionRemove:
		id, err := r.alias(step.Interface)
		if err != nil {
			return err
		}
		if err := r.driver.RemoveInterface(ctx, id); err != nil {
			return err
		}
		delete(r.aliases, step.Interface)
		return nil

	case ActionStart:
		id, err := r.alias(step.Interface)
		if err != nil {
			return err
		}
		return r.driver.StartInterface(ctx, id)

	case ActionStop:
		id, err := r.alias(step.Interface)
		if err != nil {
			return err
		}
		return r.driver.StopInterface(ctx, id)

	case ActionSuspend:
		r.driver.Suspend()
		return nil

	case ActionResume:
		r.driver.Resume()
		return nil

	case ActionRecover:
		return r.driver.Recover(ctx)

	case ActionMode:
		mode, err := core.ParseGlobalMode(step.Mode)
		if err != nil {
			return err
		}
		return r.driver.ChangeMode(ctx, mode)

	case ActionInject:
		faults := *step.Faults
		r.device.Inject(func(f *sim.Faults) { *f = faults })
		return nil

	case ActionSleep:
		return sleep(ctx, step.Duration)

	case ActionWait:
		return r.waitFor(ctx, step.State, step.Duration)

	default:
		return errorx.IllegalArgument.New("unknown scenario action %q", step.Action)
	}
}

func (r *Runner) alias(name string) (core.VdevID, error) {
	id, ok := r.aliases[name]
	if !ok {
		return core.InvalidVdevID, core.NotFound.New("interface %q was not added by this scenario", name)
	}
	return id, nil
}

// waitFor polls until the module reaches state or timeout elapses.
func (r *Runner) waitFor(ctx context.Context, state string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Second
	}
	deadline := time.Now().Add(timeout)

	for {
		if strings.EqualFold(r.driver.State().String(), state) {
			return nil
		}
		if time.Now().After(deadline) {
			return errorx.TimeoutElapsed.New("module did not reach %s within %s, it is %s", state, timeout, r.driver.State())
		}
		if err := sleep(ctx, waitPoll); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// matches compares err with an expectation.
func matches(expect string, err error) error {
	switch {
	case expect == "" && err == nil:
		return nil
	case expect == "":
		return Unexpected.Wrap(err, "step failed")
	case err == nil:
		return Unexpected.New("expected %s, step succeeded", expect)
	case expect == "error":
		return nil
	case strings.EqualFold(expect, errorx.GetTypeName(err)):
		return nil
	case strings.EqualFold(expect, erx.Classify(err).String()):
		return nil
	default:
		return Unexpected.Wrap(err, "expected %s", expect)
	}
}
