// SPDX-License-Identifier: Apache-2.0

package module

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/automa-saga/automa"
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/hal"
	"github.com/wlanhost/hostd/internal/notify"
	"github.com/wlanhost/hostd/pkg/erx"
)

const (
	StagePowerOn          = "power-on"
	StageOpenTransport    = "open-transport"
	StageDownloadFirmware = "download-firmware"
	StageAttachSubsystems = "attach-subsystems"

	StageDetachSubsystems = "detach-subsystems"
	StageReleaseFirmware  = "release-firmware"
	StageCloseTransport   = "close-transport"
	StagePowerOff         = "power-off"
)

// bringUp runs the ordered bring-up stages. Each stage records what it acquired so that
// its rollback releases exactly that, whichever way the saga unwinds.
type bringUp struct {
	sm          *StateMachine
	mode        core.GlobalMode
	skipPowerOn bool

	poweredOn  bool
	opened     bool
	downloaded bool
	attached   bool
	image      hal.Image

	failedStage string
	failure     error
}

func (b *bringUp) fail(stp automa.Step, stage string, err error) *automa.Report {
	if b.failure == nil {
		b.failedStage = stage
		b.failure = err
	}
	return automa.FailureReport(stp, automa.WithError(err))
}

func (b *bringUp) run(ctx context.Context) error {
	wf, err := automa.NewWorkflowBuilder().WithId("module-bring-up").Steps(
		b.powerOn(),
		b.openTransport(),
		b.downloadFirmware(),
		b.attachSubsystems(),
	).
		WithExecutionMode(automa.RollbackOnError).
		WithPrepare(func(ctx context.Context, stp automa.Step) (context.Context, error) {
			notify.As().StageStart(ctx, stp, "Bringing module up in %s mode", b.mode)
			return ctx, nil
		}).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StageFailure(ctx, stp, rpt, "Module bring-up failed")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StageCompletion(ctx, stp, rpt, "Module bring-up completed")
		}).
		Build()
	if err != nil {
		return errorx.InternalError.Wrap(err, "failed to build bring-up workflow")
	}

	report := wf.Execute(ctx)
	if b.failure == nil && report.Error != nil {
		b.failedStage = notify.FirstFailure(report).Id
		b.failure = report.Error
	}

	if b.failure == nil {
		return nil
	}

	return erx.Ensure(b.failure, core.FirmwareFailure, "module bring-up failed at %s", b.failedStage).
		WithProperty(core.PropertyStage, b.failedStage)
}

func (b *bringUp) powerOn() automa.Builder {
	return automa.NewStepBuilder().WithId(StagePowerOn).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if b.skipPowerOn {
				return automa.SkippedReport(stp, automa.WithDetail("transport already powered after recovery"))
			}

			if err := b.sm.transport.PowerOn(ctx); err != nil {
				return b.fail(stp, StagePowerOn, erx.Ensure(err, core.PowerOnFailed, "transport power-on failed"))
			}

			b.poweredOn = true
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if !b.poweredOn {
				return automa.SkippedReport(stp, automa.WithDetail("transport was not powered by this bring-up"))
			}

			if err := b.sm.transport.PowerOff(ctx); err != nil {
				return automa.FailureReport(stp, automa.WithError(automa.StepExecutionError.Wrap(err, "failed to power transport off")))
			}

			b.poweredOn = false
			return automa.SuccessReport(stp)
		})
}

func (b *bringUp) openTransport() automa.Builder {
	return automa.NewStepBuilder().WithId(StageOpenTransport).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := b.sm.transport.Open(ctx); err != nil {
				return b.fail(stp, StageOpenTransport, erx.Ensure(err, core.TransportUnavailable, "transport open failed"))
			}

			b.opened = true
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if !b.opened {
				return automa.SkippedReport(stp)
			}

			if err := b.sm.transport.Close(ctx); err != nil {
				return automa.FailureReport(stp, automa.WithError(automa.StepExecutionError.Wrap(err, "failed to close transport")))
			}

			b.opened = false
			return automa.SuccessReport(stp)
		})
}

func (b *bringUp) downloadFirmware() automa.Builder {
	return automa.NewStepBuilder().WithId(StageDownloadFirmware).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			ready := make(chan error, 1)
			img, err := b.sm.firmware.Download(ctx, b.mode, func(err error) {
				select {
				case ready <- err:
				default:
				}
			})
			if err != nil {
				return b.fail(stp, StageDownloadFirmware, erx.Ensure(err, core.FirmwareFailure, "firmware download failed"))
			}
			b.downloaded = true

			timer := time.NewTimer(b.sm.readyTimeout)
			defer timer.Stop()

			var readyErr error
			select {
			case err := <-ready:
				if err != nil {
					readyErr = erx.Ensure(err, core.FirmwareFailure, "firmware reported a boot failure")
				}
			case <-timer.C:
				readyErr = core.FirmwareTimeout.New("firmware %s not ready within %s", img.Version, b.sm.readyTimeout)
			case <-ctx.Done():
				readyErr = core.FirmwareTimeout.Wrap(ctx.Err(), "gave up waiting for firmware %s", img.Version)
			}

			if readyErr == nil {
				readyErr = b.checkVersion(img)
			}

			if readyErr != nil {
				// on failure downloaded stays set and the step rollback retries the release
				if rerr := b.releaseFirmware(ctx); rerr != nil {
					readyErr = errorx.Decorate(readyErr, "firmware release after failed boot also failed: %v", rerr)
				}
				return b.fail(stp, StageDownloadFirmware, readyErr)
			}

			b.image = img
			return automa.SuccessReport(stp, automa.WithMetadata(map[string]string{
				"firmware": img.Name,
				"version":  img.Version,
			}))
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if !b.downloaded {
				return automa.SkippedReport(stp)
			}

			if err := b.releaseFirmware(ctx); err != nil {
				return automa.FailureReport(stp, automa.WithError(automa.StepExecutionError.Wrap(err, "failed to release firmware")))
			}
			return automa.SuccessReport(stp)
		})
}

func (b *bringUp) checkVersion(img hal.Image) error {
	if b.sm.constraint == nil {
		return nil
	}

	v, err := semver.NewVersion(img.Version)
	if err != nil {
		return core.FirmwareFailure.Wrap(err, "firmware reported an unparsable version %q", img.Version)
	}

	if !b.sm.constraint.Check(v) {
		return core.FirmwareFailure.New("firmware version %s does not satisfy %s", v, b.sm.constraint)
	}

	return nil
}

func (b *bringUp) releaseFirmware(ctx context.Context) error {
	if !b.downloaded {
		return nil
	}

	err := b.sm.firmware.Release(ctx)
	if err != nil {
		b.sm.logger.Error().Err(err).Msg("Failed to release firmware")
		return err
	}

	b.downloaded = false
	return nil
}

func (b *bringUp) attachSubsystems() automa.Builder {
	return automa.NewStepBuilder().WithId(StageAttachSubsystems).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := b.sm.firmware.Attach(ctx); err != nil {
				return b.fail(stp, StageAttachSubsystems, erx.Ensure(err, core.FirmwareFailure, "subsystem attach failed"))
			}

			b.attached = true
			return automa.SuccessReport(stp)
		}).
		WithRollback(func(ctx context.Context, stp automa.Step) *automa.Report {
			if !b.attached {
				return automa.SkippedReport(stp)
			}

			if err := b.sm.firmware.Detach(ctx); err != nil {
				return automa.FailureReport(stp, automa.WithError(automa.StepExecutionError.Wrap(err, "failed to detach subsystems")))
			}

			b.attached = false
			return automa.SuccessReport(stp)
		})
}

// teardown releases the firmware and transport. Every stage runs even if an earlier one
// failed so that nothing stays acquired.
type teardown struct {
	sm       *StateMachine
	recovery bool
	errs     []error
}

func (t *teardown) run(ctx context.Context) error {
	wf, err := automa.NewWorkflowBuilder().WithId("module-teardown").Steps(
		t.stage(StageDetachSubsystems, t.sm.firmware.Detach),
		t.stage(StageReleaseFirmware, t.sm.firmware.Release),
		t.stage(StageCloseTransport, t.sm.transport.Close),
		t.powerOff(),
	).
		WithExecutionMode(automa.ContinueOnError).
		WithOnFailure(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StageFailure(ctx, stp, rpt, "Module teardown failed")
		}).
		WithOnCompletion(func(ctx context.Context, stp automa.Step, rpt *automa.Report) {
			notify.As().StageCompletion(ctx, stp, rpt, "Module teardown completed")
		}).
		Build()
	if err != nil {
		return errorx.InternalError.Wrap(err, "failed to build teardown workflow")
	}

	wf.Execute(ctx)

	if len(t.errs) == 0 {
		return nil
	}
	return errorx.DecorateMany("module teardown failed", t.errs...)
}

func (t *teardown) stage(id string, fn func(ctx context.Context) error) automa.Builder {
	return automa.NewStepBuilder().WithId(id).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if err := fn(ctx); err != nil {
				err = erx.Ensure(err, core.FirmwareFailure, "%s failed", id).WithProperty(core.PropertyStage, id)
				t.errs = append(t.errs, err)
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		})
}

func (t *teardown) powerOff() automa.Builder {
	return automa.NewStepBuilder().WithId(StagePowerOff).
		WithExecute(func(ctx context.Context, stp automa.Step) *automa.Report {
			if t.recovery {
				return automa.SkippedReport(stp, automa.WithDetail("transport stays powered for recovery"))
			}

			if err := t.sm.transport.PowerOff(ctx); err != nil {
				err = erx.Ensure(err, core.FirmwareFailure, "power-off failed").WithProperty(core.PropertyStage, StagePowerOff)
				t.errs = append(t.errs, err)
				return automa.FailureReport(stp, automa.WithError(err))
			}
			return automa.SuccessReport(stp)
		})
}
