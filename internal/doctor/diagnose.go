// SPDX-License-Identifier: Apache-2.0

// Package doctor turns CLI failures into a diagnosis with a stable code and resolution
// steps.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/automa-saga/logx"
	"github.com/joomcode/errorx"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/notify"
	"github.com/wlanhost/hostd/internal/version"
	"github.com/wlanhost/hostd/pkg/erx"
	"github.com/wlanhost/hostd/pkg/exit"
)

const (
	CodeBadRequest        = 10400
	CodeNotFound          = 10404
	CodeConflict          = 10409
	CodeGone              = 10410
	CodeResourceExhausted = 10429
	CodeInternal          = 10500
	CodeFirmwareFault     = 10502
	CodeUnavailable       = 10503
)

type ErrorDiagnosis struct {
	Error              error             `yaml:"error" json:"error"`
	Message            string            `yaml:"message" json:"message"`
	Cause              string            `yaml:"cause" json:"cause"`
	ErrorType          string            `yaml:"errorType" json:"errorType"`
	Category           string            `yaml:"category" json:"category"`
	Stage              string            `yaml:"stage,omitempty" json:"stage,omitempty"`
	TraceId            string            `yaml:"traceId" json:"traceId"`
	Commit             string            `yaml:"commit" json:"commit"`
	Version            string            `yaml:"version" json:"version"`
	Pid                int               `yaml:"pid" json:"pid"`
	Code               int               `yaml:"code" json:"code"`
	Logfile            string            `yaml:"log" json:"log"`
	ProfilingSnapshots map[string]string `yaml:"profilingSnapshots,omitempty" json:"profilingSnapshots,omitempty"`
	Resolution         []string          `yaml:"steps" json:"steps"`
}

func toErrorCode(err error) int {
	switch {
	case errorx.IsOfType(err, errorx.IllegalArgument), errorx.IsOfType(err, core.IllegalArgument),
		errorx.IsOfType(err, errorx.IllegalFormat), errorx.IsOfType(err, config.InvalidError):
		return CodeBadRequest
	case errorx.IsOfType(err, core.DriverUnloading):
		return CodeGone
	case errorx.HasTrait(err, errorx.NotFound()):
		return CodeNotFound
	case errorx.HasTrait(err, errorx.Duplicate()):
		return CodeConflict
	}

	switch erx.Classify(err) {
	case erx.CategoryTransient:
		return CodeUnavailable
	case erx.CategoryResourceExhaustion:
		return CodeResourceExhausted
	case erx.CategoryFirmwareFault:
		return CodeFirmwareFault
	default:
		return CodeInternal
	}
}

func toErrorMessage(err error) (string, string) {
	e := errorx.Cast(err)
	if e == nil {
		return err.Error(), ""
	}

	if e.Cause() == nil {
		return e.Message(), ""
	}
	return e.Message(), e.Cause().Error()
}

func findResolution(err error) []string {
	switch {
	case errorx.IsOfType(err, config.NotFoundError):
		if arg, ok := errorx.ExtractProperty(err, errorx.PropertyPayload()); ok {
			return []string{fmt.Sprintf("Ensure configuration file %q exists, is correctly formatted and accessible.", arg)}
		}
		return []string{"Ensure configuration file exists and is accessible."}
	case errorx.IsOfType(err, config.InvalidError):
		return []string{"Fix the reported configuration field or remove it to use the default."}
	case errorx.IsOfType(err, errorx.IllegalFormat):
		return []string{"Ensure provided data is in correct format."}
	case errorx.IsOfType(err, core.DuplicateAddress):
		return []string{"Choose a hardware address that no other interface uses."}
	case errorx.IsOfType(err, core.MaxInterfaces):
		return []string{"Remove an interface or raise module.maxInterfaces."}
	case errorx.IsOfType(err, core.RecoveryPending):
		return []string{"The firmware is being recovered; run the recover step before adding interfaces."}
	case errorx.IsOfType(err, core.DriverUnloading):
		return []string{"The driver is detaching; attach it again before issuing requests."}
	case errorx.HasTrait(err, errorx.NotFound()):
		return []string{"Ensure the interface id refers to an interface that was added and not removed."}
	}

	switch erx.Classify(err) {
	case erx.CategoryTransient:
		return []string{"The module is busy or temporarily unavailable; retry the request later."}
	case erx.CategoryResourceExhaustion:
		return []string{"Free resources on the radio and retry."}
	case erx.CategoryFirmwareFault:
		steps := []string{"Check the transport and firmware logs."}
		if stage, ok := core.StageOf(err); ok {
			steps = append(steps, fmt.Sprintf("Bring-up failed at stage %q; every earlier stage was rolled back.", stage))
		}
		if errorx.HasTrait(err, errorx.Timeout()) {
			steps = append(steps, "Consider raising module.firmwareReadyTimeout or vdev.destroyTimeout.")
		}
		return steps
	case erx.CategoryInvariant:
		return []string{"This is a defect in the caller. Report it together with the profiling snapshots."}
	default:
		return []string{"Check error message for details or contact support."}
	}
}

// takeProfilingSnapshots writes the error stack and goroutine dump under dir.
func takeProfilingSnapshots(dir string, ex error) map[string]string {
	timestamp := time.Now().Format("20060102-150405")
	snapshotDir := filepath.Join(dir, timestamp)
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		logx.As().Warn().Err(err).Str("dir", snapshotDir).Msg("Failed to create diagnostics directory")
		return nil
	}

	files := make(map[string]string)

	stacktraceFile := filepath.Join(snapshotDir, "stacktrace.txt")
	if f, err := os.Create(stacktraceFile); err == nil {
		_, _ = fmt.Fprintf(f, "%+v\n", ex)
		_ = f.Close()
		files["stacktrace"] = stacktraceFile
	}

	goroutineFile := filepath.Join(snapshotDir, "pprof-goroutine.txt")
	if f, err := os.Create(goroutineFile); err == nil {
		if err := pprof.Lookup("goroutine").WriteTo(f, 1); err == nil {
			files["goroutine"] = goroutineFile
		}
		_ = f.Close()
	}

	return files
}

func traceID(ctx context.Context) string {
	if id := notify.TraceID(ctx); id != "" {
		return id
	}
	if id, ok := ctx.Value("traceId").(string); ok {
		return id
	}
	return ""
}

// Diagnose attempts to find a resolution and provide a human friendly error response.
// Invariant violations also get profiling snapshots under os.TempDir.
func Diagnose(ctx context.Context, ex error) *ErrorDiagnosis {
	msg, cause := toErrorMessage(ex)
	category := erx.Classify(ex)

	d := &ErrorDiagnosis{
		Error:      ex,
		ErrorType:  errorx.GetTypeName(ex),
		Category:   category.String(),
		Message:    msg,
		Cause:      cause,
		TraceId:    traceID(ctx),
		Code:       toErrorCode(ex),
		Commit:     version.Commit(),
		Version:    version.Number(),
		Pid:        os.Getpid(),
		Logfile:    config.Get().Log.Filename,
		Resolution: findResolution(ex),
	}

	if stage, ok := core.StageOf(ex); ok {
		d.Stage = stage
	}

	if category == erx.CategoryInvariant {
		d.ProfilingSnapshots = takeProfilingSnapshots(filepath.Join(os.TempDir(), "hostd-diagnostics"), ex)
	}

	return d
}

// Print writes the diagnosis in the boxed terminal layout.
func (resp *ErrorDiagnosis) Print(instructions ...string) {
	fmt.Printf("\n%s%s************************************** Error Diagnostics ******************************************%s\n", Bold, Red, Reset)
	fmt.Printf("%s*%s\t%sError:%s %s\n", Red, Reset, Bold+White, Reset, resp.Message)
	if resp.Cause != "" {
		fmt.Printf("%s*%s\t%sCause:%s %s\n", Red, Reset, Bold+White, Reset, resp.Cause)
	}
	fmt.Printf("%s*%s\t%sError Type:%s %s\n", Red, Reset, Bold+White, Reset, resp.ErrorType)
	fmt.Printf("%s*%s\t%sCategory:%s %s\n", Red, Reset, Bold+White, Reset, resp.Category)
	if resp.Stage != "" {
		fmt.Printf("%s*%s\t%sStage:%s %s\n", Red, Reset, Bold+White, Reset, resp.Stage)
	}
	fmt.Printf("%s*%s\t%sError Code:%s %d\n", Red, Reset, Bold+White, Reset, resp.Code)
	fmt.Printf("%s*%s\t%sCommit:%s %s\n", Red, Reset, Gray, Reset, resp.Commit)
	fmt.Printf("%s*%s\t%sPid:%s %d\n", Red, Reset, Gray, Reset, resp.Pid)
	fmt.Printf("%s*%s\t%sTraceId:%s %s\n", Red, Reset, Gray, Reset, resp.TraceId)
	fmt.Printf("%s*%s\t%sVersion:%s %s\n", Red, Reset, Gray, Reset, resp.Version)
	if resp.Logfile != "" {
		fmt.Printf("%s*%s\t%sLogfile:%s %s\n", Red, Reset, Cyan, Reset, resp.Logfile)
	}
	if len(resp.ProfilingSnapshots) > 0 {
		fmt.Printf("%s*%s\t%sProfiling:%s\n", Red, Reset, Cyan, Reset)
		for key, snapshotFile := range resp.ProfilingSnapshots {
			fmt.Printf("%s*%s\t  %s- %s:%s %s\n", Red, Reset, Cyan, key, Reset, snapshotFile)
		}
	}
	fmt.Printf("%s%s***************************************************************************************************%s\n", Bold, Red, Reset)
	fmt.Printf("\n%s%s****************************************** Resolution *********************************************%s\n", Bold, Yellow, Reset)

	if len(instructions) > 0 && instructions[0] != "" {
		for _, line := range strings.Split(instructions[0], "\n") {
			if line == "" {
				fmt.Printf("%s*%s\n", Yellow, Reset)
			} else {
				fmt.Printf("%s*%s\t%s\n", Yellow, Reset, Bold+White+line+Reset)
			}
		}
		if len(resp.Resolution) > 0 {
			fmt.Printf("%s*%s\n", Yellow, Reset)
		}
	}

	for _, r := range resp.Resolution {
		fmt.Printf("%s*%s\t%s\n", Yellow, Reset, White+r+Reset)
	}

	fmt.Printf("%s%s***************************************************************************************************%s\n", Bold, Yellow, Reset)
}

// CheckErr prints diagnosis and exits with the code matching the error category.
// Optional instructions can be provided to give additional context to the user.
func CheckErr(ctx context.Context, err error, instructions ...string) {
	if err == nil {
		return
	}

	logx.As().Error().Err(err).Msg("error occurred")
	Diagnose(ctx, err).Print(instructions...)

	exit.ForError(err).TerminateProcess()
}
