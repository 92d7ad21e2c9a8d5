// SPDX-License-Identifier: Apache-2.0

package doctor

import (
	"context"
	"os"
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/require"
	"github.com/wlanhost/hostd/internal/config"
	"github.com/wlanhost/hostd/internal/core"
	"github.com/wlanhost/hostd/internal/notify"
	"github.com/wlanhost/hostd/pkg/ledger"
)

func TestToErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "illegal argument", err: errorx.IllegalArgument.New("bad"), code: CodeBadRequest},
		{name: "invalid config", err: config.InvalidError.New("bad"), code: CodeBadRequest},
		{name: "not found", err: core.NotFound.New("vdev 3"), code: CodeNotFound},
		{name: "duplicate address", err: core.DuplicateAddress.New("dup"), code: CodeConflict},
		{name: "unloading", err: core.DriverUnloading.New("bye"), code: CodeGone},
		{name: "busy", err: core.Busy.New("trace"), code: CodeUnavailable},
		{name: "max interfaces", err: core.MaxInterfaces.New("full"), code: CodeResourceExhausted},
		{name: "firmware", err: core.FirmwareTimeout.New("slow"), code: CodeFirmwareFault},
		{name: "decorated firmware", err: errorx.Decorate(core.PowerOnFailed.New("rail"), "bring-up"), code: CodeFirmwareFault},
		{name: "plain", err: os.ErrClosed, code: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, toErrorCode(tt.err))
		})
	}
}

func TestDiagnose(t *testing.T) {
	req := require.New(t)
	ctx := notify.WithTraceID(context.Background(), "trace-1")

	err := core.FirmwareTimeout.New("firmware did not report ready").
		WithProperty(core.PropertyStage, "download-firmware")

	d := Diagnose(ctx, err)

	req.Equal("trace-1", d.TraceId)
	req.Equal("firmware-fault", d.Category)
	req.Equal("download-firmware", d.Stage)
	req.Equal(CodeFirmwareFault, d.Code)
	req.Empty(d.ProfilingSnapshots)
	req.GreaterOrEqual(len(d.Resolution), 3)
}

func TestDiagnose_InvariantTakesSnapshots(t *testing.T) {
	req := require.New(t)

	d := Diagnose(context.Background(), ledger.ReferenceLeak.New("ledger sta0 still has outstanding holds"))

	req.Equal("invariant-violation", d.Category)
	req.Contains(d.ProfilingSnapshots, "stacktrace")
	for _, f := range d.ProfilingSnapshots {
		req.FileExists(f)
	}
}

func TestFindResolution_ConfigPayload(t *testing.T) {
	err := config.NotFoundError.New("missing").WithProperty(errorx.PropertyPayload(), "/etc/hostd.yaml")
	steps := findResolution(err)
	require.Len(t, steps, 1)
	require.Contains(t, steps[0], "/etc/hostd.yaml")
}

func TestDisableColors(t *testing.T) {
	red, reset := Red, Reset
	t.Cleanup(func() {
		Red, Yellow, Cyan, White, Gray, Reset, Bold = red, "\033[33m", "\033[36m", "\033[37m", "\033[90m", reset, "\033[1m"
	})

	// Given the default palette
	require.NotEmpty(t, Red)

	// When colors are disabled
	disableColors()

	// Then every escape is empty
	for _, c := range []string{Red, Yellow, Cyan, White, Gray, Reset, Bold} {
		require.Empty(t, c)
	}
}
