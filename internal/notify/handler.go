// SPDX-License-Identifier: Apache-2.0

// Package notify reports lifecycle saga progress. The default handler logs through logx;
// callers may replace individual callbacks with SetDefault.
package notify

import (
	"context"

	"github.com/automa-saga/automa"
	"github.com/automa-saga/logx"
)

var handler = &Handler{
	StageStart: func(ctx context.Context, stp automa.Step, msg string, args ...interface{}) {
		logx.As().Debug().
			Str("stage", stp.Id()).
			Str("trace_id", TraceID(ctx)).
			Msgf(msg, args...)
	},
	StageCompletion: func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{}) {
		logx.As().Info().
			Str("stage", stp.Id()).
			Str("status", report.Status.String()).
			Str("trace_id", TraceID(ctx)).
			Msgf(msg, args...)
	},
	StageFailure: func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{}) {
		first := FirstFailure(report)

		l := logx.As().Error().Err(report.Error).
			Str("stage", stp.Id()).
			Str("status", report.Status.String()).
			Str("trace_id", TraceID(ctx))
		if first.Id != report.Id && first.Error != nil {
			l.
				Str("first_error", first.Error.Error()).
				Str("first_error_stage", first.Id)
		}

		l.Msgf(msg, args...)
	},
}

// Handler holds the callbacks invoked around each lifecycle saga and stage.
type Handler struct {
	StageStart      func(ctx context.Context, stp automa.Step, msg string, args ...interface{})
	StageCompletion func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{})
	StageFailure    func(ctx context.Context, stp automa.Step, report *automa.Report, msg string, args ...interface{})
}

// SetDefault replaces the non-nil callbacks of the default handler.
func SetDefault(h *Handler) {
	if h.StageStart != nil {
		handler.StageStart = h.StageStart
	}

	if h.StageCompletion != nil {
		handler.StageCompletion = h.StageCompletion
	}

	if h.StageFailure != nil {
		handler.StageFailure = h.StageFailure
	}
}

// As returns the current notification handler
func As() *Handler {
	return handler
}

// FirstFailure returns the report of the first failed stage, or report itself.
func FirstFailure(report *automa.Report) *automa.Report {
	for _, r := range report.StepReports {
		if r.HasError() {
			return r
		}
	}
	return report
}

type traceKey struct{}

// WithTraceID attaches a trace id that is added to every notification.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
