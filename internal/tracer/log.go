package tracer

import (
	"context"
	"strings"

	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// Tracing levels
const (
	LevelMinimal  = "minimal"
	LevelStandard = "standard"
	LevelDetailed = "detailed"
)

// LogTracer implements ExecutionTracer using structured logging
type LogTracer struct {
	level string // minimal, standard, detailed
}

// NewLogTracer creates a new log tracer
func NewLogTracer(level string) *LogTracer {
	switch level {
	case LevelMinimal, LevelStandard, LevelDetailed:
	default:
		level = LevelStandard
	}
	return &LogTracer{level: level}
}

func (l *LogTracer) TraceRejected(ctx context.Context, module, target string, err error) error {
	// Rejections are the audit trail for refused input, logged at every level
	logger.Warnf("[Tracer] Request rejected: module=%s, target=%q, reason=%v", module, clip(target), err)
	return nil
}

func (l *LogTracer) TraceExecutionStart(ctx context.Context, rec storage.Record, argv []string) error {
	if l.level == LevelMinimal {
		return nil
	}
	logger.Infof("[Tracer] Execution started: id=%s, module=%s, target=%s", rec.ExecutionID, rec.Module, rec.Target)
	if l.level == LevelDetailed {
		logger.Debugf("[Tracer] Execution argv: id=%s, argv=%q", rec.ExecutionID, argv)
	}
	return nil
}

func (l *LogTracer) TraceExecutionEnd(ctx context.Context, rec storage.Record) error {
	exitCode := -1
	if rec.ExitCode != nil {
		exitCode = *rec.ExitCode
	}
	logger.Infof("[Tracer] Execution completed: id=%s, module=%s, status=%s, exit_code=%d, duration=%dms",
		rec.ExecutionID, rec.Module, rec.Status, exitCode, rec.DurationMS)
	if rec.Error != "" && l.level != LevelMinimal {
		logger.Infof("[Tracer] Execution error: id=%s, error=%s", rec.ExecutionID, rec.Error)
	}
	if l.level == LevelDetailed {
		logger.Debugf("[Tracer] Execution output: id=%s, stdout=%q, stderr=%q",
			rec.ExecutionID, clip(rec.Output), clip(rec.Stderr))
	}
	return nil
}

func (l *LogTracer) TraceError(ctx context.Context, executionID, stage string, err error) error {
	// Always log errors regardless of level
	logger.Errorf("[Tracer] Error occurred: id=%s, stage=%s, error=%v", executionID, stage, err)
	return nil
}

func (l *LogTracer) Close() error {
	return nil
}

// clip shortens s for log readability
func clip(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return strings.ToValidUTF8(s[:max], "") + "..."
}
