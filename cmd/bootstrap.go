package cmd

import (
	"fmt"

	"github.com/hb-chen/skillgate/internal/agent"
	"github.com/hb-chen/skillgate/internal/config"
	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/skill/direct"
	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/internal/tracer"
	"github.com/hb-chen/skillgate/pkg/logger"
)

// initPipeline wires registry, executor, ledger and tracer from cfg. The
// caller owns the returned ledger and must Close it.
func initPipeline(cfg *config.Config) (*agent.Pipeline, storage.Ledger, error) {
	registry, err := skill.Load(cfg.Skills.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load skills: %w", err)
	}
	logger.Infof("Loaded %d skills: %v", registry.Count(), registry.Names())

	ledger, err := storage.NewLedger(cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	executor := direct.NewDirectExecutor(direct.Limits{
		Timeout:        cfg.Executor.Timeout,
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		CPUSeconds:     cfg.Executor.CPUSeconds,
		MemoryBytes:    cfg.Executor.MemoryBytes,
	})

	return agent.NewPipeline(registry, executor, ledger, agent.Options{
		MaxConcurrent:   cfg.Executor.MaxConcurrent,
		MaxRecordOutput: cfg.Ledger.MaxOutputBytes,
		Tracer:          newTracer(cfg),
	}), ledger, nil
}

// newTracer fans audit events out to the log and, when enabled, to per
// execution Markdown reports.
func newTracer(cfg *config.Config) tracer.ExecutionTracer {
	tracers := []tracer.ExecutionTracer{tracer.NewLogTracer(cfg.Tracing.Level)}
	if cfg.Reports.Enabled {
		tracers = append(tracers, agent.NewMarkdownReporter(cfg.Reports.Dir, true))
	}
	return tracer.NewMultiTracer(tracers...)
}

func closeLedger(ledger storage.Ledger) {
	if err := ledger.Close(); err != nil {
		logger.Errorf("Failed to close ledger: %v", err)
	}
}
