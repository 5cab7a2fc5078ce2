package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hb-chen/skillgate/internal/storage"
	"github.com/hb-chen/skillgate/internal/tracer"
)

var _ tracer.ExecutionTracer = (*MarkdownReporter)(nil)

// MarkdownReporter writes one Markdown report per finished execution
type MarkdownReporter struct {
	outputDir string
	enabled   bool
}

// NewMarkdownReporter creates a new Markdown reporter
func NewMarkdownReporter(outputDir string, enabled bool) *MarkdownReporter {
	return &MarkdownReporter{
		outputDir: outputDir,
		enabled:   enabled,
	}
}

// GenerateReport writes {timestamp}-{execution_id}.md into the output dir
func (r *MarkdownReporter) GenerateReport(rec storage.Record) error {
	if !r.enabled {
		return nil
	}

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.md", rec.Timestamp.Format("20060102-150405"), rec.ExecutionID)
	path := filepath.Join(r.outputDir, filename)
	if err := os.WriteFile(path, []byte(BuildReport(rec)), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// TraceExecutionEnd writes the report of a finished execution
func (r *MarkdownReporter) TraceExecutionEnd(ctx context.Context, rec storage.Record) error {
	return r.GenerateReport(rec)
}

func (r *MarkdownReporter) TraceRejected(ctx context.Context, module, target string, err error) error {
	return nil
}

func (r *MarkdownReporter) TraceExecutionStart(ctx context.Context, rec storage.Record, argv []string) error {
	return nil
}

func (r *MarkdownReporter) TraceError(ctx context.Context, executionID, stage string, err error) error {
	return nil
}

func (r *MarkdownReporter) Close() error {
	return nil
}

// BuildReport renders rec as Markdown
func BuildReport(rec storage.Record) string {
	var b strings.Builder

	b.WriteString("# Execution Report\n\n")

	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- **Execution ID**: `%s`\n", rec.ExecutionID)
	fmt.Fprintf(&b, "- **Module**: `%s`\n", rec.Module)
	fmt.Fprintf(&b, "- **Target**: `%s`\n", rec.Target)
	fmt.Fprintf(&b, "- **Status**: %s\n", formatStatus(rec.Status))
	if rec.ExitCode != nil {
		fmt.Fprintf(&b, "- **Exit Code**: %d\n", *rec.ExitCode)
	}
	fmt.Fprintf(&b, "- **Duration**: %s\n", time.Duration(rec.DurationMS)*time.Millisecond)
	b.WriteString("\n")

	if len(rec.Parameters) > 0 {
		b.WriteString("## Parameters\n\n")
		keys := make([]string, 0, len(rec.Parameters))
		for k := range rec.Parameters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- `%s`: `%v`\n", k, rec.Parameters[k])
		}
		b.WriteString("\n")
	}

	if rec.Output != "" {
		fmt.Fprintf(&b, "## Output\n\n```\n%s\n```\n\n", strings.TrimRight(rec.Output, "\n"))
	}
	if rec.Stderr != "" {
		fmt.Fprintf(&b, "## Stderr\n\n```\n%s\n```\n\n", strings.TrimRight(rec.Stderr, "\n"))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "## Error\n\n```\n%s\n```\n\n", rec.Error)
	}

	b.WriteString("## Timeline\n\n")
	b.WriteString("| Event | Timestamp |\n")
	b.WriteString("|-------|----------|\n")
	fmt.Fprintf(&b, "| Started | %s |\n", rec.Timestamp.Format(time.RFC3339))
	if rec.FinishedAt != nil {
		fmt.Fprintf(&b, "| Finished | %s |\n", rec.FinishedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")

	return b.String()
}

// formatStatus formats the status with a marker
func formatStatus(status storage.Status) string {
	switch status {
	case storage.StatusPending:
		return "⏳ Pending"
	case storage.StatusSuccess:
		return "✅ Success"
	case storage.StatusFailed:
		return "❌ Failed"
	default:
		return string(status)
	}
}
