package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hb-chen/skillgate/internal/skill"
	"github.com/hb-chen/skillgate/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(12)
)

const historyRow = "%-36s │ %-14s │ %-28s │ %-7s │ %-8s │ %s"

func renderSkills(descriptors []skill.Descriptor) string {
	if len(descriptors) == 0 {
		return mutedStyle.Render("No skills registered.")
	}

	var blocks []string
	for _, d := range descriptors {
		lines := []string{
			headerStyle.Render(d.Name) + mutedStyle.Render(fmt.Sprintf("  (%s, target: %s)", d.Binary, d.Target)),
		}
		if d.Description != "" {
			lines = append(lines, "  "+d.Description)
		}
		for _, p := range d.Parameters {
			lines = append(lines, fmt.Sprintf("  %-14s %-7s %s", p.Name, p.Type, mutedStyle.Render(paramConstraint(p))))
		}
		blocks = append(blocks, lipgloss.JoinVertical(lipgloss.Left, lines...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func paramConstraint(p skill.ParamSpec) string {
	switch p.Type {
	case skill.ParamEnum:
		return "one of " + strings.Join(p.Values, "|")
	case skill.ParamInt:
		var parts []string
		if p.Min != nil {
			parts = append(parts, fmt.Sprintf(">= %d", *p.Min))
		}
		if p.Max != nil {
			parts = append(parts, fmt.Sprintf("<= %d", *p.Max))
		}
		return strings.Join(parts, ", ")
	case skill.ParamString:
		return p.Pattern
	}
	return p.Flag
}

func renderHistory(records []storage.Record) string {
	if len(records) == 0 {
		return mutedStyle.Render("No executions recorded.")
	}

	rows := []string{headerStyle.Render(fmt.Sprintf(historyRow,
		"EXECUTION", "MODULE", "TARGET", "STATUS", "DURATION", "STARTED"))}
	for _, rec := range records {
		rows = append(rows, fmt.Sprintf(historyRow,
			rec.ExecutionID,
			truncateString(rec.Module, 14),
			truncateString(rec.Target, 28),
			statusStyle(rec.Status).Render(fmt.Sprintf("%-7s", rec.Status)),
			(time.Duration(rec.DurationMS)*time.Millisecond).String(),
			rec.Timestamp.Format(time.RFC3339),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderRecord(rec storage.Record) string {
	field := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	lines := []string{
		field("execution", rec.ExecutionID),
		field("module", rec.Module),
		field("target", rec.Target),
		field("status", statusStyle(rec.Status).Render(string(rec.Status))),
		field("started", rec.Timestamp.Format(time.RFC3339Nano)),
	}
	if rec.FinishedAt != nil {
		lines = append(lines, field("finished", rec.FinishedAt.Format(time.RFC3339Nano)))
	}
	if rec.ExitCode != nil {
		lines = append(lines, field("exit code", fmt.Sprint(*rec.ExitCode)))
	}
	lines = append(lines, field("duration", (time.Duration(rec.DurationMS)*time.Millisecond).String()))
	if rec.Error != "" {
		lines = append(lines, field("error", failStyle.Render(rec.Error)))
	}
	if rec.Output != "" {
		lines = append(lines, "", headerStyle.Render("stdout"), rec.Output)
	}
	if rec.Stderr != "" {
		lines = append(lines, "", headerStyle.Render("stderr"), rec.Stderr)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusStyle(s storage.Status) lipgloss.Style {
	switch s {
	case storage.StatusSuccess:
		return okStyle
	case storage.StatusFailed:
		return failStyle
	}
	return pendStyle
}

func truncateString(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
