// Package dashboard renders OutputData snapshots to the terminal using
// charmbracelet/lipgloss for layout and styling. It is a pure renderer:
// it never touches the WorkerPool, policy state, or SLA map directly —
// only the immutable snapshot handed to it each tick.
package dashboard

import (
	"fmt"
	"strings"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	breachStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	rowStyle    = lipgloss.NewStyle().PaddingLeft(1)
)

// Renderer turns an OutputData snapshot into a printable terminal frame.
type Renderer struct{}

// New builds a Renderer.
func New() *Renderer { return &Renderer{} }

// Render produces the full terminal frame for one snapshot: a queue
// table, a recent-scaling log, and a recent job-activity tail.
func (r *Renderer) Render(snap domain.OutputData) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("autoscaled — %s", snap.GeneratedAt.Format("15:04:05"))))
	b.WriteString("\n\n")
	b.WriteString(r.renderQueues(snap.Queues))
	b.WriteString("\n")
	b.WriteString(r.renderScalingLog(snap.RecentScalingLog))
	b.WriteString("\n")
	b.WriteString(r.renderJobActivity(snap.RecentJobActivity))
	return b.String()
}

func (r *Renderer) renderQueues(queues []domain.QueueSnapshot) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("queues"))
	b.WriteString("\n")
	for _, q := range queues {
		line := fmt.Sprintf("%-24s pending=%-6d workers=%d/%d sla=%s oldest=%.1fs",
			q.Connection+"/"+q.Queue, q.Pending, q.ActiveWorkers, q.TargetWorkers,
			styleSla(q.SlaStatus), q.OldestJobAge)
		b.WriteString(rowStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func styleSla(s domain.SlaStatus) string {
	switch s {
	case domain.SlaBreached:
		return breachStyle.Render(s.String())
	case domain.SlaWarning:
		return warnStyle.Render(s.String())
	default:
		return okStyle.Render(s.String())
	}
}

func (r *Renderer) renderScalingLog(entries []domain.ScalingLogEntry) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("recent scaling"))
	b.WriteString("\n")
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
		return b.String()
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s %s/%s %s %d->%d: %s",
			e.At.Format("15:04:05"), e.Connection, e.Queue, e.Action, e.From, e.To, e.Reason)
		b.WriteString(rowStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) renderJobActivity(lines []domain.JobActivityLine) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("job activity"))
	b.WriteString("\n")
	if len(lines) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
		return b.String()
	}
	for _, l := range lines {
		line := fmt.Sprintf("%s [pid %d] %s", l.At.Format("15:04:05"), l.Pid, l.Line)
		b.WriteString(rowStyle.Render(dimStyle.Render(line)))
		b.WriteString("\n")
	}
	return b.String()
}
