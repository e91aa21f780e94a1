// Package output renders run progress and summaries for the terminal.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"crewflow/internal/state"
)

// Printer writes styled run output. Create with [NewPrinter] for stdout or
// [NewPrinterWithWriter] to capture output in tests.
type Printer struct {
	w io.Writer

	phaseStyle   lipgloss.Style
	agentStyle   lipgloss.Style
	dimStyle     lipgloss.Style
	successStyle lipgloss.Style
	errorStyle   lipgloss.Style
}

// NewPrinter creates a [Printer] writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a [Printer] writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{
		w:            w,
		phaseStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		agentStyle:   lipgloss.NewStyle().Bold(true),
		dimStyle:     lipgloss.NewStyle().Faint(true),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Phase prints a phase banner.
func (p *Printer) Phase(phase state.Phase) {
	fmt.Fprintf(p.w, "\n%s\n", p.phaseStyle.Render("── "+string(phase)+" ──"))
}

// Message prints one transcript entry.
func (p *Printer) Message(m state.Message) {
	fmt.Fprintf(p.w, "%s %s\n", p.agentStyle.Render(m.From+":"), m.Content)
}

// Summary prints the final state of a run: phase, turns, contributors, and
// an artifact inventory.
func (p *Printer) Summary(st *state.WorkflowState) {
	fmt.Fprintf(p.w, "\n%s\n", p.phaseStyle.Render("── run summary ──"))
	fmt.Fprintf(p.w, "thread:       %s\n", st.ThreadID)
	fmt.Fprintf(p.w, "phase:        %s\n", st.Phase)
	fmt.Fprintf(p.w, "turns:        %d\n", st.TurnCount)

	fmt.Fprint(p.w, "contributors:")
	for _, r := range st.ContributorList() {
		fmt.Fprintf(p.w, " %s", r)
	}
	fmt.Fprintln(p.w)

	fmt.Fprintf(p.w, "artifacts:    %d\n", len(st.Artifacts))
	for _, a := range st.Artifacts {
		fmt.Fprintf(p.w, "  %s\n", p.dimStyle.Render(fmt.Sprintf("%s (by %s)", a.Kind, a.Producer)))
	}
}

// Success prints a final success line.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.w, "%s\n", p.successStyle.Render("✓ "+msg))
}

// Error prints a final failure line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s\n", p.errorStyle.Render("✗ "+msg))
}

// Notice prints an informational line.
func (p *Printer) Notice(msg string) {
	fmt.Fprintf(p.w, "%s\n", p.dimStyle.Render(msg))
}
