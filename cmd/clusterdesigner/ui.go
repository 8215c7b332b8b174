// ABOUTME: Terminal styling for CLI output built on lipgloss: status icons, diagnostics, and file lines.
// ABOUTME: All printers take an io.Writer so commands can be captured in tests.
package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/clusterdesigner/topology"
	"github.com/2389-research/clusterdesigner/topology/validator"
)

var (
	colorCyan   = lipgloss.Color("36")
	colorGreen  = lipgloss.Color("35")
	colorYellow = lipgloss.Color("220")
	colorRed    = lipgloss.Color("167")
	colorBlue   = lipgloss.Color("75")
	colorDim    = lipgloss.Color("240")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleError   = lipgloss.NewStyle().Foreground(colorRed)
	styleFile    = lipgloss.NewStyle().Foreground(colorBlue)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconArrow   = "→"
)

// Kind styles used by the tree view.
var kindStyles = map[topology.Kind]lipgloss.Style{
	topology.KindAuctioneer:   lipgloss.NewStyle().Bold(true).Foreground(colorRed),
	topology.KindConcentrator: lipgloss.NewStyle().Foreground(colorBlue),
	topology.KindObjective:    lipgloss.NewStyle().Foreground(colorYellow),
	topology.KindDevice:       lipgloss.NewStyle().Foreground(colorGreen),
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleWarning.Render(iconWarning)+" "+styleWarning.Render(fmt.Sprintf(format, args...)))
}

func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+styleDim.Render(iconArrow)+" "+styleFile.Render(path))
}

// printDiagnostics writes one line per diagnostic in rule order.
func printDiagnostics(w io.Writer, diags []validator.Diagnostic) {
	for _, d := range diags {
		icon, style := iconWarning, styleWarning
		if d.Severity == validator.SeverityError {
			icon, style = iconError, styleError
		}
		line := style.Render(icon) + " " + d.Message + " " + styleDim.Render("["+d.Rule+"]")
		fmt.Fprintln(w, line)
	}
}
