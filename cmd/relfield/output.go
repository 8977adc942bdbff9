package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// msgOut receives status messages; command results go to stdout.
var msgOut io.Writer = os.Stderr

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleStep    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleFaint   = lipgloss.NewStyle().Faint(true)
)

// colorize renders text with style unless --no-color or NO_COLOR is set.
func colorize(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func printMark(style lipgloss.Style, mark, format string, args ...any) {
	fmt.Fprintln(msgOut, colorize(style, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMark(styleSuccess, "✓", format, args...) }
func printError(format string, args ...any)   { printMark(styleError, "✗", format, args...) }
func printWarning(format string, args ...any) { printMark(styleWarning, "⚠", format, args...) }
func printStep(format string, args ...any)    { printMark(styleStep, "→", format, args...) }

// printStatus prints an indented "label: value" line.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(styleBold, label+":"), fmt.Sprintf(format, args...))
}
