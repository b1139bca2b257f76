// Package ui formats CLI output: status messages, validation reports, and
// tables. Everything renders to an io.Writer so tests capture output
// directly.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/snspd-lab/labwizard/internal/topology"
)

// Options configures rendering.
type Options struct {
	NoColor bool
}

func paint(c *color.Color, noColor bool) *color.Color {
	if noColor {
		c.DisableColor()
	}
	return c
}

// Success writes a green check line.
func Success(w io.Writer, message string, opts Options) {
	green := paint(color.New(color.FgGreen, color.Bold), opts.NoColor)
	green.Fprintf(w, "✓ %s\n", message)
}

// Failure writes a red error line.
func Failure(w io.Writer, message string, opts Options) {
	red := paint(color.New(color.FgRed, color.Bold), opts.NoColor)
	red.Fprintf(w, "✗ %s\n", message)
}

// Warn writes a yellow warning line.
func Warn(w io.Writer, message string, opts Options) {
	yellow := paint(color.New(color.FgYellow), opts.NoColor)
	yellow.Fprintf(w, "! %s\n", message)
}

// Info writes a cyan informational line.
func Info(w io.Writer, message string, opts Options) {
	cyan := paint(color.New(color.FgCyan), opts.NoColor)
	cyan.Fprintf(w, "• %s\n", message)
}

var kindLabels = map[topology.ErrorKind]string{
	topology.KindUnknownImplementation: "unknown implementation",
	topology.KindSchemaViolation:       "configuration error",
	topology.KindDuplicateSlot:         "duplicate slot",
}

// ValidationReport renders every topology validation error with its path,
// optionally suggesting close implementation names for unknown-implementation
// errors.
func ValidationReport(w io.Writer, errs *topology.ValidationErrors, known []string, opts Options) {
	red := paint(color.New(color.FgRed, color.Bold), opts.NoColor)
	gray := paint(color.New(color.FgHiBlack), opts.NoColor)
	yellow := paint(color.New(color.FgYellow), opts.NoColor)

	red.Fprintf(w, "✗ topology validation failed with %d error(s)\n", errs.Count())

	for _, e := range errs.Errors {
		label, ok := kindLabels[e.Kind]
		if !ok {
			label = string(e.Kind)
		}
		fmt.Fprintf(w, "  - [%s] ", label)
		gray.Fprintf(w, "%s: ", e.Path)
		fmt.Fprintf(w, "%s\n", e.Message)

		if e.Kind == topology.KindUnknownImplementation && len(known) > 0 {
			if name, found := extractQuoted(e.Message); found {
				if suggestions := Suggest(name, known); len(suggestions) > 0 {
					yellow.Fprintf(w, "      did you mean: %s?\n", strings.Join(suggestions, ", "))
				}
			}
		}
	}
}

// extractQuoted pulls the first double-quoted token out of a message.
func extractQuoted(s string) (string, bool) {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}
