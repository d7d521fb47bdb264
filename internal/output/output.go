// Package output formats the line-oriented CLI output: status lines with
// icons, indented blocks and ranked search hits. Styling is applied only
// when writing to a terminal without NO_COLOR.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/corpusrag/internal/ui"
)

// Status icons.
const (
	IconSuccess = "✓"
	IconWarning = "!"
	IconError   = "✗"
	IconInfo    = "•"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Colors are used only when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithStyles(out, ui.GetStyles(!ui.IsTTY(out) || ui.DetectNoColor()))
}

// NewWithStyles creates a Writer with explicit styles.
func NewWithStyles(out io.Writer, styles ui.Styles) *Writer {
	return &Writer{out: out, styles: styles}
}

// Status prints msg after icon, or indented when icon is empty.
// Write errors are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render(IconSuccess), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render(IconWarning), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render(IconError), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold title line.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(msg))
}

// Dim prints a muted, indented line.
func (w *Writer) Dim(msg string) {
	_, _ = fmt.Fprintf(w.out, "  %s\n", w.styles.Dim.Render(msg))
}

// Block prints content with every line indented.
func (w *Writer) Block(content string) {
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "   %s\n", line)
	}
}

// Hit prints the title line of a ranked search result.
func (w *Writer) Hit(rank int, source, suffix string, score float32) {
	_, _ = fmt.Fprintf(w.out, "%d. %s%s  %s\n",
		rank,
		w.styles.Source.Render(source),
		suffix,
		w.styles.Score.Render(fmt.Sprintf("[%.3f]", score)))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
