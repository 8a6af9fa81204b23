// diagnostic.go reads a subprocess's stdout/stderr on a background
// goroutine and parses the machine-readable diagnostic stream: JSON
// objects on newline boundaries, rendered for a terminal consumer.
package jobqueue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"
)

// DiagnosticLevel mirrors the severity a compiler diagnostic carries.
type DiagnosticLevel string

const (
	LevelError   DiagnosticLevel = "error"
	LevelWarning DiagnosticLevel = "warning"
	LevelNote    DiagnosticLevel = "note"
	LevelHelp    DiagnosticLevel = "help"
)

// Diagnostic is one parsed machine-readable message.
type Diagnostic struct {
	Level   DiagnosticLevel  `json:"level"`
	Message string           `json:"message"`
	Code    string           `json:"code,omitempty"`
	Spans   []DiagnosticSpan `json:"spans,omitempty"`
}

// DiagnosticSpan locates a diagnostic within a source file.
type DiagnosticSpan struct {
	FileName    string `json:"file_name"`
	LineStart   int    `json:"line_start"`
	ColumnStart int    `json:"column_start"`
}

// ParseStream reads newline-delimited JSON diagnostics from r, calling emit
// for each one it successfully decodes. Lines that are not valid
// diagnostics (plain compiler chatter, or malformed JSON) are passed
// through to emit as a raw-text Diagnostic with an empty Level, matching
// the registry-index consumer's "skip records whose shape does not parse"
// leniency rather than failing the whole stream.
func ParseStream(r io.Reader, emit func(Diagnostic)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var d Diagnostic
		if err := json.Unmarshal(line, &d); err != nil || d.Level == "" && d.Message == "" {
			emit(Diagnostic{Message: string(line)})
			continue
		}
		emit(d)
	}

	return scanner.Err()
}

// Renderer colorizes and aligns parsed diagnostics for a terminal, the one
// piece of rendering assigns to the job queue itself. labelWidth grows to
// the widest unit label seen so far so that every diagnostic's label
// column lines up, the same running-max-then-pad approach the teacher's
// table renderer uses for its columns.
type Renderer struct {
	Out io.Writer
	Log *logrus.Entry

	labelWidth int
}

func NewRenderer(out io.Writer, log *logrus.Entry) *Renderer {
	return &Renderer{Out: out, Log: log}
}

func (r *Renderer) Render(unitLabel string, d Diagnostic) {
	label := dimLabel(unitLabel)
	if w := runewidth.StringWidth(unitLabel) + 2; w > r.labelWidth {
		r.labelWidth = w
	}
	label = padRight(label, r.labelWidth)

	if d.Level == "" {
		fmt.Fprintf(r.Out, "%s %s\n", label, d.Message)
		return
	}

	header := fmt.Sprintf("%s: %s", levelColor(d.Level).Sprint(d.Level), d.Message)
	fmt.Fprintf(r.Out, "%s %s\n", label, header)

	for _, span := range d.Spans {
		fmt.Fprintf(r.Out, "  --> %s:%d:%d\n", span.FileName, span.LineStart, span.ColumnStart)
	}
}

func levelColor(level DiagnosticLevel) *color.Color {
	switch level {
	case LevelError:
		return color.New(color.FgRed, color.Bold)
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold)
	case LevelHelp:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgBlue)
	}
}

func dimLabel(label string) string {
	return color.New(color.Faint).Sprintf("[%s]", label)
}

var ansiEscape = regexp.MustCompile(`\x1B\[([0-9]{1,2}(;[0-9]{1,2})?)?[mK]`)

// stripANSI removes color escape codes so display-width measurement
// isn't thrown off by bytes the terminal never prints.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// padRight pads s to width display columns (not byte length), measuring
// width on the ANSI-stripped form so an already-colorized label still
// lines up in a fixed-width terminal.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(stripANSI(s))
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
