package jobqueue

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStreamDecodesNewlineDelimitedJSON(t *testing.T) {
	input := strings.NewReader(
		`{"level":"error","message":"mismatched types","code":"E0308","spans":[{"file_name":"src/lib.rs","line_start":10,"column_start":5}]}` + "\n" +
			`{"level":"warning","message":"unused variable"}` + "\n",
	)

	var got []Diagnostic
	require.NoError(t, ParseStream(input, func(d Diagnostic) { got = append(got, d) }))

	require.Len(t, got, 2)
	require.Equal(t, LevelError, got[0].Level)
	require.Equal(t, "E0308", got[0].Code)
	require.Equal(t, "src/lib.rs", got[0].Spans[0].FileName)
	require.Equal(t, LevelWarning, got[1].Level)
}

func TestParseStreamPassesThroughMalformedLinesAsRawText(t *testing.T) {
	input := strings.NewReader("warning: some non-JSON compiler chatter\n" + "{not even json\n")

	var got []Diagnostic
	require.NoError(t, ParseStream(input, func(d Diagnostic) { got = append(got, d) }))

	require.Len(t, got, 2)
	require.Equal(t, DiagnosticLevel(""), got[0].Level)
	require.Equal(t, "warning: some non-JSON compiler chatter", got[0].Message)
	require.Equal(t, "{not even json", got[1].Message)
}

func TestParseStreamSkipsBlankLines(t *testing.T) {
	input := strings.NewReader("\n   \n" + `{"level":"note","message":"see also"}` + "\n")

	var got []Diagnostic
	require.NoError(t, ParseStream(input, func(d Diagnostic) { got = append(got, d) }))

	require.Len(t, got, 1)
	require.Equal(t, LevelNote, got[0].Level)
}

func TestRendererRendersRawTextAndStructuredDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLog()
	r := NewRenderer(&buf, log)

	r.Render("pkg-a", Diagnostic{Message: "raw build chatter"})
	r.Render("pkg-a", Diagnostic{
		Level:   LevelError,
		Message: "mismatched types",
		Spans:   []DiagnosticSpan{{FileName: "src/lib.rs", LineStart: 3, ColumnStart: 1}},
	})

	out := buf.String()
	require.Contains(t, out, "raw build chatter")
	require.Contains(t, out, "mismatched types")
	require.Contains(t, out, "src/lib.rs:3:1")
}
