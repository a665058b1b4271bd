package bldtrack

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fredrikaverpil/bldtrack/buildop"
)

// Output holds the stdout and stderr writers of a task action.
// It is carried in the context so nested and parallel actions write to the
// right place.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// StdOutput returns an Output that writes to os.Stdout and os.Stderr.
func StdOutput() *Output {
	return &Output{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Printf formats and prints to stdout.
func (o *Output) Printf(format string, a ...any) (int, error) {
	return fmt.Fprintf(o.Stdout, format, a...)
}

// Println prints to stdout with a newline.
func (o *Output) Println(a ...any) (int, error) {
	return fmt.Fprintln(o.Stdout, a...)
}

// operationOutput holds back the output of one build operation started by
// Parallel until the operation completes. Flushed lines are prefixed with
// the operation name so interleaved results stay attributable.
type operationOutput struct {
	op     *buildop.Operation
	parent *Output

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newOperationOutput(parent *Output, op *buildop.Operation) *operationOutput {
	return &operationOutput{op: op, parent: parent}
}

// Output returns writers into the operation's buffers.
// They are safe for concurrent use.
func (o *operationOutput) Output() *Output {
	return &Output{
		Stdout: &operationWriter{o: o, buf: &o.stdout},
		Stderr: &operationWriter{o: o, buf: &o.stderr},
	}
}

// Flush writes the buffered output to the parent, one write per stream,
// and empties the buffers.
func (o *operationOutput) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	prefix := "[" + o.op.Name + "] "
	writePrefixed(o.parent.Stdout, prefix, &o.stdout)
	writePrefixed(o.parent.Stderr, prefix, &o.stderr)
}

// writePrefixed writes every line of buf to w with prefix in front.
// A trailing partial line is terminated.
func writePrefixed(w io.Writer, prefix string, buf *bytes.Buffer) {
	if buf.Len() == 0 {
		return
	}
	var out bytes.Buffer
	for line := range bytes.Lines(buf.Bytes()) {
		out.WriteString(prefix)
		out.Write(line)
		if !bytes.HasSuffix(line, []byte("\n")) {
			out.WriteByte('\n')
		}
	}
	buf.Reset()
	_, _ = w.Write(out.Bytes())
}

type operationWriter struct {
	o   *operationOutput
	buf *bytes.Buffer
}

func (w *operationWriter) Write(p []byte) (int, error) {
	w.o.mu.Lock()
	defer w.o.mu.Unlock()
	return w.buf.Write(p)
}
