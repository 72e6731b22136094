package execcontext

import (
	"context"
	"io"
)

// RunContext carries the streams and context a command runs with.
type RunContext struct {
	Context context.Context
	StdIn   io.Reader
	StdOut  io.Writer
	StdErr  io.Writer
}

// Write writes p to the output stream
func (rc RunContext) Write(p []byte) (n int, err error) {
	return rc.StdOut.Write(p)
}
