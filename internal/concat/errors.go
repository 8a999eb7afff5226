package concat

import (
	"fmt"
	"strings"

	"github.com/efebarandurmaz/hoist/internal/ir"
)

// InvariantError reports a module or chunk graph that contradicts itself,
// such as a connection pointing at a module the graph does not have. It
// aborts the pass.
type InvariantError struct {
	Op     string
	Module ir.ModuleID
	Chunk  ir.ChunkID
	Root   ir.ModuleID
	Err    error
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	b.WriteString("concat: ")
	b.WriteString(e.Op)
	if e.Root != "" {
		fmt.Fprintf(&b, " (root %s)", e.Root)
	}
	if e.Module != "" {
		fmt.Fprintf(&b, " module %s", e.Module)
	}
	if e.Chunk != "" {
		fmt.Fprintf(&b, " chunk %s", e.Chunk)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InvariantError) Unwrap() error { return e.Err }

func invariant(op string, module ir.ModuleID, err error) *InvariantError {
	return &InvariantError{Op: op, Module: module, Err: err}
}
