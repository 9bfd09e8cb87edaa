// Package report writes analysis results: plain-text dumps, graph
// descriptions and colored verdicts on a terminal.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ajalab/leakcheck/ir"
)

// Renderer writes a graph description.
type Renderer interface {
	Render(w io.Writer) error
}

// DumpToFile replaces the content of the file at path with the display of s.
func DumpToFile(path string, s fmt.Stringer) error {
	return writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, s.String())
		return err
	})
}

// RenderToFile replaces the content of the file at path with the rendering of r.
func RenderToFile(path string, r Renderer) error {
	return writeFile(path, r.Render)
}

type pathName string

func (p pathName) String() string { return string(p) }

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ir.WrapErrorf(err, ir.IoError, pathName(path), "cannot open for writing")
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = ir.WrapErrorf(cerr, ir.IoError, pathName(path), "cannot close")
		}
	}()

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return ir.WrapErrorf(err, ir.IoError, pathName(path), "cannot write")
	}
	if err := w.Flush(); err != nil {
		return ir.WrapErrorf(err, ir.IoError, pathName(path), "cannot flush")
	}
	if err := f.Sync(); err != nil {
		return ir.WrapErrorf(err, ir.IoError, pathName(path), "cannot sync")
	}
	return nil
}
