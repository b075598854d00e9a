// Package cli holds the process entry seam shared by main and its tests.
package cli

import (
	"fmt"
	"io"
)

// Handler runs one bundlefetch invocation and returns its exit status.
//
// main sets it in init, so tests drive the full command tree in-process
// through Run without building or forking a binary.
var Handler func(args []string, stdout, stderr io.Writer) int

// Run dispatches to Handler. It returns 1 when no handler is wired.
func Run(args []string, stdout, stderr io.Writer) int {
	if Handler == nil {
		fmt.Fprintln(stderr, "bundlefetch: no command handler wired")
		return 1
	}
	return Handler(args, stdout, stderr)
}
