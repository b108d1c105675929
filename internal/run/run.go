// Package run ties the compiler and VM together: compile source to a
// function table, then run it on a (possibly reused) VM instance.
package run

import (
	"fmt"
	"io"
	"strings"

	"loxgo/compiler"
	"loxgo/vm"
)

// Source compiles and executes source on machine. A compile error is
// returned as-is (it aggregates every error found via go-multierror);
// a runtime error is returned as *vm.RuntimeError.
func Source(source string, machine *vm.VM) (vm.Value, error) {
	functions, err := compiler.Compile(source)
	if err != nil {
		return vm.Nil, err
	}
	return machine.Run(functions)
}

// PrintError writes err to w in the format the CLI documents, and
// reports which exit status it corresponds to: 1 for any error this
// package can produce (usage errors, code 64, are a subcommands
// concern, not this package's).
func PrintError(w io.Writer, err error) int {
	if rtErr, ok := err.(*vm.RuntimeError); ok {
		fmt.Fprintf(w, "Runtime error: %s\n", rtErr.Message)
		for _, frame := range rtErr.Trace {
			fmt.Fprintf(w, "\t%s\n", frame)
		}
		return 1
	}

	fmt.Fprintf(w, "error: %s\n", strings.TrimSpace(err.Error()))
	return 1
}
