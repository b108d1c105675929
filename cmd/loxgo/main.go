// Command loxgo compiles and runs Lox programs: either a single file
// (`loxgo run path.lox`) or an interactive REPL (`loxgo repl`).
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"loxgo/vm"
)

// exitUsageError is the usage-error exit status: 64 (EX_USAGE), not
// subcommands' own ExitUsageError (2).
const exitUsageError = subcommands.ExitStatus(64)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&runCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	status := subcommands.Execute(ctx)
	if status == subcommands.ExitUsageError {
		status = exitUsageError
	}
	os.Exit(int(status))
}

// setTrace wires the --trace flag through to vm.Tracer, the package-level
// logrus logger the compiler/VM disassembler writes instruction traces to.
func setTrace(enabled bool) {
	if enabled {
		vm.Tracer.SetLevel(logrus.DebugLevel)
	} else {
		vm.Tracer.SetLevel(logrus.InfoLevel)
	}
}
