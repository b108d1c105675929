package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"loxgo/internal/run"
	"loxgo/vm"
)

type replCmd struct {
	trace bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "start an interactive Lox session" }
func (*replCmd) Usage() string    { return "repl:\n  start an interactive Lox session\n" }

func (cmd *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.trace, "trace", false, "log compiled bytecode for each line")
}

func (cmd *replCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	setTrace(cmd.trace)

	machine := vm.NewVM()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "quit" || line == "q!" {
			return subcommands.ExitSuccess
		}

		if _, err := run.Source(line, machine); err != nil {
			run.PrintError(os.Stderr, err)
		}
		fmt.Print("> ")
	}
	return subcommands.ExitSuccess
}
