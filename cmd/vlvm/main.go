package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/teris-io/cli"

	"github.com/vlctools/vlc/pkg/emulator"
	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/vmlang"
)

var Description = strings.ReplaceAll(`
vlvm loads and links one or more VM (.vm) files and runs them on the VM
emulator. Files are linked in the order given; functions resolve across
files, while labels stay local to the function that declares them and the
static segment is kept private to the file that declared it.
`, "\n", " ")

const defaultMaxSteps = 10_000_000

var Vlvm = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The VM (.vm) files to load and run").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("entry", "The fully qualified function to start execution from (default Main.main)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("max-steps", "Aborts execution after this many steps (default 10000000)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("profile", "Prints per-function call/step counts after the run").
		WithType(cli.TypeBool)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	entry := options["entry"]
	if entry == "" {
		entry = "Main.main"
	}

	maxSteps := defaultMaxSteps
	if raw := options["max-steps"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			fmt.Printf("ERROR: '--max-steps' must be a positive integer, got '%s'\n", raw)
			return -1
		}
		maxSteps = parsed
	}

	var files []program.FileTokens
	for _, input := range args {
		content, err := os.ReadFile(input)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		tok := vmlang.NewTokenizer(bytes.NewReader(content))
		tokens, err := tok.Tokenize()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'tokenizing' pass on '%s': %s\n", input, err)
			return -1
		}

		files = append(files, program.FileTokens{Name: path.Base(input), Tokens: tokens})
	}

	builder := program.NewBuilder(emulator.DefaultIntrinsics())
	prog, err := builder.Build(files)
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'linking' pass: %s\n", err)
		return -1
	}
	for _, warning := range prog.Warnings {
		fmt.Printf("WARNING: %s\n", warning)
	}

	vm := emulator.New(prog)
	if _, enabled := options["profile"]; enabled {
		vm.EnableProfiling()
	}

	if err := vm.Init(entry); err != nil {
		fmt.Printf("ERROR: Unable to start execution at '%s': %s\n", entry, err)
		return -1
	}

	result, err := vm.Run(maxSteps)
	if err != nil {
		fmt.Printf("ERROR: Execution failed: %s\n", err)
		return -1
	}

	fmt.Printf("%d\n", result)

	if _, enabled := options["profile"]; enabled {
		fmt.Print(vm.Profiler().Stats(prog))
	}

	return 0
}

func main() { os.Exit(Vlvm.Run(os.Args, os.Stdout)) }
