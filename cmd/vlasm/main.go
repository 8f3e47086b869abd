package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"

	"github.com/vlctools/vlc/pkg/asmgen"
	"github.com/vlctools/vlc/pkg/emulator"
	"github.com/vlctools/vlc/pkg/program"
	"github.com/vlctools/vlc/pkg/vmlang"
)

var Description = strings.ReplaceAll(`
vlasm loads and links one or more VM (.vm) files and emits the equivalent
x86-64 assembly text, using the same host intrinsic ids the emulator's
default ABI assigns for Math.divide, Math.multiply and Memory.alloc.
`, "\n", " ")

var Vlasm = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The VM (.vm) files to load and link").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("entry", "The fully qualified function hack_sys_init jumps to (default Main.main)").
		WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "Directory to write the generated program.s into").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	entry := options["entry"]
	if entry == "" {
		entry = "Main.main"
	}

	if err := os.MkdirAll(options["output"], 0o755); err != nil {
		fmt.Printf("ERROR: Unable to create output directory: %s\n", err)
		return -1
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

	lines, err := asmgen.NewGenerator(prog).Generate(entry)
	if err != nil {
		fmt.Printf("ERROR: Unable to complete 'codegen' pass: %s\n", err)
		return -1
	}

	outPath := filepath.Join(options["output"], "program.s")
	output, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("ERROR: Unable to open output file: %s\n", err)
		return -1
	}
	defer output.Close()

	for _, line := range lines {
		output.Write([]byte(line + "\n"))
	}

	return 0
}

func main() { os.Exit(Vlasm.Run(os.Args, os.Stdout)) }
