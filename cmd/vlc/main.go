package main

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/teris-io/cli"

	"github.com/vlctools/vlc/pkg/compiler"
	"github.com/vlctools/vlc/pkg/parser"
	"github.com/vlctools/vlc/pkg/vmlang"
)

var Description = strings.ReplaceAll(`
vlc compiles 'L' source files (one module per file, conventionally named
.fun) into VM text, one output file per class. Multiple source files and
whole directories can be given at once; directories are walked recursively
for .fun files.
`, "\n", " ")

var Vlc = cli.New(Description).
	WithArg(cli.NewArg("inputs", "The 'L' source (.fun) files or directories to compile").
		AsOptional().WithType(cli.TypeString)).
	WithOption(cli.NewOption("output", "Directory to write the compiled .vm files into").
		WithType(cli.TypeString)).
	WithAction(Handler)

func Handler(args []string, options map[string]string) int {
	if len(args) < 1 || options["output"] == "" {
		fmt.Printf("ERROR: Not enough arguments provided, use --help\n")
		return -1
	}

	if err := os.MkdirAll(options["output"], 0o755); err != nil {
		fmt.Printf("ERROR: Unable to create output directory: %s\n", err)
		return -1
	}

	sources, err := collectSources(args)
	if err != nil {
		fmt.Printf("ERROR: %s\n", err)
		return -1
	}

	classes := map[string][]vmlang.VMToken{}

	for _, src := range sources {
		content, err := os.ReadFile(src)
		if err != nil {
			fmt.Printf("ERROR: Unable to open input file: %s\n", err)
			return -1
		}

		p := parser.NewParser(bytes.NewReader(content))
		module, err := p.Parse()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'parsing' pass on '%s': %s\n", src, err)
			return -1
		}

		compiled, err := compiler.NewCompiler(module).Compile()
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'compiling' pass on '%s': %s\n", src, err)
			return -1
		}

		for name, tokens := range compiled {
			if _, dup := classes[name]; dup {
				fmt.Printf("ERROR: Class '%s' is defined more than once across the given inputs\n", name)
				return -1
			}
			classes[name] = tokens
		}
	}

	for name, tokens := range classes {
		lines, err := vmlang.Render(tokens)
		if err != nil {
			fmt.Printf("ERROR: Unable to complete 'codegen' pass for class '%s': %s\n", name, err)
			return -1
		}

		outPath := filepath.Join(options["output"], name+".vm")
		output, err := os.Create(outPath)
		if err != nil {
			fmt.Printf("ERROR: Unable to open output file: %s\n", err)
			return -1
		}

		for _, line := range lines {
			output.Write([]byte(line + "\n"))
		}
		output.Close()
	}

	return 0
}

func collectSources(inputs []string) ([]string, error) {
	var sources []string
	for _, input := range inputs {
		err := filepath.Walk(input, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".fun" {
				return nil
			}
			sources = append(sources, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("unable to walk input '%s': %w", input, err)
		}
	}
	return sources, nil
}

func main() { os.Exit(Vlc.Run(os.Args, os.Stdout)) }
