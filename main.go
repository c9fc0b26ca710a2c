// earl interprets EARL source files by walking their syntax tree directly.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/malloc-nbytes/earl/cli"
	"github.com/malloc-nbytes/earl/interp"
	"github.com/malloc-nbytes/earl/loader"
	"github.com/malloc-nbytes/earl/repl"
	"github.com/malloc-nbytes/earl/value"
)

const version = "0.1.0"

// printUsage displays custom usage information
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `EARL interpreter v%s

USAGE:
    %s [OPTIONS] [source.earl [imports...]]

DESCRIPTION:
    earl evaluates EARL source files with a tree-walking interpreter.
    Without a source file, it starts an interactive REPL when attached
    to a terminal, or reads a program from stdin otherwise.

    Extra file arguments after the source file are evaluated as
    importable modules visible to the main program.

OPTIONS:
    -e, --eval <code>       Evaluate an EARL program given on the command line
    -d, --debug             Enable debug mode with more verbose output
    -n, --no-color          Disable colored diagnostics
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Start interactive REPL
    %s

    # Execute a script
    %s script.earl

    # Execute a script with a sibling module
    %s main.earl math.earl

    # Evaluate an expression
    %s -e "print(1 + 2);"

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	flag.Usage = printUsage

	evalFlag := flag.String("eval", "", "Evaluate an EARL program given on the command line")
	debugFlag := flag.Bool("debug", false, "Enable debug mode with more verbose output")
	noColorFlag := flag.Bool("no-color", false, "Disable colored diagnostics")
	versionFlag := flag.Bool("version", false, "Show version information")

	flag.StringVar(evalFlag, "e", "", "Evaluate an EARL program given on the command line")
	flag.BoolVar(debugFlag, "d", false, "Enable debug mode with more verbose output")
	flag.BoolVar(noColorFlag, "n", false, "Disable colored diagnostics")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	flag.Parse()

	if *versionFlag {
		fmt.Printf("EARL interpreter v%s\n", version)
		return
	}

	args := flag.Args()

	configDir := "."
	if len(args) > 0 {
		configDir = filepath.Dir(args[0])
	}
	cfg, cfgErr := cli.LoadConfig(configDir)
	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %s\n", cfgErr)
		os.Exit(1)
	}
	if *noColorFlag {
		cfg.NoColor = true
	}
	if *debugFlag {
		cfg.Debug = true
	}

	if *evalFlag != "" {
		os.Exit(evalSource(*evalFlag, cfg))
	}

	if len(args) > 0 {
		os.Exit(cli.RunFile(args[0], args[1:], cfg))
	}

	if !cli.IsInteractive() {
		// Piped input: read the whole program from stdin and evaluate it.
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading stdin: %s\n", err)
			os.Exit(1)
		}
		os.Exit(evalSource(string(src), cfg))
	}

	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}

	repl.Start(username, repl.Options{NoColor: cfg.NoColor, Debug: cfg.Debug, ImportPaths: cfg.ImportPaths})
}

// evalSource evaluates a program given as a string, with imports
// resolved against the working directory and the configured paths.
func evalSource(src string, cfg cli.Config) int {
	program, perr := loader.Parse(src)
	if perr != nil {
		cli.ReportError(perr, cfg.NoColor)
		return 1
	}
	searchPaths := append([]string{"."}, cfg.ImportPaths...)
	in := interp.New(loader.New(searchPaths).Load)
	if err := in.Run(program, value.NewContext()); err != nil {
		cli.ReportError(err, cfg.NoColor)
		return 1
	}
	return 0
}
