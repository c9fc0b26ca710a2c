// Package cli wires the interpreter's outer surface: run configuration
// (an optional .earlrc.yaml beside the entry script, overridden by
// EARL_* environment variables), styled diagnostics keyed off the error
// taxonomy, and the run-a-script entry point used by main.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/interp"
	"github.com/malloc-nbytes/earl/loader"
	"github.com/malloc-nbytes/earl/value"
)

// RCFile is the run-configuration file looked up beside the entry
// script.
const RCFile = ".earlrc.yaml"

// Config controls the interpreter's outer behavior. Values are read
// from the rc file first, then overridden by environment variables.
type Config struct {
	ImportPaths []string `yaml:"import_paths" env:"EARL_IMPORT_PATH" envSeparator:":"`
	NoColor     bool     `yaml:"no_color" env:"EARL_NO_COLOR"`
	Debug       bool     `yaml:"debug" env:"EARL_DEBUG"`
}

// LoadConfig reads the rc file from dir (missing file is fine) and
// applies environment overrides on top.
func LoadConfig(dir string) (Config, error) {
	var cfg Config

	data, readErr := os.ReadFile(filepath.Join(dir, RCFile)) //nolint:gosec
	if readErr == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", RCFile, err)
		}
	} else if !os.IsNotExist(readErr) {
		return cfg, readErr
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// IsInteractive reports whether both ends of the terminal are TTYs, the
// gate for starting the full-screen REPL rather than evaluating a program
// read from stdin.
func IsInteractive() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())
}

// One style per error kind, applied to the kind prefix of a reported
// diagnostic.
var kindStyles = map[errs.Kind]lipgloss.Style{
	errs.Syntax:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true),
	errs.Runtime:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8700")).Bold(true),
	errs.Types:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	errs.Redeclared: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	errs.Undeclared: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true),
	errs.Fatal:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
	errs.Internal:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true),
	errs.Todo:       lipgloss.NewStyle().Foreground(lipgloss.Color("#767676")),
}

// RenderError formats an evaluation error for the terminal, styling the
// kind prefix unless noColor is set.
func RenderError(e *errs.Error, noColor bool) string {
	if noColor {
		return e.Error()
	}
	style, ok := kindStyles[e.Kind]
	if !ok {
		return e.Error()
	}
	return fmt.Sprintf("%s:%d:%d: %s", style.Render(string(e.Kind)), e.Tok.Line, e.Tok.Column, e.Message)
}

// ReportError writes a rendered error to stderr.
func ReportError(e *errs.Error, noColor bool) {
	fmt.Fprintln(os.Stderr, RenderError(e, noColor))
}

// RunFile evaluates the script at path. Extra sibling files are
// evaluated first and attached as importable modules. Returns the
// process exit code: 0 on success, 1 on any error kind.
func RunFile(path string, siblings []string, cfg Config) int {
	//nolint:gosec
	src, readErr := os.ReadFile(path)
	if readErr != nil {
		fmt.Fprintf(os.Stderr, "error reading %s: %s\n", path, readErr)
		return 1
	}

	program, perr := loader.Parse(string(src))
	if perr != nil {
		ReportError(perr, cfg.NoColor)
		return 1
	}

	searchPaths := append([]string{filepath.Dir(path)}, cfg.ImportPaths...)
	in := interp.New(loader.New(searchPaths).Load)
	ctx := value.NewContext()

	if err := loader.EvalSiblings(siblings, ctx, in.Run); err != nil {
		ReportError(err, cfg.NoColor)
		return 1
	}
	if err := in.Run(program, ctx); err != nil {
		ReportError(err, cfg.NoColor)
		return 1
	}
	return 0
}
