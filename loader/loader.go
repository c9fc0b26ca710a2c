// Package loader resolves import paths to parsed programs. It is the
// only place the interpreter touches the filesystem for imports: the
// evaluation engine receives a loader callback and never reads files
// itself.
package loader

import (
	"os"
	"path/filepath"

	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/lexer"
	"github.com/malloc-nbytes/earl/parser"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

// Loader resolves import paths against an ordered list of search
// directories. The first directory is conventionally the one containing
// the entry script, so sibling imports resolve without configuration.
type Loader struct {
	SearchPaths []string
}

// New builds a Loader over the given search directories.
func New(searchPaths []string) *Loader {
	return &Loader{SearchPaths: searchPaths}
}

// Resolve maps an import path to the first existing file under the
// search directories. A path that is already absolute, or that exists
// relative to the working directory, is used as-is.
func (l *Loader) Resolve(path string) (string, bool) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		return "", false
	}
	if _, err := os.Stat(path); err == nil {
		return path, true
	}
	for _, dir := range l.SearchPaths {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// Load resolves, reads, and parses the file at path. The second return
// is the file's canonical key — its absolute path — so the evaluator
// can recognize the same file imported through different relative
// spellings when guarding against import cycles.
func (l *Loader) Load(path string) (*ast.Program, string, *errs.Error) {
	resolved, ok := l.Resolve(path)
	if !ok {
		return nil, "", errs.New(errs.Runtime, token.Token{}, "cannot resolve import %q", path)
	}
	key, absErr := filepath.Abs(resolved)
	if absErr != nil {
		key = resolved
	}

	//nolint:gosec
	src, readErr := os.ReadFile(resolved)
	if readErr != nil {
		return nil, "", errs.New(errs.Runtime, token.Token{}, "cannot read import %q: %s", path, readErr)
	}
	program, perr := Parse(string(src))
	if perr != nil {
		return nil, "", perr
	}
	return program, key, nil
}

// Parse lexes and parses src, folding any parser errors into the first
// one — errors are terminal, so only the first is ever reported.
func Parse(src string) (*ast.Program, *errs.Error) {
	p := parser.New(lexer.New(src))
	program := p.ParseProgram()
	if perrs := p.Errors(); len(perrs) > 0 {
		return nil, perrs[0]
	}
	return program, nil
}

// EvalSiblings parses and evaluates each extra CLI argument as an
// importable sibling module, attaching the resulting child context to
// parent. This is what makes "earl main.earl util.earl" work without a
// matching import statement in main.earl.
func EvalSiblings(paths []string, parent *value.Context, run func(*ast.Program, *value.Context) *errs.Error) *errs.Error {
	for _, p := range paths {
		//nolint:gosec
		src, readErr := os.ReadFile(p)
		if readErr != nil {
			return errs.New(errs.Runtime, token.Token{}, "cannot read %q: %s", p, readErr)
		}
		program, perr := Parse(string(src))
		if perr != nil {
			return perr
		}
		child := value.NewContext()
		if err := run(program, child); err != nil {
			return err
		}
		if child.ModuleName == "" {
			return errs.New(errs.Fatal, token.Token{}, "%q has no module statement and cannot be attached as an import", p)
		}
		parent.PushChildContext(child)
	}
	return nil
}
