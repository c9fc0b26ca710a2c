// Package interp implements EARL's expression and statement evaluator:
// it walks an *ast.Program directly against a *value.Context,
// with no intermediate bytecode.
package interp

import (
	"strings"

	"github.com/google/uuid"

	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/value"
)

// Loader resolves an import path to a parsed program plus a canonical
// key identifying the underlying file (the same file reached through
// different relative paths must yield the same key). Supplied by the
// caller (the loader package, wired in from main/repl) so this package
// never touches the filesystem directly. The key feeds the evaluator's
// import-cycle guard.
type Loader func(path string) (*ast.Program, string, *errs.Error)

// signal marks non-local control flow produced by return/break/continue
// and consumed by the nearest enclosing function or loop.
type signal int

const (
	sigNone signal = iota
	sigReturn
	sigBreak
	sigContinue
)

// Interp ties the evaluator to a Loader for import statements.
//
// importing tracks files whose import is currently being evaluated,
// keyed by the Loader's canonical key and holding the ID of the child
// context under construction. Re-entering a key still in the map means
// the import chain loops back on itself; without the guard that would
// recurse without bound.
type Interp struct {
	Load Loader

	importing map[string]uuid.UUID
}

// New builds an Interp that resolves imports via load.
func New(load Loader) *Interp {
	return &Interp{Load: load, importing: make(map[string]uuid.UUID)}
}

// Run evaluates every top-level statement of program against ctx in
// order, stopping early (without error) on an unhandled return signal —
// a bare top-level "return" simply ends the script.
func (in *Interp) Run(program *ast.Program, ctx *value.Context) *errs.Error {
	_, _, err := in.evalStatementList(program.Statements, ctx)
	return err
}

func (in *Interp) evalStatementList(stmts []ast.Statement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	result := value.Value(value.Void{})
	for _, stmt := range stmts {
		v, sig, err := in.evalStatement(stmt, ctx)
		if err != nil {
			return nil, sigNone, err
		}
		result = v
		if sig != sigNone {
			return result, sig, nil
		}
	}
	return result, sigNone, nil
}

func (in *Interp) evalStatement(stmt ast.Statement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	switch node := stmt.(type) {
	case *ast.ExpressionStatement:
		v, err := in.evalExpr(node.Expression, ctx)
		return v, sigNone, err
	case *ast.LetStatement:
		v, err := in.evalLetStatement(node, ctx)
		return v, sigNone, err
	case *ast.MutStatement:
		err := in.evalMutStatement(node, ctx)
		return value.Void{}, sigNone, err
	case *ast.BlockStatement:
		return in.evalBlockStatement(node, ctx)
	case *ast.IfStatement:
		return in.evalIfStatement(node, ctx)
	case *ast.WhileStatement:
		return in.evalWhileStatement(node, ctx)
	case *ast.ForStatement:
		return in.evalForStatement(node, ctx)
	case *ast.ForeachStatement:
		return in.evalForeachStatement(node, ctx)
	case *ast.ReturnStatement:
		return in.evalReturnStatement(node, ctx)
	case *ast.BreakStatement:
		return value.Void{}, sigBreak, nil
	case *ast.ContinueStatement:
		return value.Void{}, sigContinue, nil
	case *ast.DefStatement:
		err := in.evalDefStatement(node, ctx)
		return value.Void{}, sigNone, err
	case *ast.ClassStatement:
		err := in.evalClassStatement(node, ctx)
		return value.Void{}, sigNone, err
	case *ast.ImportStatement:
		err := in.evalImportStatement(node, ctx)
		return value.Void{}, sigNone, err
	case *ast.ModuleStatement:
		ctx.ModuleName = node.Name.Value
		return value.Void{}, sigNone, nil
	default:
		return nil, sigNone, errs.New(errs.Internal, stmt.Tok(), "unhandled statement node %T", stmt)
	}
}

func (in *Interp) evalBlockStatement(block *ast.BlockStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	ctx.PushScope()
	v, sig, err := in.evalStatementList(block.Statements, ctx)
	ctx.PopScope()
	return v, sig, err
}

func (in *Interp) evalIfStatement(node *ast.IfStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	cond, err := in.evalExpr(node.Condition, ctx)
	if err != nil {
		return nil, sigNone, err
	}
	if cond.Truthy() {
		return in.evalBlockStatement(node.Consequence, ctx)
	}
	for _, elif := range node.Elifs {
		c, err := in.evalExpr(elif.Condition, ctx)
		if err != nil {
			return nil, sigNone, err
		}
		if c.Truthy() {
			return in.evalBlockStatement(elif.Consequence, ctx)
		}
	}
	if node.Alternative != nil {
		return in.evalBlockStatement(node.Alternative, ctx)
	}
	return value.Void{}, sigNone, nil
}

func (in *Interp) evalWhileStatement(node *ast.WhileStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	for {
		cond, err := in.evalExpr(node.Condition, ctx)
		if err != nil {
			return nil, sigNone, err
		}
		if !cond.Truthy() {
			return value.Void{}, sigNone, nil
		}
		v, sig, err := in.evalBlockStatement(node.Body, ctx)
		if err != nil {
			return nil, sigNone, err
		}
		switch sig {
		case sigBreak:
			return value.Void{}, sigNone, nil
		case sigReturn:
			return v, sigReturn, nil
		}
	}
}

func (in *Interp) evalForStatement(node *ast.ForStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	ctx.PushScope()
	defer ctx.PopScope()

	if node.Init != nil {
		if _, _, err := in.evalStatement(node.Init, ctx); err != nil {
			return nil, sigNone, err
		}
	}
	for {
		if node.Condition != nil {
			cond, err := in.evalExpr(node.Condition, ctx)
			if err != nil {
				return nil, sigNone, err
			}
			if !cond.Truthy() {
				return value.Void{}, sigNone, nil
			}
		}
		v, sig, err := in.evalBlockStatement(node.Body, ctx)
		if err != nil {
			return nil, sigNone, err
		}
		if sig == sigBreak {
			return value.Void{}, sigNone, nil
		}
		if sig == sigReturn {
			return v, sigReturn, nil
		}
		if node.Post != nil {
			if _, _, err := in.evalStatement(node.Post, ctx); err != nil {
				return nil, sigNone, err
			}
		}
	}
}

func (in *Interp) evalForeachStatement(node *ast.ForeachStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	iterable, err := in.evalExpr(node.Iterable, ctx)
	if err != nil {
		return nil, sigNone, err
	}

	var elems []value.Value
	switch v := iterable.(type) {
	case *value.List:
		elems = v.Elements
	case *value.Str:
		for _, r := range v.Value() {
			elems = append(elems, &value.Char{V: string(r)})
		}
	default:
		return nil, sigNone, errs.New(errs.Types, node.Tok(), "foreach requires a List or Str, got %s", iterable.Kind())
	}

	for _, el := range elems {
		ctx.PushScope()
		if regErr := ctx.RegisterVariable(node.Tok(), &value.Binding{ID: node.Iterator.Value, Value: bindValue(el), Mutable: true}); regErr != nil {
			ctx.PopScope()
			return nil, sigNone, regErr
		}
		v, sig, err := in.evalStatementList(node.Body.Statements, ctx)
		ctx.PopScope()
		if err != nil {
			return nil, sigNone, err
		}
		if sig == sigBreak {
			return value.Void{}, sigNone, nil
		}
		if sig == sigReturn {
			return v, sigReturn, nil
		}
	}
	return value.Void{}, sigNone, nil
}

func (in *Interp) evalReturnStatement(node *ast.ReturnStatement, ctx *value.Context) (value.Value, signal, *errs.Error) {
	if node.ReturnValue == nil {
		return value.Void{}, sigReturn, nil
	}
	v, err := in.evalExpr(node.ReturnValue, ctx)
	if err != nil {
		return nil, sigNone, err
	}
	return v, sigReturn, nil
}

func typeNameCompatible(typeName string, v value.Value) bool {
	switch typeName {
	case "int":
		return v.Kind() == value.IntKind
	case "bool":
		return v.Kind() == value.BoolKind
	case "char":
		return v.Kind() == value.CharKind
	case "str":
		return v.Kind() == value.StrKind
	case "list":
		return v.Kind() == value.ListKind
	case "option":
		return v.Kind() == value.OptionKind
	default:
		// Unknown/class type annotations are not checked against the
		// compatibility map; class instances carry their own ClassID.
		return true
	}
}

func hasAttr(attrs []string, name string) bool {
	for _, a := range attrs {
		if a == name {
			return true
		}
	}
	return false
}

// bindValue applies the copy-on-bind policy: primitive kinds are cloned
// at the binding site, while Str/List/Closure/ClassInstance/Module keep
// the same shared handle.
func bindValue(v value.Value) value.Value {
	switch v.Kind() {
	case value.IntKind, value.BoolKind, value.CharKind, value.OptionKind, value.FunctionRefKind, value.VoidKind:
		return v.Copy()
	default:
		return v
	}
}

func (in *Interp) evalLetStatement(node *ast.LetStatement, ctx *value.Context) (value.Value, *errs.Error) {
	v, err := in.evalExpr(node.Value, ctx)
	if err != nil {
		return nil, err
	}
	if node.TypeName != "" && !typeNameCompatible(node.TypeName, v) {
		return nil, errs.New(errs.Types, node.Tok(), "value of kind %s is not compatible with declared type %q", v.Kind(), node.TypeName)
	}

	b := &value.Binding{
		ID:      node.Name.Value,
		Value:   bindValue(v),
		Mutable: hasAttr(node.Attrs, "mut") || hasAttr(node.Attrs, "ref"),
		Public:  hasAttr(node.Attrs, "pub"),
		Attrs:   node.Attrs,
	}
	if err := ctx.RegisterVariable(node.Tok(), b); err != nil {
		return nil, err
	}
	return value.Void{}, nil
}

func compoundOp(op string) (string, bool) {
	if op == "=" {
		return "", false
	}
	return strings.TrimSuffix(op, "="), true
}

func (in *Interp) evalMutStatement(node *ast.MutStatement, ctx *value.Context) *errs.Error {
	switch target := node.Target.(type) {
	case *ast.Identifier:
		b, err := ctx.GetRegisteredVariable(node.Tok(), target.Value)
		if err != nil {
			return err
		}
		if !b.Mutable {
			return errs.New(errs.Types, node.Tok(), "cannot mutate immutable binding %q", target.Value)
		}
		return in.applyMutation(node, b.Value, ctx)
	case *ast.IndexExpression:
		recv, err := in.evalExpr(target.Left, ctx)
		if err != nil {
			return err
		}
		idx, err := in.evalExpr(target.Index, ctx)
		if err != nil {
			return err
		}
		ix, ok := recv.(value.Indexable)
		if !ok {
			return errs.New(errs.Types, node.Tok(), "%s does not support indexing", recv.Kind())
		}
		handle, idxErr := ix.Nth(node.Tok(), idx)
		if idxErr != nil {
			return idxErr
		}
		return in.applyMutation(node, handle, ctx)
	case *ast.MemberExpression:
		recv, err := in.evalExpr(target.Left, ctx)
		if err != nil {
			return err
		}
		ci, ok := recv.(*value.ClassInstance)
		if !ok {
			return errs.New(errs.Types, node.Tok(), "%s has no mutable field %q", recv.Kind(), target.Member)
		}
		b, ok := ci.Fields.Get(target.Member)
		if !ok {
			return errs.New(errs.Undeclared, node.Tok(), "%s has no field %q", ci.ClassID, target.Member)
		}
		return in.applyMutation(node, b.Value, ctx)
	default:
		return errs.New(errs.Types, node.Tok(), "left-hand side of assignment is not assignable")
	}
}

func (in *Interp) applyMutation(node *ast.MutStatement, handle value.Value, ctx *value.Context) *errs.Error {
	rhs, err := in.evalExpr(node.Value, ctx)
	if err != nil {
		return err
	}
	if op, isCompound := compoundOp(node.Operator); isCompound {
		bo, ok := handle.(value.Binoper)
		if !ok {
			return errs.New(errs.Types, node.Tok(), "%s does not support operator %q", handle.Kind(), op)
		}
		computed, binErr := bo.Binop(op, node.Tok(), rhs)
		if binErr != nil {
			return binErr
		}
		rhs = computed
	}
	mutator, ok := handle.(value.Mutator)
	if !ok {
		return errs.New(errs.Types, node.Tok(), "%s is not mutable", handle.Kind())
	}
	return mutator.Mutate(node.Tok(), rhs)
}

func (in *Interp) evalDefStatement(node *ast.DefStatement, ctx *value.Context) *errs.Error {
	fo := value.NewFunctionObject(node.Name.Value, node.Parameters, node.Body, node.World, node.Attrs, hasAttr(node.Attrs, "pub"))
	return ctx.RegisterFunction(node.Tok(), fo)
}

func (in *Interp) evalClassStatement(node *ast.ClassStatement, ctx *value.Context) *errs.Error {
	cd := &value.ClassDef{
		Name:       node.Name.Value,
		Parameters: node.Parameters,
		Body:       node.Body,
		Attrs:      node.Attrs,
		Public:     hasAttr(node.Attrs, "pub"),
	}
	return ctx.RegisterClass(node.Tok(), cd)
}

func (in *Interp) evalImportStatement(node *ast.ImportStatement, ctx *value.Context) *errs.Error {
	if in.Load == nil {
		return errs.New(errs.Fatal, node.Tok(), "no loader configured for import %q", node.Path)
	}
	program, key, loadErr := in.Load(node.Path)
	if loadErr != nil {
		return loadErr
	}

	moduleStmts := 0
	for _, s := range program.Statements {
		if _, ok := s.(*ast.ModuleStatement); ok {
			moduleStmts++
		}
	}
	if moduleStmts != 1 {
		return errs.New(errs.Fatal, node.Tok(), "imported file %q must declare exactly one module statement, found %d", node.Path, moduleStmts)
	}

	if in.importing == nil {
		in.importing = make(map[string]uuid.UUID)
	}
	if id, busy := in.importing[key]; busy {
		return errs.New(errs.Fatal, node.Tok(), "import cycle: %q is already being evaluated (context %s)", node.Path, id)
	}

	child := value.NewContext()
	in.importing[key] = child.ID
	err := in.Run(program, child)
	delete(in.importing, key)
	if err != nil {
		return err
	}
	if node.Alias != "" {
		child.ModuleName = node.Alias
	}
	ctx.PushChildContext(child)
	return nil
}
