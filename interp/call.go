package interp

import (
	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/intrinsics"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

// evalCallExpression resolves and applies a call. A bare identifier
// callee resolves in a fixed order: intrinsic registry,
// class registry (constructor), function registry, then variable
// registry (first-class closure/FunctionRef). Any other callee
// expression (member/module-access/parenthesized closure, ...) is
// evaluated to a Value and dispatched by kind.
func (in *Interp) evalCallExpression(node *ast.CallExpression, ctx *value.Context) (value.Value, *errs.Error) {
	args, err := in.evalArgs(node.Arguments, ctx)
	if err != nil {
		return nil, err
	}

	switch fnExpr := node.Function.(type) {
	case *ast.Identifier:
		if handler, ok := intrinsics.LookupFree(fnExpr.Value); ok {
			return handler(node.Tok(), args, ctx, in.call)
		}
		if cls, ok := ctx.GetRegisteredClass(fnExpr.Value); ok {
			return in.instantiate(node.Tok(), cls, args, ctx)
		}
		if fo, ok := ctx.GetRegisteredFunction(fnExpr.Value); ok {
			return in.callFunction(node.Tok(), fo, args, ctx)
		}
	case *ast.ModuleAccessExpression:
		if ident, ok := fnExpr.Module.(*ast.Identifier); ok {
			if mod, merr := ctx.GetRegisteredModule(fnExpr.Tok(), ident.Value); merr == nil {
				if cls, ok := mod.Child.GetRegisteredClass(fnExpr.Name); ok {
					if !cls.Public {
						return nil, errs.New(errs.Undeclared, fnExpr.Tok(), "%s::%s is not exported", ident.Value, fnExpr.Name)
					}
					return in.instantiate(fnExpr.Tok(), cls, args, mod.Child)
				}
			}
		}
	}

	fn, err := in.evalExpr(node.Function, ctx)
	if err != nil {
		return nil, err
	}
	return in.call(node.Tok(), fn, args)
}

func (in *Interp) evalArgs(exprs []ast.Expression, ctx *value.Context) ([]value.Value, *errs.Error) {
	args := make([]value.Value, len(exprs))
	for i, e := range exprs {
		v, err := in.evalExpr(e, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// call is the intrinsics.Caller implementation: invoke any first-class
// Value as a function. Supplied to intrinsics handlers (str.filter,
// list.foreach, ...) so they can run user predicates without importing
// this package.
func (in *Interp) call(tok token.Token, fn value.Value, args []value.Value) (value.Value, *errs.Error) {
	switch f := fn.(type) {
	case *value.Closure:
		return in.callClosure(tok, f, args)
	case *value.FunctionRef:
		return in.callFunction(tok, f.Fn, args, f.Home)
	default:
		return nil, errs.New(errs.Types, tok, "%s is not callable", fn.Kind())
	}
}

func (in *Interp) callClosure(tok token.Token, cl *value.Closure, args []value.Value) (value.Value, *errs.Error) {
	return in.invoke(tok, cl.AsFunctionObject(), args, cl.Env)
}

func (in *Interp) callFunction(tok token.Token, fo *value.FunctionObject, args []value.Value, ctx *value.Context) (value.Value, *errs.Error) {
	return in.invoke(tok, fo, args, ctx)
}

// invoke runs fo's body against ctx: push an activation, bind parameters
// into a fresh frame, evaluate the body, then unwind symmetrically even
// on error.
func (in *Interp) invoke(tok token.Token, fo *value.FunctionObject, args []value.Value, ctx *value.Context) (value.Value, *errs.Error) {
	if len(args) != len(fo.Parameters) {
		return nil, errs.New(errs.Types, tok, "%s expects %d argument(s), got %d", fo.Name, len(fo.Parameters), len(args))
	}

	ctx.SetFunction(fo)
	fo.Local().Push()
	for i, p := range fo.Parameters {
		if err := fo.Local().Add(tok, p.Value, &value.Binding{ID: p.Value, Value: bindValue(args[i]), Mutable: true}); err != nil {
			fo.Local().Pop()
			ctx.UnsetFunction()
			return nil, err
		}
	}

	result, sig, err := in.evalStatementList(fo.Body.Statements, ctx)
	fo.Local().Pop()
	ctx.UnsetFunction()
	if err != nil {
		return nil, err
	}
	if sig == sigReturn {
		return result, nil
	}
	return value.Void{}, nil
}

// instantiate builds a ClassInstance by running the class body against a
// synthetic activation whose local scope IS the new instance's field
// scope. Constructor arguments are
// exposed via the tmp scope during body evaluation so field initializers
// can reference them by parameter name; the tmp scope is cleared on
// every exit path.
//
// A "let name = fn(...) { ... };" inside the class body registers into
// this same field scope, same as any other let — that's how a method
// ends up reachable as ci.Fields.Get("name"). The method's closure body
// doesn't need to capture the field scope itself: callMethod rebuilds a
// synthetic activation pinned to ci.Fields each time the method is
// actually called, which is what gives "self.field" resolution without
// a dedicated self keyword.
func (in *Interp) instantiate(tok token.Token, cls *value.ClassDef, args []value.Value, ctx *value.Context) (value.Value, *errs.Error) {
	if len(args) != len(cls.Parameters) {
		return nil, errs.New(errs.Types, tok, "%s expects %d argument(s), got %d", cls.Name, len(cls.Parameters), len(args))
	}

	for i, p := range cls.Parameters {
		if err := ctx.AddToTmpScope(tok, &value.Binding{ID: p.Value, Value: bindValue(args[i]), Mutable: false}); err != nil {
			ctx.ClearTmpScope()
			return nil, err
		}
	}

	fields := value.NewScope()
	synthetic := value.NewFunctionObjectWithLocal(cls.Name, fields)
	ctx.SetFunction(synthetic)
	_, _, err := in.evalStatementList(cls.Body.Statements, ctx)
	ctx.UnsetFunction()
	ctx.ClearTmpScope()
	if err != nil {
		return nil, err
	}

	return &value.ClassInstance{ClassID: cls.Name, Fields: fields}, nil
}

// callMethod invokes a method closure stored on a ClassInstance's field
// scope. It pushes a fresh parameter frame directly onto ci.Fields
// (rather than a disconnected scope) so the body's plain identifier
// lookups reach both the bound parameters and the instance's other
// fields through the normal local-scope resolution path.
func (in *Interp) callMethod(tok token.Token, ci *value.ClassInstance, cl *value.Closure, args []value.Value, ctx *value.Context) (value.Value, *errs.Error) {
	if len(args) != len(cl.Parameters) {
		return nil, errs.New(errs.Types, tok, "%s.%s expects %d argument(s), got %d", ci.ClassID, cl.Name, len(cl.Parameters), len(args))
	}

	method := value.NewFunctionObjectWithLocal(ci.ClassID+"."+cl.Name, ci.Fields)
	method.World = cl.World
	ctx.SetFunction(method)
	ci.Fields.Push()
	for i, p := range cl.Parameters {
		if err := ci.Fields.Add(tok, p.Value, &value.Binding{ID: p.Value, Value: bindValue(args[i]), Mutable: true}); err != nil {
			ci.Fields.Pop()
			ctx.UnsetFunction()
			return nil, err
		}
	}

	result, sig, err := in.evalStatementList(cl.Body.Statements, ctx)
	ci.Fields.Pop()
	ctx.UnsetFunction()
	if err != nil {
		return nil, err
	}
	if sig == sigReturn {
		return result, nil
	}
	return value.Void{}, nil
}
