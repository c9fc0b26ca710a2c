package interp

import (
	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/intrinsics"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

func (in *Interp) evalExpr(expr ast.Expression, ctx *value.Context) (value.Value, *errs.Error) {
	switch node := expr.(type) {
	case *ast.IntegerLiteral:
		return &value.Int{V: node.Value}, nil
	case *ast.BooleanLiteral:
		return &value.Bool{V: node.Value}, nil
	case *ast.CharLiteral:
		return &value.Char{V: node.Value}, nil
	case *ast.StringLiteral:
		return value.NewStr(node.Value), nil
	case *ast.NoneLiteral:
		return &value.Option{Has: false}, nil
	case *ast.SomeExpression:
		v, err := in.evalExpr(node.Value, ctx)
		if err != nil {
			return nil, err
		}
		return &value.Option{Has: true, Inner: v}, nil
	case *ast.ListLiteral:
		elems := make([]value.Value, len(node.Elements))
		for i, e := range node.Elements {
			v, err := in.evalExpr(e, ctx)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &value.List{Elements: elems}, nil
	case *ast.ClosureLiteral:
		return &value.Closure{Name: node.Name, Parameters: node.Parameters, Body: node.Body, Env: ctx, World: node.World}, nil
	case *ast.Identifier:
		return in.evalIdentifier(node, ctx)
	case *ast.PrefixExpression:
		return in.evalPrefixExpression(node, ctx)
	case *ast.InfixExpression:
		return in.evalInfixExpression(node, ctx)
	case *ast.IndexExpression:
		return in.evalIndexExpression(node, ctx)
	case *ast.MemberExpression:
		return in.evalMemberExpression(node, ctx)
	case *ast.ModuleAccessExpression:
		return in.evalModuleAccessExpression(node, ctx)
	case *ast.CallExpression:
		return in.evalCallExpression(node, ctx)
	default:
		return nil, errs.New(errs.Internal, expr.Tok(), "unhandled expression node %T", expr)
	}
}

// evalIdentifier resolves a bare name as a variable first; if undeclared,
// it falls back to the function registry so a named function is usable
// as a first-class value without a separate syntax.
func (in *Interp) evalIdentifier(node *ast.Identifier, ctx *value.Context) (value.Value, *errs.Error) {
	b, err := ctx.GetRegisteredVariable(node.Tok(), node.Value)
	if err == nil {
		return b.Value, nil
	}
	if fo, ok := ctx.GetRegisteredFunction(node.Value); ok {
		return &value.FunctionRef{Fn: fo, Home: ctx}, nil
	}
	return nil, err
}

func (in *Interp) evalPrefixExpression(node *ast.PrefixExpression, ctx *value.Context) (value.Value, *errs.Error) {
	right, err := in.evalExpr(node.Right, ctx)
	if err != nil {
		return nil, err
	}
	switch node.Operator {
	case "!":
		return &value.Bool{V: !right.Truthy()}, nil
	case "-":
		i, ok := right.(*value.Int)
		if !ok {
			return nil, errs.New(errs.Types, node.Tok(), "unary '-' requires an Int, got %s", right.Kind())
		}
		return &value.Int{V: -i.V}, nil
	case "~":
		i, ok := right.(*value.Int)
		if !ok {
			return nil, errs.New(errs.Types, node.Tok(), "unary '~' requires an Int, got %s", right.Kind())
		}
		return &value.Int{V: ^i.V}, nil
	default:
		return nil, errs.New(errs.Syntax, node.Tok(), "unsupported prefix operator %q", node.Operator)
	}
}

func (in *Interp) evalInfixExpression(node *ast.InfixExpression, ctx *value.Context) (value.Value, *errs.Error) {
	left, err := in.evalExpr(node.Left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := in.evalExpr(node.Right, ctx)
	if err != nil {
		return nil, err
	}

	switch node.Operator {
	case "==":
		return &value.Bool{V: left.Equals(right)}, nil
	case "!=":
		return &value.Bool{V: !left.Equals(right)}, nil
	}

	bo, ok := left.(value.Binoper)
	if !ok {
		return nil, errs.New(errs.Types, node.Tok(), "%s does not support operator %q", left.Kind(), node.Operator)
	}
	return bo.Binop(node.Operator, node.Tok(), right)
}

func (in *Interp) evalIndexExpression(node *ast.IndexExpression, ctx *value.Context) (value.Value, *errs.Error) {
	left, err := in.evalExpr(node.Left, ctx)
	if err != nil {
		return nil, err
	}
	idx, err := in.evalExpr(node.Index, ctx)
	if err != nil {
		return nil, err
	}
	ix, ok := left.(value.Indexable)
	if !ok {
		return nil, errs.New(errs.Types, node.Tok(), "%s does not support indexing", left.Kind())
	}
	return ix.Nth(node.Tok(), idx)
}

// evalMemberExpression dispatches "recv.member" and "recv.member(args)"
// by the receiver's runtime kind: Str/List route through the member
// intrinsic tables, ClassInstance routes through its field
// scope.
func (in *Interp) evalMemberExpression(node *ast.MemberExpression, ctx *value.Context) (value.Value, *errs.Error) {
	left, err := in.evalExpr(node.Left, ctx)
	if err != nil {
		return nil, err
	}
	args, err := in.evalArgs(node.Arguments, ctx)
	if err != nil {
		return nil, err
	}

	switch recv := left.(type) {
	case *value.Str:
		if !node.IsCall {
			return nil, errs.New(errs.Types, node.Tok(), "Str has no field %q", node.Member)
		}
		handler, ok := intrinsics.LookupStrMember(node.Member)
		if !ok {
			return nil, errs.New(errs.Undeclared, node.Tok(), "Str has no member intrinsic %q", node.Member)
		}
		return handler(node.Tok(), recv, args, in.call)
	case *value.List:
		if !node.IsCall {
			return nil, errs.New(errs.Types, node.Tok(), "List has no field %q", node.Member)
		}
		handler, ok := intrinsics.LookupListMember(node.Member)
		if !ok {
			return nil, errs.New(errs.Undeclared, node.Tok(), "List has no member intrinsic %q", node.Member)
		}
		return handler(node.Tok(), recv, args, in.call)
	case *value.ClassInstance:
		return in.evalClassMember(node, recv, args, ctx)
	default:
		return nil, errs.New(errs.Types, node.Tok(), "%s does not support member access", left.Kind())
	}
}

func (in *Interp) evalClassMember(node *ast.MemberExpression, ci *value.ClassInstance, args []value.Value, ctx *value.Context) (value.Value, *errs.Error) {
	b, ok := ci.Fields.Get(node.Member)
	if !ok {
		return nil, errs.New(errs.Undeclared, node.Tok(), "%s has no field %q", ci.ClassID, node.Member)
	}
	if !node.IsCall {
		return b.Value, nil
	}
	cl, ok := b.Value.(*value.Closure)
	if !ok {
		return nil, errs.New(errs.Types, node.Tok(), "%s.%s is not callable", ci.ClassID, node.Member)
	}
	return in.callMethod(node.Tok(), ci, cl, args, ctx)
}

// evalModuleAccessExpression resolves "Mod::name" against an imported
// child context, enforcing @pub visibility across the module boundary
//.
func (in *Interp) evalModuleAccessExpression(node *ast.ModuleAccessExpression, ctx *value.Context) (value.Value, *errs.Error) {
	ident, ok := node.Module.(*ast.Identifier)
	if !ok {
		return nil, errs.New(errs.Syntax, node.Tok(), "module access requires a module name on the left of '::'")
	}
	mod, err := ctx.GetRegisteredModule(node.Tok(), ident.Value)
	if err != nil {
		return nil, err
	}
	return resolveModuleMember(node.Tok(), mod, node.Name)
}

func resolveModuleMember(tok token.Token, mod *value.Module, name string) (value.Value, *errs.Error) {
	if fo, ok := mod.Child.GetRegisteredFunction(name); ok {
		if !fo.Public {
			return nil, errs.New(errs.Undeclared, tok, "%s::%s is not exported", mod.Name, name)
		}
		return &value.FunctionRef{Fn: fo, Home: mod.Child}, nil
	}
	if b, ok := mod.Child.GlobalVars.Get(name); ok {
		if !b.Public {
			return nil, errs.New(errs.Undeclared, tok, "%s::%s is not exported", mod.Name, name)
		}
		return b.Value, nil
	}
	return nil, errs.New(errs.Undeclared, tok, "%s::%s is not declared", mod.Name, name)
}
