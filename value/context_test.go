package value

import (
	"testing"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/token"
)

func TestContextRegisterGetSameBinding(t *testing.T) {
	ctx := NewContext()
	b := &Binding{ID: "x", Value: &Int{V: 1}}

	if err := ctx.RegisterVariable(token.Token{}, b); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	got, err := ctx.GetRegisteredVariable(token.Token{}, "x")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != b {
		t.Error("GetRegisteredVariable returned a different binding than was registered")
	}
}

func TestContextStacktraceEmptyAtTopLevel(t *testing.T) {
	ctx := NewContext()
	if ctx.InFunction() {
		t.Error("fresh context reports being inside a function")
	}
	if len(ctx.Stacktrace) != 0 {
		t.Errorf("expected empty stacktrace, got %d entries", len(ctx.Stacktrace))
	}
}

func TestContextNonWorldFunctionCannotSeeGlobals(t *testing.T) {
	ctx := NewContext()
	if err := ctx.RegisterVariable(token.Token{}, &Binding{ID: "g", Value: &Int{V: 1}}); err != nil {
		t.Fatalf("register global failed: %v", err)
	}

	fn := NewFunctionObject("f", nil, nil, false, nil, false)
	ctx.SetFunction(fn)
	defer ctx.UnsetFunction()

	if _, err := ctx.GetRegisteredVariable(token.Token{}, "g"); err == nil {
		t.Error("non-world function resolved a global binding")
	} else if err.Kind != errs.Undeclared {
		t.Errorf("expected Undeclared, got %s", err.Kind)
	}
}

func TestContextWorldFunctionSeesGlobals(t *testing.T) {
	ctx := NewContext()
	if err := ctx.RegisterVariable(token.Token{}, &Binding{ID: "g", Value: &Int{V: 7}}); err != nil {
		t.Fatalf("register global failed: %v", err)
	}

	fn := NewFunctionObject("f", nil, nil, true, nil, false)
	ctx.SetFunction(fn)
	defer ctx.UnsetFunction()

	b, err := ctx.GetRegisteredVariable(token.Token{}, "g")
	if err != nil {
		t.Fatalf("world function failed to resolve a global: %v", err)
	}
	if b.Value.(*Int).V != 7 {
		t.Errorf("wrong binding resolved: %v", b.Value)
	}
}

func TestContextWorldGlobalLocalCollision(t *testing.T) {
	ctx := NewContext()
	if err := ctx.RegisterVariable(token.Token{}, &Binding{ID: "x", Value: &Int{V: 1}}); err != nil {
		t.Fatalf("register global failed: %v", err)
	}

	fn := NewFunctionObject("f", nil, nil, true, nil, false)
	ctx.SetFunction(fn)
	defer ctx.UnsetFunction()

	err := ctx.RegisterVariable(token.Token{}, &Binding{ID: "x", Value: &Int{V: 2}})
	if err == nil {
		t.Fatal("expected Redeclared for a world-function local colliding with a global")
	}
	if err.Kind != errs.Redeclared {
		t.Errorf("expected Redeclared, got %s", err.Kind)
	}
}

func TestContextTmpScopeWinsResolution(t *testing.T) {
	ctx := NewContext()
	if err := ctx.RegisterVariable(token.Token{}, &Binding{ID: "x", Value: &Int{V: 1}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := ctx.AddToTmpScope(token.Token{}, &Binding{ID: "x", Value: &Int{V: 99}}); err != nil {
		t.Fatalf("tmp add failed: %v", err)
	}

	b, err := ctx.GetRegisteredVariable(token.Token{}, "x")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if b.Value.(*Int).V != 99 {
		t.Error("tmp scope did not take precedence over globals")
	}

	ctx.ClearTmpScope()
	b, err = ctx.GetRegisteredVariable(token.Token{}, "x")
	if err != nil {
		t.Fatalf("lookup after clear failed: %v", err)
	}
	if b.Value.(*Int).V != 1 {
		t.Error("draining the tmp scope did not restore global resolution")
	}
}

func TestContextRecursionGetsFreshScopeStack(t *testing.T) {
	ctx := NewContext()
	fn := NewFunctionObject("f", nil, nil, false, nil, false)

	ctx.SetFunction(fn)
	if err := fn.Local().Add(token.Token{}, "n", &Binding{ID: "n", Value: &Int{V: 1}}); err != nil {
		t.Fatalf("outer add failed: %v", err)
	}

	// Re-entrant call: the inner activation must see an empty local stack.
	ctx.SetFunction(fn)
	if fn.Local().Contains("n") {
		t.Error("re-entrant call sees the outer call's locals")
	}
	if err := fn.Local().Add(token.Token{}, "n", &Binding{ID: "n", Value: &Int{V: 2}}); err != nil {
		t.Fatalf("inner add failed: %v", err)
	}

	ctx.UnsetFunction()
	b, ok := fn.Local().Get("n")
	if !ok {
		t.Fatal("outer locals lost after inner return")
	}
	if b.Value.(*Int).V != 1 {
		t.Errorf("expected outer n=1 restored, got %d", b.Value.(*Int).V)
	}

	ctx.UnsetFunction()
	if ctx.InFunction() {
		t.Error("stacktrace not empty after all returns")
	}
}

func TestContextPushPopScopeRestoresSizes(t *testing.T) {
	ctx := NewContext()
	vars, funcs := ctx.GlobalVars.Size(), ctx.GlobalFuncs.Size()

	ctx.PushScope()
	ctx.PopScope()

	if ctx.GlobalVars.Size() != vars || ctx.GlobalFuncs.Size() != funcs {
		t.Error("top-level push/pop did not restore both global scope sizes")
	}

	fn := NewFunctionObject("f", nil, nil, false, nil, false)
	ctx.SetFunction(fn)
	local := fn.Local().Size()
	ctx.PushScope()
	ctx.PopScope()
	ctx.UnsetFunction()

	if fn.Local().Size() != local {
		t.Error("in-function push/pop did not restore the local scope size")
	}
}

func TestContextModuleRegistry(t *testing.T) {
	parent := NewContext()
	child := NewContext()
	child.ModuleName = "Math"
	parent.PushChildContext(child)

	mod, err := parent.GetRegisteredModule(token.Token{}, "Math")
	if err != nil {
		t.Fatalf("module lookup failed: %v", err)
	}
	if mod.Child != child {
		t.Error("module value does not wrap the registered child context")
	}

	if _, err := parent.GetRegisteredModule(token.Token{}, "Nope"); err == nil {
		t.Error("expected an error for an unknown module name")
	}
}

func TestContextRegisterClassCollision(t *testing.T) {
	ctx := NewContext()
	if err := ctx.RegisterClass(token.Token{}, &ClassDef{Name: "Point"}); err != nil {
		t.Fatalf("first class registration failed: %v", err)
	}
	err := ctx.RegisterClass(token.Token{}, &ClassDef{Name: "Point"})
	if err == nil || err.Kind != errs.Redeclared {
		t.Errorf("expected Redeclared for a duplicate class, got %v", err)
	}
}
