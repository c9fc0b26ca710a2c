package interp

import (
	"strings"
	"testing"

	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/intrinsics"
	"github.com/malloc-nbytes/earl/lexer"
	"github.com/malloc-nbytes/earl/parser"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := parser.New(lexer.New(src))
	program := p.ParseProgram()
	if perrs := p.Errors(); len(perrs) > 0 {
		t.Fatalf("parse error: %v", perrs[0])
	}
	return program
}

// run parses and evaluates src against a fresh context, returning
// whatever print emitted and the evaluation error, if any. modules maps
// import paths to EARL source for the import tests.
func run(t *testing.T, src string, modules map[string]string) (string, *errs.Error) {
	t.Helper()

	var captured strings.Builder
	prev := intrinsics.Out
	intrinsics.Out = &captured
	defer func() { intrinsics.Out = prev }()

	in := New(func(path string) (*ast.Program, string, *errs.Error) {
		msrc, ok := modules[path]
		if !ok {
			return nil, "", errs.New(errs.Runtime, token.Token{}, "cannot resolve import %q", path)
		}
		return parse(t, msrc), path, nil
	})
	err := in.Run(parse(t, src), value.NewContext())
	return captured.String(), err
}

func expectOutput(t *testing.T, src, want string) {
	t.Helper()
	got, err := run(t, src, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func expectError(t *testing.T, src string, kind errs.Kind) *errs.Error {
	t.Helper()
	_, err := run(t, src, nil)
	if err == nil {
		t.Fatalf("expected %s error, evaluation succeeded", kind)
	}
	if err.Kind != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
	return err
}

func TestArithmetic(t *testing.T) {
	expectOutput(t, `let x = 1 + 2; print(x);`, "3\n")
}

func TestStringElementAssignment(t *testing.T) {
	expectOutput(t, `let s = "hello"; s[0] = "H"; print(s);`, "Hello\n")
}

func TestRecursiveFactorial(t *testing.T) {
	src := `def f(n) { if n <= 1 { return 1; } return n * f(n-1); } print(f(5));`
	expectOutput(t, src, "120\n")
}

func TestListReverseInPlace(t *testing.T) {
	expectOutput(t, `let xs = [1,2,3]; xs.rev(); print(xs);`, "[3, 2, 1]\n")
}

func TestRedeclaredInSameScope(t *testing.T) {
	expectError(t, `let x = 1; let x = 2;`, errs.Redeclared)
}

func TestIndexOutOfRange(t *testing.T) {
	err := expectError(t, `let xs = [1,2]; print(xs[5]);`, errs.Runtime)
	if !strings.Contains(err.Message, "out of range") {
		t.Errorf("message should mention out of range: %q", err.Message)
	}
}

func TestAssertFailure(t *testing.T) {
	err := expectError(t, `assert(1 == 2);`, errs.Runtime)
	if !strings.Contains(err.Message, "assertion failure") {
		t.Errorf("message should mention assertion failure: %q", err.Message)
	}
}

func TestShadowingAcrossBlocks(t *testing.T) {
	src := `let x = 1; { let x = 2; print(x); } print(x);`
	expectOutput(t, src, "2\n1\n")
}

func TestMutRequiresMutableBinding(t *testing.T) {
	expectError(t, `let x = 1; x = 2;`, errs.Types)
	expectOutput(t, `@mut let x = 1; x = 2; print(x);`, "2\n")
}

func TestCompoundAssignment(t *testing.T) {
	src := `@mut let x = 10;
x += 5;
x -= 3;
x *= 2;
x /= 4;
x %= 4;
print(x);`
	expectOutput(t, src, "2\n")
}

func TestIndexedCompoundAssignment(t *testing.T) {
	expectOutput(t, `let xs = [1,2,3]; xs[1] += 10; print(xs);`, "[1, 12, 3]\n")
}

func TestListSharingThroughAliases(t *testing.T) {
	src := `let xs = [1,2]; let ys = xs; ys.append(3); print(xs);`
	expectOutput(t, src, "[1, 2, 3]\n")
}

func TestPrimitiveCopyOnBind(t *testing.T) {
	src := `@mut let x = 1; @mut let y = x; y = 2; print(x);`
	expectOutput(t, src, "1\n")
}

func TestWhileWithBreakContinue(t *testing.T) {
	src := `@mut let i = 0;
while true {
    i += 1;
    if i == 2 { continue; }
    if i > 4 { break; }
    print(i);
}`
	expectOutput(t, src, "1\n3\n4\n")
}

func TestReturnFromInsideLoop(t *testing.T) {
	src := `def firstEven(xs) {
    foreach x in xs {
        if x % 2 == 0 { return x; }
    }
    return None;
}
print(firstEven([1,3,4,5]));
print(firstEven([1,3]));`
	expectOutput(t, src, "4\nNone\n")
}

func TestForeachOverList(t *testing.T) {
	expectOutput(t, `foreach x in [1,2,3] { print(x); }`, "1\n2\n3\n")
}

func TestForeachOverStr(t *testing.T) {
	expectOutput(t, `foreach c in "ab" { print(c); }`, "a\nb\n")
}

func TestForLoop(t *testing.T) {
	src := `for (@mut let i = 0; i < 3; i += 1) { print(i); }`
	expectOutput(t, src, "0\n1\n2\n")
}

func TestIfElifElse(t *testing.T) {
	src := `def describe(n) {
    if n < 0 { return "neg"; }
    elif n == 0 { return "zero"; }
    else { return "pos"; }
}
print(describe(0 - 5));
print(describe(0));
print(describe(5));`
	expectOutput(t, src, "neg\nzero\npos\n")
}

func TestNonWorldFunctionCannotReadGlobals(t *testing.T) {
	expectError(t, `let g = 1; def f() { return g; } f();`, errs.Undeclared)
}

func TestWorldFunctionReadsAndWritesGlobals(t *testing.T) {
	src := `@mut let g = 1;
@world def bump() { g += 1; }
bump();
bump();
print(g);`
	expectOutput(t, src, "3\n")
}

func TestClosureAsValue(t *testing.T) {
	src := `let add = fn(a, b) { return a + b; };
print(add(2, 3));`
	expectOutput(t, src, "5\n")
}

func TestWorldClosureObservesMutation(t *testing.T) {
	src := `let xs = [1];
@world let peek = fn() { return xs[0]; };
xs[0] = 42;
print(peek());`
	expectOutput(t, src, "42\n")
}

func TestFunctionAsFirstClassArgument(t *testing.T) {
	src := `def double(n) { return n * 2; }
let xs = [1,2,3];
xs.foreach(fn(x) { print(double(x)); });`
	expectOutput(t, src, "2\n4\n6\n")
}

func TestRecursionLocalsAreIsolated(t *testing.T) {
	src := `def fib(n) {
    if n < 2 { return n; }
    let a = fib(n - 1);
    let b = fib(n - 2);
    return a + b;
}
print(fib(10));`
	expectOutput(t, src, "55\n")
}

func TestClassInstantiationAndFieldAccess(t *testing.T) {
	src := `class Point [x, y] {
    let px = x;
    let py = y;
}
let p = Point(3, 4);
print(p.px);
print(p.py);`
	expectOutput(t, src, "3\n4\n")
}

func TestClassMethodSeesFields(t *testing.T) {
	src := `class Counter [start] {
    @mut let n = start;
    let get = fn() { return n; };
    let inc = fn() { n += 1; };
}
let c = Counter(10);
c.inc();
c.inc();
print(c.get());`
	expectOutput(t, src, "12\n")
}

func TestClassInstancesAreIndependent(t *testing.T) {
	src := `class Box [v] {
    @mut let item = v;
}
let a = Box(1);
let b = Box(2);
a.item = 9;
print(a.item);
print(b.item);`
	expectOutput(t, src, "9\n2\n")
}

func TestTmpScopeDrainedAfterInstantiation(t *testing.T) {
	// The constructor parameter name must not leak into the enclosing
	// scope after instantiation.
	src := `class Box [v] { let item = v; }
let b = Box(1);
print(v);`
	expectError(t, src, errs.Undeclared)
}

func TestImportAndModuleAccess(t *testing.T) {
	modules := map[string]string{
		"math.earl": `module Math;
@pub def square(n) { return n * n; }
@pub let answer = 42;
let hidden = 7;`,
	}
	src := `import "math.earl";
print(Math::square(6));
print(Math::answer);`
	var captured strings.Builder
	prev := intrinsics.Out
	intrinsics.Out = &captured
	defer func() { intrinsics.Out = prev }()

	in := New(func(path string) (*ast.Program, string, *errs.Error) {
		return parse(t, modules[path]), path, nil
	})
	if err := in.Run(parse(t, src), value.NewContext()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := captured.String(), "36\n42\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestModuleAccessRespectsPub(t *testing.T) {
	modules := map[string]string{
		"math.earl": `module Math;
let hidden = 7;`,
	}
	src := `import "math.earl";
print(Math::hidden);`
	_, err := run(t, src, modules)
	if err == nil || err.Kind != errs.Undeclared {
		t.Fatalf("expected Undeclared for a non-exported member, got %v", err)
	}
}

func TestImportCycleIsFatal(t *testing.T) {
	modules := map[string]string{
		"a.earl": `module A;
import "b.earl";`,
		"b.earl": `module B;
import "a.earl";`,
	}
	_, err := run(t, `import "a.earl";`, modules)
	if err == nil || err.Kind != errs.Fatal {
		t.Fatalf("expected Fatal for a two-file import cycle, got %v", err)
	}
	if !strings.Contains(err.Message, "cycle") {
		t.Errorf("message should mention the cycle: %q", err.Message)
	}
}

func TestImportSelfCycleIsFatal(t *testing.T) {
	modules := map[string]string{
		"a.earl": `module A;
import "a.earl";`,
	}
	_, err := run(t, `import "a.earl";`, modules)
	if err == nil || err.Kind != errs.Fatal {
		t.Fatalf("expected Fatal for a self-import, got %v", err)
	}
}

func TestDiamondImportIsNotACycle(t *testing.T) {
	// base is imported twice through two sibling modules; once the first
	// import has finished it must be importable again.
	modules := map[string]string{
		"base.earl": `module Base;
@pub let one = 1;`,
		"left.earl": `module Left;
import "base.earl";
@pub def l() { return Base::one; }`,
		"right.earl": `module Right;
import "base.earl";
@pub def r() { return Base::one; }`,
	}
	src := `import "left.earl";
import "right.earl";
print(Left::l() + Right::r());`
	got, err := run(t, src, modules)
	if err != nil {
		t.Fatalf("diamond import must not be flagged as a cycle: %v", err)
	}
	if got != "2\n" {
		t.Errorf("output = %q, want %q", got, "2\n")
	}
}

func TestImportRequiresModuleStatement(t *testing.T) {
	modules := map[string]string{
		"plain.earl": `let x = 1;`,
	}
	_, err := run(t, `import "plain.earl";`, modules)
	if err == nil || err.Kind != errs.Fatal {
		t.Fatalf("expected Fatal for an import without a module statement, got %v", err)
	}
}

func TestOptionValues(t *testing.T) {
	src := `let a = None;
let b = Some(3);
print(a);
print(b);
print(a == None);
print(b == Some(3));`
	expectOutput(t, src, "None\nSome(3)\ntrue\ntrue\n")
}

func TestIntNoneComparison(t *testing.T) {
	src := `print(0 == None); print(0 != None);`
	expectOutput(t, src, "false\ntrue\n")
}

func TestDivisionByZero(t *testing.T) {
	expectError(t, `print(1 / 0);`, errs.Runtime)
}

func TestMixedTypeBinop(t *testing.T) {
	expectError(t, `print(1 + "a");`, errs.Types)
}

func TestLetTypeAnnotationMismatch(t *testing.T) {
	expectError(t, `let x: int = "hi";`, errs.Types)
	expectOutput(t, `let x: int = 1; print(x);`, "1\n")
}

func TestStringConcat(t *testing.T) {
	expectOutput(t, `let s = "foo" + "bar"; print(s);`, "foobar\n")
}

func TestStrMemberIntrinsics(t *testing.T) {
	src := `let s = "a,b,c";
print(s.split(","));
print(s.contains("b"));
let u = "  pad  ";
u.trim();
print(u);`
	expectOutput(t, src, "[a, b, c]\ntrue\npad\n")
}

func TestStrAppendChar(t *testing.T) {
	src := `let s = "ab"; s.append('c'); print(s);`
	expectOutput(t, src, "abc\n")
}

func TestTopLevelReturnEndsScript(t *testing.T) {
	expectOutput(t, `print(1); return; print(2);`, "1\n")
}

func TestUnimplementedIntrinsic(t *testing.T) {
	expectError(t, `unimplemented();`, errs.Todo)
}

func TestErrorCarriesPosition(t *testing.T) {
	_, err := run(t, "let x = 1;\nprint(y);", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Tok.Line != 2 {
		t.Errorf("error should point at line 2, got line %d", err.Tok.Line)
	}
}
