package value

import (
	"testing"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/token"
)

// checkStrInvariant asserts the parallel-pair invariant: equal lengths,
// and a zero byte at i exactly when mChars[i] holds a promoted handle.
func checkStrInvariant(t *testing.T, s *Str) {
	t.Helper()
	if len(s.mValue) != len(s.mChars) {
		t.Fatalf("mValue/mChars length mismatch: %d vs %d", len(s.mValue), len(s.mChars))
	}
	for i := range s.mValue {
		if (s.mValue[i] == 0) != (s.mChars[i] != nil) {
			t.Fatalf("slot %d violates the promotion invariant", i)
		}
	}
}

func TestStrPromotionAliasesCharacter(t *testing.T) {
	s := NewStr("hello")
	checkStrInvariant(t, s)

	h, err := s.Nth(token.Token{}, &Int{V: 0})
	if err != nil {
		t.Fatalf("nth failed: %v", err)
	}
	checkStrInvariant(t, s)

	ch := h.(*Char)
	if ch.V != "h" {
		t.Fatalf("expected 'h', got %q", ch.V)
	}

	// Mutating the promoted handle mutates the string at that position
	// and no other.
	ch.V = "H"
	if got := s.Value(); got != "Hello" {
		t.Errorf("expected %q, got %q", "Hello", got)
	}
}

func TestStrNthBounds(t *testing.T) {
	s := NewStr("ab")
	_, err := s.Nth(token.Token{}, &Int{V: 5})
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err.Kind != errs.Runtime {
		t.Errorf("expected Runtime, got %s", err.Kind)
	}
}

func TestStrCopySharesPromotedChars(t *testing.T) {
	s := NewStr("abc")
	h, err := s.Nth(token.Token{}, &Int{V: 1})
	if err != nil {
		t.Fatalf("nth failed: %v", err)
	}

	cp := s.Copy().(*Str)
	checkStrInvariant(t, cp)

	// Promoted handles stay aliased between original and copy; plain
	// byte slots are independent.
	h.(*Char).V = "X"
	if cp.Value() != "aXc" {
		t.Errorf("promoted char not shared with copy: %q", cp.Value())
	}

	h2, err := cp.Nth(token.Token{}, &Int{V: 0})
	if err != nil {
		t.Fatalf("nth on copy failed: %v", err)
	}
	h2.(*Char).V = "Z"
	if s.Value() != "aXc" {
		t.Errorf("promoting a slot on the copy leaked into the original: %q", s.Value())
	}
}

func TestStrConcatProducesPlainSlots(t *testing.T) {
	a := NewStr("ab")
	if _, err := a.Nth(token.Token{}, &Int{V: 0}); err != nil {
		t.Fatalf("nth failed: %v", err)
	}
	b := NewStr("cd")

	sum, err := a.Binop("+", token.Token{}, b)
	if err != nil {
		t.Fatalf("concat failed: %v", err)
	}
	s := sum.(*Str)
	checkStrInvariant(t, s)
	for i := range s.mChars {
		if s.mChars[i] != nil {
			t.Errorf("slot %d of a concatenation is promoted; want all plain bytes", i)
		}
	}
	if s.Value() != "abcd" {
		t.Errorf("expected %q, got %q", "abcd", s.Value())
	}
}

func TestStrMutateAliases(t *testing.T) {
	a := NewStr("old")
	b := NewStr("new")
	if err := a.Mutate(token.Token{}, b); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if a.Value() != "new" {
		t.Fatalf("mutate did not replace contents: %q", a.Value())
	}

	// Both sides alias the same char vector after mutation.
	h, err := b.Nth(token.Token{}, &Int{V: 0})
	if err != nil {
		t.Fatalf("nth failed: %v", err)
	}
	h.(*Char).V = "N"
	if a.Value() != "New" {
		t.Errorf("Str mutate did not alias: %q", a.Value())
	}
}

func TestNewStrFromChars(t *testing.T) {
	chars := []*Char{{V: "h"}, {V: "i"}}
	s := NewStrFromChars(chars)
	checkStrInvariant(t, s)
	if s.Value() != "hi" {
		t.Fatalf("expected %q, got %q", "hi", s.Value())
	}

	chars[0].V = "H"
	if s.Value() != "Hi" {
		t.Errorf("chars not aliased into the string: %q", s.Value())
	}
}

func TestCharMutateFromOneCharStr(t *testing.T) {
	c := &Char{V: "a"}
	if err := c.Mutate(token.Token{}, NewStr("B")); err != nil {
		t.Fatalf("mutate from one-char Str failed: %v", err)
	}
	if c.V != "B" {
		t.Errorf("expected B, got %q", c.V)
	}

	if err := c.Mutate(token.Token{}, NewStr("long")); err == nil {
		t.Error("expected Types error mutating Char with a multi-char Str")
	}
}

func TestIntBinops(t *testing.T) {
	tests := []struct {
		op   string
		l, r int64
		want int64
	}{
		{"+", 2, 3, 5},
		{"-", 2, 3, -1},
		{"*", 4, 3, 12},
		{"/", 7, 2, 3},
		{"%", 7, 2, 1},
		{"&", 6, 3, 2},
		{"|", 6, 3, 7},
		{"^", 6, 3, 5},
		{"<<", 1, 3, 8},
		{">>", 8, 2, 2},
	}
	for _, tt := range tests {
		l := &Int{V: tt.l}
		got, err := l.Binop(tt.op, token.Token{}, &Int{V: tt.r})
		if err != nil {
			t.Fatalf("%d %s %d: %v", tt.l, tt.op, tt.r, err)
		}
		if got.(*Int).V != tt.want {
			t.Errorf("%d %s %d = %d, want %d", tt.l, tt.op, tt.r, got.(*Int).V, tt.want)
		}
	}
}

func TestIntDivisionByZero(t *testing.T) {
	l := &Int{V: 1}
	for _, op := range []string{"/", "%"} {
		_, err := l.Binop(op, token.Token{}, &Int{V: 0})
		if err == nil || err.Kind != errs.Runtime {
			t.Errorf("1 %s 0: expected Runtime error, got %v", op, err)
		}
	}
}

func TestIntOptionCompatibility(t *testing.T) {
	i := &Int{V: 0}
	none := &Option{Has: false}

	// Compatible for equality, but never actually equal.
	eq, err := i.Binop("==", token.Token{}, none)
	if err != nil {
		t.Fatalf("Int == None raised: %v", err)
	}
	if eq.(*Bool).V {
		t.Error("Int(0) == None must be false")
	}

	ne, err := i.Binop("!=", token.Token{}, none)
	if err != nil {
		t.Fatalf("Int != None raised: %v", err)
	}
	if !ne.(*Bool).V {
		t.Error("Int(0) != None must be true")
	}

	if _, err := i.Binop("+", token.Token{}, none); err == nil || err.Kind != errs.Types {
		t.Error("Int + None must be a Types error")
	}
}

func TestMixedBinopTypesError(t *testing.T) {
	s := NewStr("a")
	if _, err := s.Binop("+", token.Token{}, &Char{V: "b"}); err == nil || err.Kind != errs.Types {
		t.Error("Str + Char must be a Types error; append is the member-intrinsic path")
	}
	i := &Int{V: 1}
	if _, err := i.Binop("+", token.Token{}, &Bool{V: true}); err == nil || err.Kind != errs.Types {
		t.Error("Int + Bool must be a Types error")
	}
}

func TestListNthSharesHandle(t *testing.T) {
	inner := &Int{V: 1}
	l := &List{Elements: []Value{inner, &Int{V: 2}}}

	h, err := l.Nth(token.Token{}, &Int{V: 0})
	if err != nil {
		t.Fatalf("nth failed: %v", err)
	}
	if err := h.(*Int).Mutate(token.Token{}, &Int{V: 42}); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	again, err := l.Nth(token.Token{}, &Int{V: 0})
	if err != nil {
		t.Fatalf("re-read failed: %v", err)
	}
	if again.(*Int).V != 42 {
		t.Errorf("list element not shared through nth: %d", again.(*Int).V)
	}
}

func TestListNthBounds(t *testing.T) {
	l := &List{Elements: []Value{&Int{V: 1}, &Int{V: 2}}}
	_, err := l.Nth(token.Token{}, &Int{V: 5})
	if err == nil || err.Kind != errs.Runtime {
		t.Errorf("expected Runtime out-of-range, got %v", err)
	}
}

func TestCopyEqualsAndIndependence(t *testing.T) {
	values := []Value{
		&Int{V: 42},
		&Bool{V: true},
		&Char{V: "x"},
		NewStr("hello"),
		&List{Elements: []Value{&Int{V: 1}, NewStr("a")}},
		&Option{Has: true, Inner: &Int{V: 3}},
		&Option{Has: false},
		Void{},
	}
	for _, v := range values {
		if !v.Copy().Equals(v) {
			t.Errorf("copy of %s is not equal to the original", v.Kind())
		}
	}

	// Primitives are independent after copy.
	orig := &Int{V: 1}
	cp := orig.Copy().(*Int)
	cp.V = 9
	if orig.V != 1 {
		t.Error("copying an Int did not produce an independent value")
	}

	// List copies clone their elements.
	el := &Int{V: 1}
	l := &List{Elements: []Value{el}}
	lcp := l.Copy().(*List)
	lcp.Elements[0].(*Int).V = 9
	if el.V != 1 {
		t.Error("copying a List did not clone its elements")
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{&Int{V: -3}, "-3"},
		{&Int{V: 7}, "7"},
		{&Bool{V: true}, "true"},
		{&Bool{V: false}, "false"},
		{NewStr("raw text"), "raw text"},
		{&Char{V: "c"}, "c"},
		{&List{Elements: []Value{&Int{V: 1}, &Int{V: 2}, &Int{V: 3}}}, "[1, 2, 3]"},
		{&Option{Has: false}, "None"},
		{&Option{Has: true, Inner: &Int{V: 5}}, "Some(5)"},
		{Void{}, ""},
		{&List{Elements: []Value{NewStr("a"), &Option{Has: false}}}, "[a, None]"},
	}
	for _, tt := range tests {
		if got := tt.v.ToString(); got != tt.want {
			t.Errorf("%s.ToString() = %q, want %q", tt.v.Kind(), got, tt.want)
		}
	}
}

func TestTruthiness(t *testing.T) {
	truthy := []Value{&Int{V: 1}, &Bool{V: true}, NewStr("x"), &List{Elements: []Value{&Int{V: 1}}}, &Option{Has: true, Inner: &Int{V: 0}}, &Char{V: "a"}}
	falsy := []Value{&Int{V: 0}, &Bool{V: false}, NewStr(""), &List{}, &Option{Has: false}, Void{}}

	for _, v := range truthy {
		if !v.Truthy() {
			t.Errorf("%s expected truthy", v.Kind())
		}
	}
	for _, v := range falsy {
		if v.Truthy() {
			t.Errorf("%s expected falsy", v.Kind())
		}
	}
}
