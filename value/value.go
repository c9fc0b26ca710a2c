// Package value implements EARL's runtime value universe,
// its lexical-scope stack, and the evaluation context that
// composes them.
//
// The three are kept in one package because Closure captures a Context
// by handle and Module wraps one: splitting them across packages would
// create an import cycle between the value universe and the context
// that holds it.
//
// Value is a tagged variant over Int, Bool, Char, Str, List, Option,
// Closure, FunctionRef, ClassInstance, Module, and Void. Every variant
// implements the base Value interface; Int, Bool, Char and Str
// additionally implement Binoper, Str and List implement Indexable, and
// Int, Bool, Char, Str and List implement Mutator.
package value

import (
	"strconv"
	"strings"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/token"
)

// Kind names a Value's runtime type.
type Kind string

//nolint:revive
const (
	IntKind           Kind = "Int"
	BoolKind          Kind = "Bool"
	CharKind          Kind = "Char"
	StrKind           Kind = "Str"
	ListKind          Kind = "List"
	OptionKind        Kind = "Option"
	ClosureKind       Kind = "Closure"
	FunctionRefKind   Kind = "FunctionRef"
	ClassInstanceKind Kind = "ClassInstance"
	ModuleKind        Kind = "Module"
	VoidKind          Kind = "Void"
)

// Value is the interface every runtime value implements.
type Value interface {
	Kind() Kind
	Copy() Value
	ToString() string
	Truthy() bool
	Equals(other Value) bool
}

// Binoper is implemented by variants that support binop(op, other) — Int,
// Bool, Char and Str.
type Binoper interface {
	Binop(op string, tok token.Token, other Value) (Value, *errs.Error)
}

// Indexable is implemented by variants that support nth(index) — Str and
// List.
type Indexable interface {
	Nth(tok token.Token, index Value) (Value, *errs.Error)
}

// Mutator is implemented by variants that support mutate(other), replacing
// the receiver's observable state in place.
type Mutator interface {
	Mutate(tok token.Token, other Value) *errs.Error
}

// Int is EARL's Int(i64) value.
type Int struct {
	V int64
}

func (i *Int) Kind() Kind       { return IntKind }
func (i *Int) Copy() Value      { return &Int{V: i.V} }
func (i *Int) ToString() string { return strconv.FormatInt(i.V, 10) }
func (i *Int) Truthy() bool     { return i.V != 0 }

func (i *Int) Equals(other Value) bool {
	switch o := other.(type) {
	case *Int:
		return i.V == o.V
	case *Option:
		// Int and Option::None are declared compatible for equality but
		// never actually equal.
		return false
	default:
		return false
	}
}

func (i *Int) Binop(op string, tok token.Token, other Value) (Value, *errs.Error) {
	if opt, ok := other.(*Option); ok {
		switch op {
		case "==":
			return &Bool{V: false}, nil
		case "!=":
			return &Bool{V: true}, nil
		default:
			_ = opt
			return nil, errs.New(errs.Types, tok, "operator %q not supported between Int and Option", op)
		}
	}

	o, ok := other.(*Int)
	if !ok {
		return nil, errs.New(errs.Types, tok, "operator %q not supported between Int and %s", op, other.Kind())
	}
	switch op {
	case "+":
		return &Int{V: i.V + o.V}, nil
	case "-":
		return &Int{V: i.V - o.V}, nil
	case "*":
		return &Int{V: i.V * o.V}, nil
	case "/":
		if o.V == 0 {
			return nil, errs.New(errs.Runtime, tok, "division by zero")
		}
		return &Int{V: i.V / o.V}, nil
	case "%":
		if o.V == 0 {
			return nil, errs.New(errs.Runtime, tok, "modulo by zero")
		}
		return &Int{V: i.V % o.V}, nil
	case "&":
		return &Int{V: i.V & o.V}, nil
	case "|":
		return &Int{V: i.V | o.V}, nil
	case "^":
		return &Int{V: i.V ^ o.V}, nil
	case "<<":
		//nolint:gosec
		return &Int{V: i.V << uint(o.V)}, nil
	case ">>":
		//nolint:gosec
		return &Int{V: i.V >> uint(o.V)}, nil
	case "<":
		return &Bool{V: i.V < o.V}, nil
	case ">":
		return &Bool{V: i.V > o.V}, nil
	case "<=":
		return &Bool{V: i.V <= o.V}, nil
	case ">=":
		return &Bool{V: i.V >= o.V}, nil
	case "==":
		return &Bool{V: i.V == o.V}, nil
	case "!=":
		return &Bool{V: i.V != o.V}, nil
	default:
		return nil, errs.New(errs.Types, tok, "unsupported operator %q for Int", op)
	}
}

func (i *Int) Mutate(tok token.Token, other Value) *errs.Error {
	o, ok := other.(*Int)
	if !ok {
		return errs.New(errs.Types, tok, "cannot mutate Int with %s", other.Kind())
	}
	i.V = o.V
	return nil
}

// Bool is EARL's Bool value.
type Bool struct {
	V bool
}

func (b *Bool) Kind() Kind       { return BoolKind }
func (b *Bool) Copy() Value      { return &Bool{V: b.V} }
func (b *Bool) ToString() string { return strconv.FormatBool(b.V) }
func (b *Bool) Truthy() bool     { return b.V }

func (b *Bool) Equals(other Value) bool {
	o, ok := other.(*Bool)
	return ok && b.V == o.V
}

func (b *Bool) Binop(op string, tok token.Token, other Value) (Value, *errs.Error) {
	o, ok := other.(*Bool)
	if !ok {
		return nil, errs.New(errs.Types, tok, "operator %q not supported between Bool and %s", op, other.Kind())
	}
	switch op {
	case "&&":
		return &Bool{V: b.V && o.V}, nil
	case "||":
		return &Bool{V: b.V || o.V}, nil
	case "==":
		return &Bool{V: b.V == o.V}, nil
	case "!=":
		return &Bool{V: b.V != o.V}, nil
	default:
		return nil, errs.New(errs.Types, tok, "unsupported operator %q for Bool", op)
	}
}

func (b *Bool) Mutate(tok token.Token, other Value) *errs.Error {
	o, ok := other.(*Bool)
	if !ok {
		return errs.New(errs.Types, tok, "cannot mutate Bool with %s", other.Kind())
	}
	b.V = o.V
	return nil
}

// Char is EARL's one-codepoint Char value. It is boxed (always handled
// through a pointer) so that a handle promoted out of a Str aliases the
// character inside the string: mutating the handle mutates the string.
type Char struct {
	V string
}

func (c *Char) Kind() Kind       { return CharKind }
func (c *Char) Copy() Value      { return &Char{V: c.V} }
func (c *Char) ToString() string { return c.V }
func (c *Char) Truthy() bool     { return c.V != "" }

func (c *Char) Equals(other Value) bool {
	o, ok := other.(*Char)
	return ok && c.V == o.V
}

func (c *Char) Binop(op string, tok token.Token, other Value) (Value, *errs.Error) {
	o, ok := other.(*Char)
	if !ok {
		return nil, errs.New(errs.Types, tok, "operator %q not supported between Char and %s", op, other.Kind())
	}
	switch op {
	case "==":
		return &Bool{V: c.V == o.V}, nil
	case "!=":
		return &Bool{V: c.V != o.V}, nil
	default:
		return nil, errs.New(errs.Types, tok, "unsupported operator %q for Char", op)
	}
}

// Mutate accepts a Char or a one-character Str, so that "s[i] = "H""
// works without a dedicated char-literal on the right-hand side.
func (c *Char) Mutate(tok token.Token, other Value) *errs.Error {
	switch o := other.(type) {
	case *Char:
		c.V = o.V
		return nil
	case *Str:
		if o.Len() != 1 {
			return errs.New(errs.Types, tok, "cannot mutate Char with a Str of length %d", o.Len())
		}
		c.V = o.Value()
		return nil
	default:
		return errs.New(errs.Types, tok, "cannot mutate Char with %s", other.Kind())
	}
}

// Str is EARL's mutable character sequence. It holds a parallel pair: a
// byte-authoritative vector mValue and a vector of boxed Char handles
// mChars of equal length. mValue[i] == 0 means
// index i's authoritative character lives in mChars[i]; otherwise
// mValue[i] is authoritative and mChars[i] is nil.
//
// Indexing a position promotes that slot: the byte moves into a fresh
// boxed Char, mValue[i] becomes 0, mChars[i] is filled. A handle returned
// from Nth therefore aliases the character inside the string.
type Str struct {
	mValue []byte
	mChars []*Char
}

// NewStr builds a Str whose slots are entirely plain-byte (no promoted
// handles). Used for fresh strings produced by concatenation or literals.
func NewStr(s string) *Str {
	return &Str{mValue: []byte(s), mChars: make([]*Char, len(s))}
}

// NewStrFromChars builds a Str whose slots are all promoted, aliasing
// the given handles directly.
func NewStrFromChars(chars []*Char) *Str {
	n := len(chars)
	s := &Str{mValue: make([]byte, n), mChars: make([]*Char, n)}
	copy(s.mChars, chars)
	return s
}

// Len reports the string's character count.
func (s *Str) Len() int { return len(s.mValue) }

// Value reconstructs the plain string by reading through mChars wherever
// mValue[i] == 0.
func (s *Str) Value() string {
	var b strings.Builder
	b.Grow(len(s.mValue))
	for i, v := range s.mValue {
		if v == 0 && s.mChars[i] != nil {
			b.WriteString(s.mChars[i].V)
		} else {
			b.WriteByte(v)
		}
	}
	return b.String()
}

func (s *Str) Kind() Kind       { return StrKind }
func (s *Str) ToString() string { return s.Value() }
func (s *Str) Truthy() bool     { return len(s.mValue) > 0 }

// Copy copies the mValue byte vector and the mChars handle vector; the
// handles themselves are shared, so promoted chars remain aliased between
// the original and the copy.
func (s *Str) Copy() Value {
	mv := make([]byte, len(s.mValue))
	copy(mv, s.mValue)
	mc := make([]*Char, len(s.mChars))
	copy(mc, s.mChars)
	return &Str{mValue: mv, mChars: mc}
}

func (s *Str) Equals(other Value) bool {
	o, ok := other.(*Str)
	return ok && s.Value() == o.Value()
}

func (s *Str) Binop(op string, tok token.Token, other Value) (Value, *errs.Error) {
	o, ok := other.(*Str)
	if !ok {
		return nil, errs.New(errs.Types, tok, "operator %q not supported between Str and %s", op, other.Kind())
	}
	switch op {
	case "+":
		return NewStr(s.Value() + o.Value()), nil
	case "==":
		return &Bool{V: s.Value() == o.Value()}, nil
	case "!=":
		return &Bool{V: s.Value() != o.Value()}, nil
	default:
		return nil, errs.New(errs.Types, tok, "unsupported operator %q for Str", op)
	}
}

// Nth returns the boxed Char handle at index, promoting that slot if it
// was still byte-authoritative.
func (s *Str) Nth(tok token.Token, index Value) (Value, *errs.Error) {
	idx, ok := index.(*Int)
	if !ok {
		return nil, errs.New(errs.Types, tok, "Str index must be Int, got %s", index.Kind())
	}
	i := int(idx.V)
	if i < 0 || i >= len(s.mValue) {
		return nil, errs.New(errs.Runtime, tok, "index %d out of range for Str of length %d", i, len(s.mValue))
	}
	if s.mValue[i] != 0 {
		s.mChars[i] = &Char{V: string(s.mValue[i])}
		s.mValue[i] = 0
	}
	return s.mChars[i], nil
}

// Mutate replaces the receiver's char vectors by reference, aliasing both
// sides, rather than deep-cloning.
func (s *Str) Mutate(tok token.Token, other Value) *errs.Error {
	o, ok := other.(*Str)
	if !ok {
		return errs.New(errs.Types, tok, "cannot mutate Str with %s", other.Kind())
	}
	s.mValue = o.mValue
	s.mChars = o.mChars
	return nil
}

// Append mutates the string in place by appending a suffix. Str and
// Char are incompatible for +; this is the member-intrinsic path that
// makes appending a Char to a Str legal anyway.
func (s *Str) Append(suffix string) {
	s.mValue = append(s.mValue, []byte(suffix)...)
	s.mChars = append(s.mChars, make([]*Char, len(suffix))...)
}

// List is EARL's ordered, reference-shared sequence of values.
type List struct {
	Elements []Value
}

func (l *List) Kind() Kind   { return ListKind }
func (l *List) Truthy() bool { return len(l.Elements) > 0 }

func (l *List) ToString() string {
	var out strings.Builder
	out.WriteString("[")
	for i, e := range l.Elements {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(e.ToString())
	}
	out.WriteString("]")
	return out.String()
}

// Copy produces a shallow structural copy of the spine with per-element
// clones.
func (l *List) Copy() Value {
	elems := make([]Value, len(l.Elements))
	for i, e := range l.Elements {
		elems[i] = e.Copy()
	}
	return &List{Elements: elems}
}

func (l *List) Equals(other Value) bool {
	o, ok := other.(*List)
	if !ok || len(l.Elements) != len(o.Elements) {
		return false
	}
	for i := range l.Elements {
		if !l.Elements[i].Equals(o.Elements[i]) {
			return false
		}
	}
	return true
}

// Nth returns the stored handle directly: shared, not copied.
func (l *List) Nth(tok token.Token, index Value) (Value, *errs.Error) {
	idx, ok := index.(*Int)
	if !ok {
		return nil, errs.New(errs.Types, tok, "List index must be Int, got %s", index.Kind())
	}
	i := int(idx.V)
	if i < 0 || i >= len(l.Elements) {
		return nil, errs.New(errs.Runtime, tok, "index %d out of range for List of length %d", i, len(l.Elements))
	}
	return l.Elements[i], nil
}

// Mutate replaces the element vector.
func (l *List) Mutate(tok token.Token, other Value) *errs.Error {
	o, ok := other.(*List)
	if !ok {
		return errs.New(errs.Types, tok, "cannot mutate List with %s", other.Kind())
	}
	l.Elements = o.Elements
	return nil
}

// Option is EARL's Option::None / Option::Some(Value) value.
type Option struct {
	Has   bool
	Inner Value
}

func (o *Option) Kind() Kind { return OptionKind }
func (o *Option) Truthy() bool {
	return o.Has
}

func (o *Option) ToString() string {
	if !o.Has {
		return "None"
	}
	return "Some(" + o.Inner.ToString() + ")"
}

func (o *Option) Copy() Value {
	if !o.Has {
		return &Option{Has: false}
	}
	return &Option{Has: true, Inner: o.Inner.Copy()}
}

func (o *Option) Equals(other Value) bool {
	switch ov := other.(type) {
	case *Option:
		if o.Has != ov.Has {
			return false
		}
		if !o.Has {
			return true
		}
		return o.Inner.Equals(ov.Inner)
	default:
		// Compatible-but-never-equal cases (e.g. Int) are handled on the
		// other operand's Equals; from Option's side anything that isn't
		// an Option is simply not equal.
		return false
	}
}

// Void is the empty return value of statements and functions that fall
// through without an explicit return.
type Void struct{}

func (Void) Kind() Kind       { return VoidKind }
func (Void) Copy() Value      { return Void{} }
func (Void) ToString() string { return "" }
func (Void) Truthy() bool     { return false }
func (Void) Equals(other Value) bool {
	_, ok := other.(Void)
	return ok
}
