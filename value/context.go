package value

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/malloc-nbytes/earl/ast"
	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/token"
)

// FunctionObject is a registered, user-defined function.
//
// localStack holds one *Scope per currently-nested invocation of this
// function: the top is the scope the body currently executing in sees.
// Recursion allocates a fresh, empty one via newScopeContext so an inner
// call's frames never corrupt an outer call's; dropScopeContext releases
// it symmetrically on return.
type FunctionObject struct {
	Name       string
	Parameters []*ast.Identifier
	Body       *ast.BlockStatement
	World      bool
	Attrs      []string
	Public     bool

	localStack []*Scope
}

// NewFunctionObject builds a FunctionObject with its base local scope
// already allocated.
func NewFunctionObject(name string, params []*ast.Identifier, body *ast.BlockStatement, world bool, attrs []string, public bool) *FunctionObject {
	return &FunctionObject{
		Name:       name,
		Parameters: params,
		Body:       body,
		World:      world,
		Attrs:      attrs,
		Public:     public,
		localStack: []*Scope{NewScope()},
	}
}

// NewFunctionObjectWithLocal builds a FunctionObject whose base local
// scope is an existing Scope rather than a fresh one — used by class
// instantiation and method calls to pin an instance's field scope as the
// "local scope" of a synthetic activation.
func NewFunctionObjectWithLocal(name string, local *Scope) *FunctionObject {
	return &FunctionObject{Name: name, localStack: []*Scope{local}}
}

// Local returns this function's current local scope.
func (f *FunctionObject) Local() *Scope { return f.localStack[len(f.localStack)-1] }

func (f *FunctionObject) newScopeContext()  { f.localStack = append(f.localStack, NewScope()) }
func (f *FunctionObject) contextSize() int  { return len(f.localStack) }
func (f *FunctionObject) dropScopeContext() {
	if f.contextSize() != 1 {
		f.localStack = f.localStack[:len(f.localStack)-1]
	}
}

// ClassDef is a registered class descriptor: constructor parameters and
// the statements run to populate instance fields.
type ClassDef struct {
	Name       string
	Parameters []*ast.Identifier
	Body       *ast.BlockStatement
	Attrs      []string
	Public     bool
}

// Closure is EARL's first-class function-literal value. It captures a
// snapshot of the defining Context by handle, not by deep copy: captured
// variables remain aliases to their bindings.
type Closure struct {
	Name       string
	Parameters []*ast.Identifier
	Body       *ast.BlockStatement
	Env        *Context
	World      bool

	fn *FunctionObject
}

// AsFunctionObject lazily builds (and caches) the FunctionObject backing
// this closure's activations, so repeated and recursive calls share one
// identity — required for Context.SetFunction's reentrancy detection to
// recognize a closure calling itself.
func (c *Closure) AsFunctionObject() *FunctionObject {
	if c.fn == nil {
		c.fn = NewFunctionObject(c.Name, c.Parameters, c.Body, c.World, nil, false)
	}
	return c.fn
}

func (c *Closure) Kind() Kind { return ClosureKind }

// Copy returns the receiver itself: closures are reference-shared, so
// the same handle already suffices for independent reads.
func (c *Closure) Copy() Value { return c }

func (c *Closure) ToString() string {
	return fmt.Sprintf("fn<%s>/%d", c.Name, len(c.Parameters))
}

func (c *Closure) Truthy() bool { return true }

func (c *Closure) Equals(other Value) bool {
	o, ok := other.(*Closure)
	return ok && o == c
}

// FunctionRef is a pointer to a registered function, used when a named
// function is referenced as a first-class value.
// Home is the Context the function was registered against, so a
// FunctionRef handed off to another module (or into an intrinsic
// callback) still resolves globals and recursion against its own
// defining context rather than the caller's.
type FunctionRef struct {
	Fn   *FunctionObject
	Home *Context
}

func (r *FunctionRef) Kind() Kind       { return FunctionRefKind }
func (r *FunctionRef) Copy() Value      { return r }
func (r *FunctionRef) ToString() string { return fmt.Sprintf("fn<%s>", r.Fn.Name) }
func (r *FunctionRef) Truthy() bool     { return true }
func (r *FunctionRef) Equals(other Value) bool {
	o, ok := other.(*FunctionRef)
	return ok && o.Fn == r.Fn
}

// ClassInstance is a value produced by instantiating a class: a class id
// plus the field-binding scope detached from constructor evaluation.
type ClassInstance struct {
	ClassID string
	Fields  *Scope
}

func (ci *ClassInstance) Kind() Kind { return ClassInstanceKind }

// Copy returns the receiver itself: class instances are reference-shared
//.
func (ci *ClassInstance) Copy() Value      { return ci }
func (ci *ClassInstance) ToString() string { return fmt.Sprintf("<%s instance>", ci.ClassID) }
func (ci *ClassInstance) Truthy() bool     { return true }
func (ci *ClassInstance) Equals(other Value) bool {
	o, ok := other.(*ClassInstance)
	return ok && o == ci
}

// Module is a handle onto an evaluated child Context, produced fresh each
// time a module is resolved.
type Module struct {
	Name  string
	Child *Context
}

func (m *Module) Kind() Kind       { return ModuleKind }
func (m *Module) Copy() Value      { return m }
func (m *Module) ToString() string { return fmt.Sprintf("<module %s>", m.Name) }
func (m *Module) Truthy() bool     { return true }
func (m *Module) Equals(other Value) bool {
	o, ok := other.(*Module)
	return ok && o.Child == m.Child
}

// Context is the composite of everything an evaluation needs: the
// global variable and function scopes, the class registry, the
// currently-executing function stack, and the child contexts spawned by
// imports.
type Context struct {
	ID         uuid.UUID
	ModuleName string

	GlobalVars  *Scope
	GlobalFuncs *Scope
	Classes     map[string]*ClassDef
	Children    []*Context

	tmpScope   Frame
	Stacktrace []*FunctionObject
}

// NewContext builds an empty, top-level Context.
func NewContext() *Context {
	return &Context{
		ID:          uuid.New(),
		GlobalVars:  NewScope(),
		GlobalFuncs: NewScope(),
		Classes:     make(map[string]*ClassDef),
		tmpScope:    make(Frame),
	}
}

// InFunction reports whether execution is currently inside a user
// function.
func (c *Context) InFunction() bool { return len(c.Stacktrace) > 0 }

// CurrentFunction returns the innermost currently-executing function, or
// nil at top level.
func (c *Context) CurrentFunction() *FunctionObject {
	if !c.InFunction() {
		return nil
	}
	return c.Stacktrace[len(c.Stacktrace)-1]
}

// RegisterVariable routes b to the current function's innermost local
// frame if InFunction(), else to global. Inside a world
// function, a name colliding between global and local is flagged
// Redeclared.
func (c *Context) RegisterVariable(tok token.Token, b *Binding) *errs.Error {
	if c.InFunction() {
		fn := c.CurrentFunction()
		if fn.World && c.GlobalVars.Contains(b.ID) {
			return errs.New(errs.Redeclared, tok, "%q collides with a global binding inside a world function", b.ID)
		}
		return fn.Local().Add(tok, b.ID, b)
	}
	return c.GlobalVars.Add(tok, b.ID, b)
}

// GetRegisteredVariable applies the identifier-resolution order:
// tmp scope, then (inside world functions) global then local,
// then (inside non-world functions) local only, then (at top level)
// global.
func (c *Context) GetRegisteredVariable(tok token.Token, id string) (*Binding, *errs.Error) {
	if b, ok := c.tmpScope[id]; ok {
		return b, nil
	}

	if c.InFunction() {
		fn := c.CurrentFunction()
		if fn.World {
			if b, ok := c.GlobalVars.Get(id); ok {
				return b, nil
			}
			if b, ok := fn.Local().Get(id); ok {
				return b, nil
			}
			return nil, errs.New(errs.Undeclared, tok, "%q is not in scope", id)
		}
		if b, ok := fn.Local().Get(id); ok {
			return b, nil
		}
		return nil, errs.New(errs.Undeclared, tok, "%q is not in scope", id)
	}

	if b, ok := c.GlobalVars.Get(id); ok {
		return b, nil
	}
	return nil, errs.New(errs.Undeclared, tok, "%q is not in scope", id)
}

// RegisterFunction inserts f into the global function registry.
func (c *Context) RegisterFunction(tok token.Token, f *FunctionObject) *errs.Error {
	return c.GlobalFuncs.Add(tok, f.Name, &Binding{ID: f.Name, Value: &FunctionRef{Fn: f, Home: c}, Mutable: false, Public: f.Public})
}

// GetRegisteredFunction looks up a registered function by name.
func (c *Context) GetRegisteredFunction(id string) (*FunctionObject, bool) {
	b, ok := c.GlobalFuncs.Get(id)
	if !ok {
		return nil, false
	}
	ref, ok := b.Value.(*FunctionRef)
	if !ok {
		return nil, false
	}
	return ref.Fn, true
}

// RegisterClass inserts cls into the class registry. Classes share no
// namespace with variables or functions, but two classes of the same
// name still collide.
func (c *Context) RegisterClass(tok token.Token, cls *ClassDef) *errs.Error {
	if _, exists := c.Classes[cls.Name]; exists {
		return errs.New(errs.Redeclared, tok, "class %q is already declared", cls.Name)
	}
	c.Classes[cls.Name] = cls
	return nil
}

// GetRegisteredClass looks up a registered class by name.
func (c *Context) GetRegisteredClass(id string) (*ClassDef, bool) {
	cls, ok := c.Classes[id]
	return cls, ok
}

// SetFunction pushes f onto the activation stack. If f is already active
// (direct or indirect recursion), the function receives a fresh, empty
// local-scope stack so the inner call's frames don't corrupt the outer
// call's.
func (c *Context) SetFunction(f *FunctionObject) {
	reentrant := false
	for _, active := range c.Stacktrace {
		if active == f {
			reentrant = true
			break
		}
	}
	if reentrant {
		f.newScopeContext()
	}
	c.Stacktrace = append(c.Stacktrace, f)
}

// UnsetFunction pops the top activation, releasing any scope context
// that SetFunction allocated for a reentrant call.
func (c *Context) UnsetFunction() {
	if len(c.Stacktrace) == 0 {
		return
	}
	f := c.Stacktrace[len(c.Stacktrace)-1]
	c.Stacktrace = c.Stacktrace[:len(c.Stacktrace)-1]

	stillActive := false
	for _, active := range c.Stacktrace {
		if active == f {
			stillActive = true
			break
		}
	}
	if stillActive {
		f.dropScopeContext()
	}
}

// PushScope pushes the current function's local scope if InFunction(),
// else pushes both global scope maps together.
func (c *Context) PushScope() {
	if c.InFunction() {
		c.CurrentFunction().Local().Push()
		return
	}
	c.GlobalVars.Push()
	c.GlobalFuncs.Push()
}

// PopScope is the symmetric inverse of PushScope.
func (c *Context) PopScope() {
	if c.InFunction() {
		c.CurrentFunction().Local().Pop()
		return
	}
	c.GlobalVars.Pop()
	c.GlobalFuncs.Pop()
}

// PushChildContext attaches a fully-evaluated sibling context, used by
// imports.
func (c *Context) PushChildContext(child *Context) {
	c.Children = append(c.Children, child)
}

// GetRegisteredModule linearly scans the children for one whose module
// identifier matches id, returning a fresh Module value wrapping it.
func (c *Context) GetRegisteredModule(tok token.Token, id string) (*Module, *errs.Error) {
	for _, child := range c.Children {
		if child.ModuleName == id {
			return &Module{Name: id, Child: child}, nil
		}
	}
	return nil, errs.New(errs.Undeclared, tok, "no imported module named %q", id)
}

// AddToTmpScope exposes a constructor argument binding before a class
// instance's own field scope exists.
func (c *Context) AddToTmpScope(tok token.Token, b *Binding) *errs.Error {
	if _, exists := c.tmpScope[b.ID]; exists {
		return errs.New(errs.Redeclared, tok, "%q is already declared in the constructor scope", b.ID)
	}
	c.tmpScope[b.ID] = b
	return nil
}

// VarInTmpScope reports whether id is currently exposed in the tmp scope.
func (c *Context) VarInTmpScope(id string) bool {
	_, ok := c.tmpScope[id]
	return ok
}

// GetVarFromTmpScope looks up id in the tmp scope.
func (c *Context) GetVarFromTmpScope(id string) (*Binding, bool) {
	b, ok := c.tmpScope[id]
	return b, ok
}

// ClearTmpScope drains the tmp scope. Constructor evaluation must call
// this on every exit path, including errors, since it is global mutable
// state on the context.
func (c *Context) ClearTmpScope() {
	c.tmpScope = make(Frame)
}
