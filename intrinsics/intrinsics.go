// Package intrinsics implements EARL's built-in function registry:
// free intrinsics, dispatched by bare name (print, assert, len, ...), and
// member intrinsics, dispatched by receiver kind and method name
// (str.split, list.rev, ...).
//
// A handler never evaluates a closure argument itself — filter/foreach
// accept a Caller callback supplied by the evaluation engine at dispatch
// time, so this package never needs to import the evaluator (which in
// turn imports this package to look handlers up).
//
// Free and member intrinsics live in separate tables because member
// intrinsics are selected by (receiver type, method name) rather than
// by name alone.
package intrinsics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/malloc-nbytes/earl/errs"
	"github.com/malloc-nbytes/earl/token"
	"github.com/malloc-nbytes/earl/value"
)

// Out is where print and the input prompt write. The REPL swaps it for a
// buffer so program output lands in the session history instead of
// underneath the TUI.
var Out io.Writer = os.Stdout

// Caller invokes a first-class value (Closure or FunctionRef) with the
// given arguments. Supplied by the evaluator so member intrinsics like
// str.filter/list.foreach can run a user-supplied predicate without this
// package depending on the evaluator.
type Caller func(tok token.Token, fn value.Value, args []value.Value) (value.Value, *errs.Error)

// FreeHandler implements one free intrinsic.
type FreeHandler func(tok token.Token, args []value.Value, ctx *value.Context, call Caller) (value.Value, *errs.Error)

// StrMemberHandler implements one Str member intrinsic.
type StrMemberHandler func(tok token.Token, recv *value.Str, args []value.Value, call Caller) (value.Value, *errs.Error)

// ListMemberHandler implements one List member intrinsic.
type ListMemberHandler func(tok token.Token, recv *value.List, args []value.Value, call Caller) (value.Value, *errs.Error)

var freeTable = map[string]FreeHandler{
	"print":         freePrint,
	"assert":        freeAssert,
	"len":           freeLen,
	"type":          freeType,
	"input":         freeInput,
	"open":          freeOpen,
	"unimplemented": freeUnimplemented,
	"exit":          freeExit,
	"panic":         freePanic,
}

var strMemberTable = map[string]StrMemberHandler{
	"split":    strSplit,
	"substr":   strSubstr,
	"rev":      strRev,
	"pop":      strPop,
	"back":     strBack,
	"append":   strAppend,
	"filter":   strFilter,
	"contains": strContains,
	"foreach":  strForeach,
	"trim":     strTrim,
	"nth":      strNth,
}

var listMemberTable = map[string]ListMemberHandler{
	"rev":     listRev,
	"pop":     listPop,
	"append":  listAppend,
	"filter":  listFilter,
	"foreach": listForeach,
	"back":    listBack,
}

// LookupFree reports the free-intrinsic handler for name, if any.
func LookupFree(name string) (FreeHandler, bool) {
	h, ok := freeTable[name]
	return h, ok
}

// LookupStrMember reports the Str member-intrinsic handler for name, if
// any.
func LookupStrMember(name string) (StrMemberHandler, bool) {
	h, ok := strMemberTable[name]
	return h, ok
}

// LookupListMember reports the List member-intrinsic handler for name, if
// any.
func LookupListMember(name string) (ListMemberHandler, bool) {
	h, ok := listMemberTable[name]
	return h, ok
}

func argCount(tok token.Token, name string, args []value.Value, want int) *errs.Error {
	if len(args) != want {
		return errs.New(errs.Types, tok, "%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

// freePrint stringifies every argument via ToString and emits a single
// trailing newline.
func freePrint(_ token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	var out strings.Builder
	for _, a := range args {
		out.WriteString(a.ToString())
	}
	fmt.Fprintln(Out, out.String())
	return value.Void{}, nil
}

// freeAssert fails Runtime if any argument is falsy.
func freeAssert(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	for _, a := range args {
		if !a.Truthy() {
			return nil, errs.New(errs.Runtime, tok, "assertion failure")
		}
	}
	return value.Void{}, nil
}

func freeLen(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *value.Str:
		return &value.Int{V: int64(v.Len())}, nil
	case *value.List:
		return &value.Int{V: int64(len(v.Elements))}, nil
	default:
		return nil, errs.New(errs.Types, tok, "len is not supported for %s", args[0].Kind())
	}
}

func freeType(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "type", args, 1); err != nil {
		return nil, err
	}
	return value.NewStr(string(args[0].Kind())), nil
}

func freeInput(_ token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	if len(args) > 0 {
		fmt.Fprint(Out, args[0].ToString())
	}
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return value.NewStr(strings.TrimRight(line, "\r\n")), nil
}

func freeOpen(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "open", args, 1); err != nil {
		return nil, err
	}
	path, ok := args[0].(*value.Str)
	if !ok {
		return nil, errs.New(errs.Types, tok, "open expects a Str path, got %s", args[0].Kind())
	}
	contents, readErr := os.ReadFile(path.Value())
	if readErr != nil {
		return nil, errs.New(errs.Runtime, tok, "open: %s", readErr)
	}
	return value.NewStr(string(contents)), nil
}

func freeUnimplemented(tok token.Token, _ []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	return nil, errs.New(errs.Todo, tok, "unimplemented")
}

func freeExit(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	code := 0
	if len(args) > 0 {
		i, ok := args[0].(*value.Int)
		if !ok {
			return nil, errs.New(errs.Types, tok, "exit expects an Int status code, got %s", args[0].Kind())
		}
		code = int(i.V)
	}
	os.Exit(code)
	return value.Void{}, nil
}

func freePanic(tok token.Token, args []value.Value, _ *value.Context, _ Caller) (value.Value, *errs.Error) {
	msg := "panic"
	if len(args) > 0 {
		msg = args[0].ToString()
	}
	return nil, errs.New(errs.Fatal, tok, "%s", msg)
}

func strSplit(tok token.Token, recv *value.Str, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.split", args, 1); err != nil {
		return nil, err
	}
	delim, ok := args[0].(*value.Str)
	if !ok {
		return nil, errs.New(errs.Types, tok, "str.split expects a Str delimiter, got %s", args[0].Kind())
	}
	parts := strings.Split(recv.Value(), delim.Value())
	elems := make([]value.Value, len(parts))
	for i, p := range parts {
		elems[i] = value.NewStr(p)
	}
	return &value.List{Elements: elems}, nil
}

func strSubstr(tok token.Token, recv *value.Str, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.substr", args, 2); err != nil {
		return nil, err
	}
	start, ok1 := args[0].(*value.Int)
	end, ok2 := args[1].(*value.Int)
	if !ok1 || !ok2 {
		return nil, errs.New(errs.Types, tok, "str.substr expects (Int, Int)")
	}
	s := recv.Value()
	lo, hi := int(start.V), int(end.V)
	if lo < 0 || hi > len(s) || lo > hi {
		return nil, errs.New(errs.Runtime, tok, "str.substr range [%d, %d) out of bounds for Str of length %d", lo, hi, len(s))
	}
	return value.NewStr(s[lo:hi]), nil
}

func strRev(_ token.Token, recv *value.Str, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	runes := []rune(recv.Value())
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	_ = recv.Mutate(token.Token{}, value.NewStr(string(runes)))
	return value.Void{}, nil
}

func strPop(tok token.Token, recv *value.Str, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	s := recv.Value()
	if len(s) == 0 {
		return nil, errs.New(errs.Runtime, tok, "pop from an empty Str")
	}
	last := s[len(s)-1:]
	_ = recv.Mutate(tok, value.NewStr(s[:len(s)-1]))
	return &value.Char{V: last}, nil
}

func strBack(tok token.Token, recv *value.Str, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	s := recv.Value()
	if len(s) == 0 {
		return nil, errs.New(errs.Runtime, tok, "back on an empty Str")
	}
	return &value.Char{V: s[len(s)-1:]}, nil
}

// strAppend backs Str+Char compatibility via a member intrinsic rather
// than the + binop, which rejects a Char operand.
func strAppend(tok token.Token, recv *value.Str, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.append", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *value.Str:
		recv.Append(v.Value())
	case *value.Char:
		recv.Append(v.V)
	default:
		return nil, errs.New(errs.Types, tok, "str.append expects Str or Char, got %s", args[0].Kind())
	}
	return value.Void{}, nil
}

func strFilter(tok token.Token, recv *value.Str, args []value.Value, call Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.filter", args, 1); err != nil {
		return nil, err
	}
	var kept strings.Builder
	for _, r := range recv.Value() {
		res, err := call(tok, args[0], []value.Value{&value.Char{V: string(r)}})
		if err != nil {
			return nil, err
		}
		if res.Truthy() {
			kept.WriteRune(r)
		}
	}
	_ = recv.Mutate(tok, value.NewStr(kept.String()))
	return value.Void{}, nil
}

func strContains(tok token.Token, recv *value.Str, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.contains", args, 1); err != nil {
		return nil, err
	}
	needle, ok := args[0].(*value.Str)
	if !ok {
		if c, ok := args[0].(*value.Char); ok {
			return &value.Bool{V: strings.Contains(recv.Value(), c.V)}, nil
		}
		return nil, errs.New(errs.Types, tok, "str.contains expects Str or Char, got %s", args[0].Kind())
	}
	return &value.Bool{V: strings.Contains(recv.Value(), needle.Value())}, nil
}

func strForeach(tok token.Token, recv *value.Str, args []value.Value, call Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.foreach", args, 1); err != nil {
		return nil, err
	}
	for _, r := range recv.Value() {
		if _, err := call(tok, args[0], []value.Value{&value.Char{V: string(r)}}); err != nil {
			return nil, err
		}
	}
	return value.Void{}, nil
}

func strTrim(tok token.Token, recv *value.Str, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	_ = recv.Mutate(tok, value.NewStr(strings.TrimSpace(recv.Value())))
	return value.Void{}, nil
}

func strNth(tok token.Token, recv *value.Str, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "str.nth", args, 1); err != nil {
		return nil, err
	}
	return recv.Nth(tok, args[0])
}

func listRev(_ token.Token, recv *value.List, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	for i, j := 0, len(recv.Elements)-1; i < j; i, j = i+1, j-1 {
		recv.Elements[i], recv.Elements[j] = recv.Elements[j], recv.Elements[i]
	}
	return value.Void{}, nil
}

func listPop(tok token.Token, recv *value.List, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	if len(recv.Elements) == 0 {
		return nil, errs.New(errs.Runtime, tok, "pop from an empty List")
	}
	last := recv.Elements[len(recv.Elements)-1]
	recv.Elements = recv.Elements[:len(recv.Elements)-1]
	return last, nil
}

func listAppend(tok token.Token, recv *value.List, args []value.Value, _ Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "list.append", args, 1); err != nil {
		return nil, err
	}
	recv.Elements = append(recv.Elements, args[0])
	return value.Void{}, nil
}

func listFilter(tok token.Token, recv *value.List, args []value.Value, call Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "list.filter", args, 1); err != nil {
		return nil, err
	}
	kept := recv.Elements[:0:0]
	for _, el := range recv.Elements {
		res, err := call(tok, args[0], []value.Value{el})
		if err != nil {
			return nil, err
		}
		if res.Truthy() {
			kept = append(kept, el)
		}
	}
	recv.Elements = kept
	return value.Void{}, nil
}

func listForeach(tok token.Token, recv *value.List, args []value.Value, call Caller) (value.Value, *errs.Error) {
	if err := argCount(tok, "list.foreach", args, 1); err != nil {
		return nil, err
	}
	for _, el := range recv.Elements {
		if _, err := call(tok, args[0], []value.Value{el}); err != nil {
			return nil, err
		}
	}
	return value.Void{}, nil
}

func listBack(tok token.Token, recv *value.List, _ []value.Value, _ Caller) (value.Value, *errs.Error) {
	if len(recv.Elements) == 0 {
		return nil, errs.New(errs.Runtime, tok, "back on an empty List")
	}
	return recv.Elements[len(recv.Elements)-1], nil
}
