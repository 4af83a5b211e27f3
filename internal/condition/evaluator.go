// Package condition compiles and evaluates the boolean expressions that drive
// quest branching.
//
// Expressions use HCL native syntax restricted to three root variables:
// player, quest and input. Function calls are rejected and nothing outside
// those three values is reachable, so evaluation has no side effects.
package condition

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// ErrorKind classifies an evaluation failure.
type ErrorKind string

const (
	EmptyExpression ErrorKind = "EmptyExpression"
	ParseError      ErrorKind = "ParseError"
	UnknownField    ErrorKind = "UnknownField"
	ForbiddenCall   ErrorKind = "ForbiddenCall"
	EvalError       ErrorKind = "EvalError"
)

// Root variable names visible to expressions.
const (
	RootPlayer = "player"
	RootQuest  = "quest"
	RootInput  = "input"
)

// DefaultCacheSize bounds the number of compiled programs kept by an Evaluator.
const DefaultCacheSize = 256

// Error is a classified evaluation failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Context is the data an expression may read. Each field is converted through
// its JSON encoding, so structs with json tags and plain maps both work.
type Context struct {
	Player any
	Quest  any
	Input  any
}

// Result is the outcome of an evaluation. Value is always false when Err is
// set.
type Result struct {
	Value bool      `json:"result"`
	Err   string    `json:"error,omitempty"`
	Kind  ErrorKind `json:"errorKind,omitempty"`
}

// Failed reports whether the evaluation produced a diagnostic.
func (r Result) Failed() bool {
	return r.Err != ""
}

func failed(err error) Result {
	var ce *Error
	if errors.As(err, &ce) {
		return Result{Err: ce.Msg, Kind: ce.Kind}
	}
	return Result{Err: err.Error(), Kind: EvalError}
}

// Program is a compiled expression. It is safe for concurrent use.
type Program struct {
	source string
	expr   hclsyntax.Expression
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Compile parses expr and checks that it only references the allowed roots
// and calls no functions.
func Compile(expr string) (*Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, newError(EmptyExpression, "expression is empty")
	}

	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, newError(ParseError, "%s", diags.Error())
	}

	for _, traversal := range parsed.Variables() {
		switch root := traversal.RootName(); root {
		case RootPlayer, RootQuest, RootInput:
		default:
			return nil, newError(UnknownField, "unknown variable %q; expressions may only read player, quest and input", root)
		}
	}

	var call *hclsyntax.FunctionCallExpr
	hclsyntax.VisitAll(parsed, func(node hclsyntax.Node) hcl.Diagnostics {
		if fc, ok := node.(*hclsyntax.FunctionCallExpr); ok && call == nil {
			call = fc
		}
		return nil
	})
	if call != nil {
		return nil, newError(ForbiddenCall, "function call %q is not allowed", call.Name)
	}

	return &Program{source: expr, expr: parsed}, nil
}

// Eval runs the program against ctx. It never panics and never mutates ctx.
func (p *Program) Eval(ctx Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Sprintf("evaluation panicked: %v", r), Kind: EvalError}
		}
	}()

	roots := []struct {
		name string
		v    any
	}{
		{RootPlayer, ctx.Player},
		{RootQuest, ctx.Quest},
		{RootInput, ctx.Input},
	}
	vars := make(map[string]cty.Value, len(roots))
	for _, r := range roots {
		val, err := toValue(r.v)
		if err != nil {
			return failed(newError(EvalError, "convert %s: %v", r.name, err))
		}
		vars[r.name] = val
	}

	evalCtx := &hcl.EvalContext{Variables: vars}
	val, diags := p.expr.Value(evalCtx)
	if diags.HasErrors() {
		kind := EvalError
		for _, d := range diags {
			if d.Summary == "Unsupported attribute" {
				kind = UnknownField
				break
			}
		}
		return failed(newError(kind, "%s", diags.Error()))
	}

	if err := checkEquality(p.expr, evalCtx); err != nil {
		return failed(err)
	}

	b, err := truthy(val)
	if err != nil {
		return failed(newError(EvalError, "%v", err))
	}
	return Result{Value: b}
}

// checkEquality rejects == and != between values of different primitive
// types, which HCL would otherwise answer with a silent false or true.
// Comparisons against null stay allowed.
func checkEquality(expr hclsyntax.Expression, ctx *hcl.EvalContext) *Error {
	var mismatch *Error
	hclsyntax.VisitAll(expr, func(node hclsyntax.Node) hcl.Diagnostics {
		op, ok := node.(*hclsyntax.BinaryOpExpr)
		if !ok || mismatch != nil || (op.Op != hclsyntax.OpEqual && op.Op != hclsyntax.OpNotEqual) {
			return nil
		}
		lhs, ldiags := op.LHS.Value(ctx)
		rhs, rdiags := op.RHS.Value(ctx)
		if ldiags.HasErrors() || rdiags.HasErrors() {
			return nil
		}
		if primitiveMismatch(lhs, rhs) {
			mismatch = newError(EvalError, "cannot compare %s with %s", lhs.Type().FriendlyName(), rhs.Type().FriendlyName())
		}
		return nil
	})
	return mismatch
}

func primitiveMismatch(a, b cty.Value) bool {
	if !a.IsKnown() || !b.IsKnown() || a.IsNull() || b.IsNull() {
		return false
	}
	at, bt := a.Type(), b.Type()
	return at.IsPrimitiveType() && bt.IsPrimitiveType() && !at.Equals(bt)
}

// Evaluator evaluates expressions, caching compiled programs by source text.
type Evaluator struct {
	cache *lru.Cache[string, *Program]
}

// NewEvaluator returns an evaluator whose cache holds up to size programs.
// A non-positive size selects DefaultCacheSize.
func NewEvaluator(size int) *Evaluator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Program](size)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &Evaluator{cache: cache}
}

// Compile returns the cached program for expr, compiling it on a miss.
func (e *Evaluator) Compile(expr string) (*Program, error) {
	if p, ok := e.cache.Get(expr); ok {
		return p, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	e.cache.Add(expr, p)
	return p, nil
}

// Evaluate compiles and runs expr against ctx. Any failure yields
// Value=false with a diagnostic.
func (e *Evaluator) Evaluate(expr string, ctx Context) Result {
	p, err := e.Compile(expr)
	if err != nil {
		return failed(err)
	}
	return p.Eval(ctx)
}

var defaultEvaluator = NewEvaluator(DefaultCacheSize)

// Evaluate runs expr with the package-level evaluator.
func Evaluate(expr string, ctx Context) Result {
	return defaultEvaluator.Evaluate(expr, ctx)
}
