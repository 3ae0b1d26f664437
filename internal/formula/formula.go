// Package formula evaluates metric formulas in a sandbox.
//
// A formula is an arithmetic expression over named variables, for example
// "(true_positive + true_negative) / (real_true + real_false)". Variables are
// substituted textually and the remaining expression may only contain number
// literals, + - * /, parentheses and comparison operators. A comparison
// evaluates to 1 or 0 wherever it appears, so "(a > 0) * b" is valid.
package formula

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/ast"
	"github.com/antonmedv/expr/parser"
)

// FormulaEvaluationError reports a formula that could not be evaluated
type FormulaEvaluationError struct {
	Formula string
	Err     error
}

func (e *FormulaEvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate formula %q: %v", e.Formula, e.Err)
}

func (e *FormulaEvaluationError) Unwrap() error {
	return e.Err
}

var (
	ErrEmptyFormula      = errors.New("empty formula")
	ErrUndefinedVariable = errors.New("undefined variable")
	ErrNotANumber        = errors.New("result is not a finite number")
)

var arithmetic = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
}

var comparisons = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
}

var allowedUnary = map[string]bool{
	"+": true, "-": true,
}

// Substitute replaces every whole-word occurrence of a variable name with its value
func Substitute(formula string, variables map[string]float64) string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	// longest first so overlapping names resolve deterministically
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	out := formula
	for _, name := range names {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		out = re.ReplaceAllLiteralString(out, formatNumber(variables[name]))
	}
	return out
}

func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + s + ")"
	}
	return s
}

// Evaluate substitutes variables into formula and evaluates the result
func Evaluate(formula string, variables map[string]float64) (float64, error) {
	if formula == "" {
		return 0, &FormulaEvaluationError{Formula: formula, Err: ErrEmptyFormula}
	}

	expression := Substitute(formula, variables)
	value, err := evaluateExpression(expression)
	if err != nil {
		return 0, &FormulaEvaluationError{Formula: formula, Err: err}
	}
	return value, nil
}

func evaluateExpression(expression string) (float64, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}

	guard := &arithmeticGuard{}
	ast.Walk(&tree.Node, guard)
	if guard.err != nil {
		return 0, guard.err
	}

	program, err := expr.Compile(expression, expr.Patch(numericComparisons{}))
	if err != nil {
		return 0, fmt.Errorf("compile: %w", err)
	}

	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}

	value, err := toFloat(out)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNotANumber
	}
	return value, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected result type %T", v)
	}
}

// arithmeticGuard rejects every node outside the arithmetic grammar
type arithmeticGuard struct {
	err error
}

func (g *arithmeticGuard) Visit(node *ast.Node) {
	if g.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode:
	case *ast.BinaryNode:
		if !arithmetic[n.Operator] && !comparisons[n.Operator] {
			g.err = fmt.Errorf("operator %q is not allowed", n.Operator)
		}
	case *ast.UnaryNode:
		if !allowedUnary[n.Operator] {
			g.err = fmt.Errorf("operator %q is not allowed", n.Operator)
		}
	case *ast.IdentifierNode:
		g.err = fmt.Errorf("%w: %s", ErrUndefinedVariable, n.Value)
	default:
		g.err = fmt.Errorf("expression element %T is not allowed", n)
	}
}

// numericComparisons rewrites each comparison into "cmp ? 1 : 0"
type numericComparisons struct{}

func (numericComparisons) Visit(node *ast.Node) {
	n, ok := (*node).(*ast.BinaryNode)
	if !ok || !comparisons[n.Operator] {
		return
	}
	ast.Patch(node, &ast.ConditionalNode{
		Cond: n,
		Exp1: &ast.IntegerNode{Value: 1},
		Exp2: &ast.IntegerNode{Value: 0},
	})
}
