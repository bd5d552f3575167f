// Package tools provides the deterministic tools the agent can dispatch to
// instead of calling the language model.
package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/chidori-ai/chidori/internal/log"
)

// ErrEmptyExpression indicates the calculator was invoked without an expression.
var ErrEmptyExpression = errors.New("empty expression")

// CalculatorName is the tool identifier reported in chat responses.
const CalculatorName = "calculator"

// Calculator evaluates arithmetic expressions in a sandboxed environment.
// Only the math helpers in calcEnv are reachable; expressions cannot touch
// the filesystem, network, or any application state.
//
// Calculator is safe for concurrent use: compiled programs are not cached
// and the environment map is read-only.
type Calculator struct {
	logger log.Logger
}

// calcEnv is the whitelisted evaluation environment.
// Constants and functions beyond this map are compile errors.
var calcEnv = map[string]any{
	"pi": math.Pi,
	"e":  math.E,

	"abs":   math.Abs,
	"sqrt":  math.Sqrt,
	"pow":   math.Pow,
	"log":   math.Log,
	"log2":  math.Log2,
	"log10": math.Log10,
	"exp":   math.Exp,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
	"min":   math.Min,
	"max":   math.Max,
	"mod":   math.Mod,
}

// NewCalculator creates a calculator tool.
func NewCalculator(logger log.Logger) *Calculator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Calculator{logger: logger}
}

// Name returns the tool identifier.
func (c *Calculator) Name() string {
	return CalculatorName
}

// Evaluate compiles and runs an arithmetic expression.
// Returns ErrEmptyExpression when the expression is blank so callers can
// answer with a usage hint instead of an error.
func (c *Calculator) Evaluate(expression string) (float64, error) {
	if expression == "" {
		return 0, ErrEmptyExpression
	}

	program, err := expr.Compile(expression, expr.Env(calcEnv), expr.AsFloat64())
	if err != nil {
		return 0, fmt.Errorf("compiling expression %q: %w", expression, err)
	}

	out, err := expr.Run(program, calcEnv)
	if err != nil {
		return 0, fmt.Errorf("evaluating expression %q: %w", expression, err)
	}

	result, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q did not produce a number, got %T", expression, out)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("expression %q produced a non-finite result", expression)
	}

	c.logger.Debug("evaluated expression", "expression", expression, "result", result)
	return result, nil
}

// FormatResult renders a result the way a person would write it:
// integers without a decimal point, everything else in minimal digits.
func FormatResult(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
