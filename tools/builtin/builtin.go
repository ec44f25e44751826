// Package builtin provides the conformance tool set served by the mock
// server: example, weather and calculator.
package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ggoodman/mcp-mock-server/internal/calc"
	"github.com/ggoodman/mcp-mock-server/tools"
)

// Tool names.
const (
	ExampleTool    = "example"
	WeatherTool    = "weather"
	CalculatorTool = "calculator"
)

// Conditions is the fixed set the weather tool picks from.
var Conditions = []string{"Sunny", "Cloudy", "Rainy", "Snowy", "Windy"}

// Options injects the clock and random source used by the built-in tools.
// Zero values select time.Now and a randomly seeded generator.
type Options struct {
	Now  func() time.Time
	Rand *rand.Rand
}

// NewRegistry returns a registry holding every built-in tool.
func NewRegistry(opts Options) *tools.Registry {
	return tools.NewRegistry(All(opts)...)
}

// All returns the built-in tools.
func All(opts Options) []tools.Tool {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	w := &weather{now: now, rng: rng}

	return []tools.Tool{
		Example(now),
		tools.NewTool(WeatherTool, w.call, tools.WithDescription("Get weather information for a location")),
		Calculator(),
	}
}

// Timestamp renders t as fractional Unix seconds.
func Timestamp(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

// ExampleArgs are the arguments of the example tool.
type ExampleArgs struct {
	Message tools.StringArg `json:"message,omitempty" jsonschema:"description=A message to echo back"`
}

// ExampleResult is returned by the example tool.
type ExampleResult struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// Example echoes its message argument. Non-string messages are rendered as
// text rather than rejected.
func Example(now func() time.Time) tools.Tool {
	return tools.NewTool(ExampleTool, func(ctx context.Context, a ExampleArgs) (any, error) {
		msg := "No message provided"
		if a.Message.Present() {
			msg = a.Message.Text()
		}
		return ExampleResult{
			Status:    "success",
			Message:   "Echo: " + msg,
			Timestamp: Timestamp(now()),
		}, nil
	}, tools.WithDescription("A simple example tool"))
}

// WeatherArgs are the arguments of the weather tool.
type WeatherArgs struct {
	Location tools.StringArg `json:"location,omitempty" jsonschema:"description=The location to get weather for"`
}

// WeatherResult is returned by the weather tool. Location holds the argument
// exactly as supplied.
type WeatherResult struct {
	Location    json.RawMessage `json:"location"`
	Temperature int             `json:"temperature"`
	Condition   string          `json:"condition"`
	Humidity    int             `json:"humidity"`
	Timestamp   float64         `json:"timestamp"`
}

type weather struct {
	now func() time.Time

	mu  sync.Mutex // *rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

func (w *weather) call(ctx context.Context, a WeatherArgs) (any, error) {
	loc := json.RawMessage(`"Unknown"`)
	if a.Location.Present() {
		loc = a.Location.Raw()
	}

	w.mu.Lock()
	temp := w.rng.IntN(36)
	cond := Conditions[w.rng.IntN(len(Conditions))]
	humidity := 30 + w.rng.IntN(61)
	w.mu.Unlock()

	return WeatherResult{
		Location:    loc,
		Temperature: temp,
		Condition:   cond,
		Humidity:    humidity,
		Timestamp:   Timestamp(w.now()),
	}, nil
}

// CalculatorArgs are the arguments of the calculator tool.
type CalculatorArgs struct {
	Expression tools.StringArg `json:"expression,omitempty" jsonschema:"description=The mathematical expression to evaluate"`
}

// CalculatorResult is returned by the calculator tool on success.
type CalculatorResult struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// ErrExpressionNotString is reported by the calculator when the expression
// argument is present but not a JSON string.
var ErrExpressionNotString = errors.New("expression must be a string")

// CalculatorError is the success-envelope payload returned for expressions
// that fail to evaluate.
type CalculatorError struct {
	Error string `json:"error"`
}

// Calculator evaluates arithmetic expressions with internal/calc. Evaluation
// failures are reported in the result, never as a call failure.
func Calculator() tools.Tool {
	return tools.NewTool(CalculatorTool, func(ctx context.Context, a CalculatorArgs) (any, error) {
		expr := ""
		if a.Expression.Present() {
			s, ok := a.Expression.Str()
			if !ok {
				return CalculatorError{Error: ErrExpressionNotString.Error()}, nil
			}
			expr = s
		}
		v, err := calc.Eval(expr)
		if err != nil {
			return CalculatorError{Error: err.Error()}, nil
		}
		return CalculatorResult{Expression: expr, Result: v}, nil
	}, tools.WithDescription("Perform basic calculations"))
}
