package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ParameterSpec describes a single named tool parameter.
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Descriptor is the advertised metadata of a tool. The name is carried as the
// key of the list_tools result, so it is not repeated in the encoded value.
type Descriptor struct {
	Name        string                   `json:"-"`
	Description string                   `json:"description"`
	Parameters  map[string]ParameterSpec `json:"parameters"`
}

// Handler executes a tool invocation. params is the raw JSON object supplied
// as the nested params of a call_tool request; it is never empty (an absent
// object is passed as {}).
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Tool pairs a descriptor with its handler.
type Tool struct {
	Descriptor Descriptor
	Handler    Handler
}

// ErrUnknownTool matches any *UnknownToolError via errors.Is.
var ErrUnknownTool = errors.New("unknown tool")

// UnknownToolError is returned by Registry.Execute when the requested name is
// not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return "Unknown tool: " + e.Name }

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// Option configures NewTool.
type Option func(*toolConfig)

type toolConfig struct {
	description string
}

// WithDescription sets the tool description used in listings.
func WithDescription(desc string) Option {
	return func(c *toolConfig) { c.description = desc }
}

// NewTool constructs a Tool from a typed argument struct A. It:
//   - reflects A with invopop/jsonschema and maps each top-level property to a
//     ParameterSpec (json name, type and description tag)
//   - wraps fn with JSON decoding of the raw params into A
//
// Decoding is lenient: unknown fields are ignored and absent fields keep their
// zero value. StringArg fields accept any JSON value and report presence;
// other field types are decoded strictly.
func NewTool[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...Option) Tool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	desc := Descriptor{
		Name:        name,
		Description: cfg.description,
		Parameters:  reflectParameters[A](),
	}

	handler := func(ctx context.Context, params json.RawMessage) (any, error) {
		var a A
		if len(params) > 0 {
			if err := json.Unmarshal(params, &a); err != nil {
				return nil, fmt.Errorf("invalid params for tool %s: %w", name, err)
			}
		}
		return fn(ctx, a)
	}

	return Tool{Descriptor: desc, Handler: handler}
}

// reflectParameters reflects a Go type A into a jsonschema.Schema and flattens
// its top-level properties into ParameterSpec values. Non-object types yield
// an empty parameter set.
func reflectParameters[A any]() map[string]ParameterSpec {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(A))

	params := make(map[string]ParameterSpec)
	if s == nil || s.Type != "object" || s.Properties == nil {
		return params
	}
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		if el.Value == nil {
			continue
		}
		params[el.Key] = ParameterSpec{
			Type:        el.Value.Type,
			Description: el.Value.Description,
		}
	}
	return params
}
