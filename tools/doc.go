// Package tools holds the set of operations a mock server exposes through
// call_tool, together with the descriptors it advertises through list_tools.
//
// A Registry is built once, at process start, from a list of Tool values and
// is read-only afterward; it is safe for concurrent use. Tools are usually
// constructed with NewTool, which reflects the parameter descriptors from a
// typed argument struct:
//
//	type EchoArgs struct {
//	    Message tools.StringArg `json:"message,omitempty" jsonschema:"description=A message to echo back"`
//	}
//
//	echo := tools.NewTool("echo", func(ctx context.Context, a EchoArgs) (any, error) {
//	    return map[string]any{"echo": a.Message.Text()}, nil
//	}, tools.WithDescription("Echo a message"))
//
// Arguments only need to be present to be usable. StringArg fields accept any
// JSON value, so a client sending a number where a string is advertised still
// reaches the tool, which decides what to make of it.
//
//	reg := tools.NewRegistry(echo)
//
// A tool may report failures two ways. Returning an error surfaces a
// dispatch-level failure to the caller. Returning a value describing the
// failure (for example {"error": "..."}) keeps the call successful at the
// protocol level; which one a tool uses is part of that tool's contract.
package tools
