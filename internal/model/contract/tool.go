package contract

import (
	"encoding/json"
	"fmt"
)

const ToolTypeFunction = "function"

// ParameterProperty describes one argument of a function tool. Items is set
// for array types and may itself carry Items.
type ParameterProperty struct {
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Items       *ParameterProperty `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// ParametersSchema is the argument object of a function tool. Names listed
// in Required are expected to exist in Properties; this is not checked here
// and a mismatch is reported by the vendor.
type ParametersSchema struct {
	Type       string                       `json:"type"`
	Properties map[string]ParameterProperty `json:"properties"`
	Required   []string                     `json:"required"`
}

// MarshalJSON always emits properties as an object and required as an array;
// OpenAI-compatible APIs reject null for either.
func (s ParametersSchema) MarshalJSON() ([]byte, error) {
	type wire ParametersSchema
	w := wire(s)
	if w.Type == "" {
		w.Type = "object"
	}
	if w.Properties == nil {
		w.Properties = map[string]ParameterProperty{}
	}
	if w.Required == nil {
		w.Required = []string{}
	}
	return json.Marshal(w)
}

type FunctionTool struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

type Tool struct {
	Type     string       `json:"type"`
	Function FunctionTool `json:"function"`
}

func NewFunctionTool(name, description string, params ParametersSchema) Tool {
	if params.Type == "" {
		params.Type = "object"
	}
	return Tool{
		Type: ToolTypeFunction,
		Function: FunctionTool{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

// ParametersMap renders the schema as a generic JSON object for SDKs that
// take map[string]any.
func (s ParametersSchema) ParametersMap() map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	if req, ok := out["required"].([]any); !ok || len(req) == 0 {
		delete(out, "required")
	}
	return out
}

// ToolCall is a vendor-reported invocation of a declared function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the arguments as the raw JSON string the vendor sent.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments unmarshals the opaque arguments string into v.
func (c ToolCall) DecodeArguments(v any) error {
	args := c.Function.Arguments
	if args == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("decode arguments of %s: %w", c.Function.Name, err)
	}
	return nil
}
