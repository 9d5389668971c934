package contract

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherTool() Tool {
	return NewFunctionTool("get_weather", "Look up the weather", ParametersSchema{
		Properties: map[string]ParameterProperty{
			"city": {Type: "string", Description: "City name"},
			"days": {
				Type:        "array",
				Description: "Days to fetch",
				Items: &ParameterProperty{
					Type:        "string",
					Description: "Day",
					Enum:        []string{"today", "tomorrow"},
				},
			},
		},
		Required: []string{"city"},
	})
}

func TestToolSerialization(t *testing.T) {
	data, err := json.Marshal(weatherTool())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"type": "function",
		"function": {
			"name": "get_weather",
			"description": "Look up the weather",
			"parameters": {
				"type": "object",
				"properties": {
					"city": {"type": "string", "description": "City name"},
					"days": {
						"type": "array",
						"description": "Days to fetch",
						"items": {"type": "string", "description": "Day", "enum": ["today", "tomorrow"]}
					}
				},
				"required": ["city"]
			}
		}
	}`, string(data))
}

func TestEmptyParametersSerializeAsObjectAndArray(t *testing.T) {
	data, err := json.Marshal(NewFunctionTool("now", "current time", ParametersSchema{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"now","description":"current time","parameters":{"type":"object","properties":{},"required":[]}}}`, string(data))

	data, err = json.Marshal(ParametersSchema{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"object","properties":{},"required":[]}`, string(data))
}

func TestParametersMap(t *testing.T) {
	m := weatherTool().Function.Parameters.ParametersMap()
	assert.Equal(t, "object", m["type"])
	assert.Contains(t, m["properties"].(map[string]any), "city")
	assert.Equal(t, []any{"city"}, m["required"])

	empty := ParametersSchema{Type: "object"}.ParametersMap()
	assert.Equal(t, map[string]any{}, empty["properties"])
	assert.NotContains(t, empty, "required")
}

func TestToolCallDecodeArguments(t *testing.T) {
	call := ToolCall{
		ID:       "call_1",
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
	}

	var args struct {
		City string `json:"city"`
	}
	require.NoError(t, call.DecodeArguments(&args))
	assert.Equal(t, "Oslo", args.City)

	call.Function.Arguments = "{"
	assert.Error(t, call.DecodeArguments(&args))

	call.Function.Arguments = ""
	var empty map[string]any
	assert.NoError(t, call.DecodeArguments(&empty))
}

type recordingChatter struct {
	tools []Tool
	calls int
}

func (r *recordingChatter) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool) (ChatResponse, error) {
	r.calls++
	r.tools = tools
	text := "ok"
	return &BasicResponse{Content: &text}, nil
}

func TestChatDefaultPassesNoTools(t *testing.T) {
	r := &recordingChatter{tools: []Tool{weatherTool()}}

	resp, err := ChatDefault(context.Background(), r, []ChatMessage{UserText("hi")})
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.Nil(t, r.tools)
	assert.Equal(t, "ok", TextOrEmpty(resp))
}

func TestBasicResponseToolCallsAreCopied(t *testing.T) {
	r := &BasicResponse{Calls: []ToolCall{{ID: "call_1", Type: ToolTypeFunction}}}
	calls := r.ToolCalls()
	calls[0].ID = "mutated"
	assert.Equal(t, "call_1", r.ToolCalls()[0].ID)
}

func TestBasicResponse(t *testing.T) {
	r := &BasicResponse{}
	_, ok := r.Text()
	assert.False(t, ok)
	assert.Nil(t, r.ToolCalls())
	_, ok = r.Thinking()
	assert.False(t, ok)
	assert.Equal(t, "", r.String())
	assert.Equal(t, "", TextOrEmpty(nil))

	var _ ChatResponse = r
	var none NoThinking
	_, ok = none.Thinking()
	assert.False(t, ok)
}
