package xai

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
	Error   *streamError   `json:"error,omitempty"`
}

type streamChoice struct {
	Delta streamDelta `json:"delta"`
}

type streamDelta struct {
	Content          string            `json:"content"`
	ReasoningContent string            `json:"reasoning_content"`
	ToolCalls        []streamToolDelta `json:"tool_calls"`
}

type streamToolDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// consumeStream folds a server-sent event stream of chat deltas into one
// response. It stops at the [DONE] sentinel or end of body.
func consumeStream(r io.Reader) (*chatResponse, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxResponseBytes)

	var (
		content   strings.Builder
		reasoning strings.Builder
		sawText   bool
		tools     = make(map[int]*contract.ToolCall)
	)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, llmErrors.Decode(err, "decode xai stream event")
		}
		if chunk.Error != nil {
			return nil, llmErrors.Wrap(llmErrors.ErrTransport, "xai stream error: "+chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			sawText = true
			content.WriteString(delta.Content)
		}
		reasoning.WriteString(delta.ReasoningContent)

		for _, td := range delta.ToolCalls {
			tc, ok := tools[td.Index]
			if !ok {
				tc = &contract.ToolCall{Type: contract.ToolTypeFunction}
				tools[td.Index] = tc
			}
			if td.ID != "" {
				tc.ID = td.ID
			}
			if td.Type != "" {
				tc.Type = td.Type
			}
			if td.Function.Name != "" {
				tc.Function.Name = td.Function.Name
			}
			tc.Function.Arguments += td.Function.Arguments
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, llmErrors.Transport(err, "read xai stream")
	}

	msg := chatResponseMessage{ReasoningContent: reasoning.String()}
	if sawText {
		text := content.String()
		msg.Content = &text
	}

	indexes := make([]int, 0, len(tools))
	for idx := range tools {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		msg.ToolCalls = append(msg.ToolCalls, *tools[idx])
	}

	return &chatResponse{Choices: []chatChoice{{Message: msg}}}, nil
}
