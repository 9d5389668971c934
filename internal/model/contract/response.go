package contract

// ChatResponse is the result of one chat call. Each backend has its own
// implementation; callers only see this interface.
type ChatResponse interface {
	// Text is the first choice's content, false when the vendor returned none.
	Text() (string, bool)
	// ToolCalls is nil when the reply requested no tool invocations.
	ToolCalls() []ToolCall
	// Thinking is the reasoning trace, false when the backend exposes none.
	Thinking() (string, bool)
	String() string
}

// NoThinking provides the default Thinking for responses without a
// reasoning trace.
type NoThinking struct{}

func (NoThinking) Thinking() (string, bool) { return "", false }

// TextOrEmpty returns the response text, or "" when there is none.
func TextOrEmpty(r ChatResponse) string {
	if r == nil {
		return ""
	}
	text, _ := r.Text()
	return text
}

type CompletionRequest struct {
	Prompt      string
	MaxTokens   *int
	Temperature *float32
	Suffix      *string
}

func NewCompletionRequest(prompt string) CompletionRequest {
	return CompletionRequest{Prompt: prompt}
}

func (r CompletionRequest) WithMaxTokens(n int) CompletionRequest {
	r.MaxTokens = &n
	return r
}

func (r CompletionRequest) WithTemperature(t float32) CompletionRequest {
	r.Temperature = &t
	return r
}

type CompletionResponse struct {
	Text string `json:"text"`
}

func (r *CompletionResponse) String() string {
	if r == nil {
		return ""
	}
	return r.Text
}

// BasicResponse is a ChatResponse assembled from already-decoded fields.
// SDK-backed adapters return it; wrappers use it to carry rewritten text.
type BasicResponse struct {
	Content   *string
	Calls     []ToolCall
	Reasoning string
}

func (r *BasicResponse) Text() (string, bool) {
	if r.Content == nil {
		return "", false
	}
	return *r.Content, true
}

func (r *BasicResponse) ToolCalls() []ToolCall {
	if len(r.Calls) == 0 {
		return nil
	}
	calls := make([]ToolCall, len(r.Calls))
	copy(calls, r.Calls)
	return calls
}

func (r *BasicResponse) Thinking() (string, bool) {
	if r.Reasoning == "" {
		return "", false
	}
	return r.Reasoning, true
}

func (r *BasicResponse) String() string {
	text, _ := r.Text()
	return text
}
