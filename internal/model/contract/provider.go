package contract

import "context"

// ChatProvider is the chat capability. ChatWithTools is the one method a
// backend really implements; Chat delegates to it through ChatDefault.
type ChatProvider interface {
	Chat(ctx context.Context, messages []ChatMessage) (ChatResponse, error)
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool) (ChatResponse, error)
}

type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// EmbeddingProvider returns one vector per input, in input order.
type EmbeddingProvider interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Provider is the combined capability every backend adapter satisfies.
type Provider interface {
	ChatProvider
	CompletionProvider
	EmbeddingProvider
	Name() string
	// Tools are the default tools sent by Chat; nil when none are configured.
	Tools() []Tool
}

type toolChatter interface {
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []Tool) (ChatResponse, error)
}

// ChatDefault is the shared body of every backend's Chat method.
func ChatDefault(ctx context.Context, p toolChatter, messages []ChatMessage) (ChatResponse, error) {
	return p.ChatWithTools(ctx, messages, nil)
}
