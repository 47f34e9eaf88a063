package testutil

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"oscar/model"
	"oscar/ollama"
)

// MockProvider implements model.Provider for tests. Behaviour is set through
// the Func fields; every Chat/ChatWithTools call is recorded.
type MockProvider struct {
	ChatFunc          func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	calls        [][]model.Message
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatFunc = mock.defaultChat
	mock.ChatWithToolsFunc = mock.defaultChatWithTools
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// NewHTMLProvider returns a mock whose Chat replies with the given HTML
// wrapped in a markdown code fence, like most hosted models do.
func NewHTMLProvider(html string) *MockProvider {
	mock := NewMockProvider("mock-html")
	mock.ChatFunc = func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
		if err := callback("```html\n", nil); err != nil {
			return err
		}
		if err := callback(html, nil); err != nil {
			return err
		}
		return callback("\n```", nil)
	}
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	if len(messages) > 0 {
		return callback("Mock response", nil)
	}
	return nil
}

func (m *MockProvider) defaultChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	return callback("Mock response with tools", nil)
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000, Provider: "mock"},
		{Name: "mock-model-2", Size: 2000, Provider: "mock"},
	}, nil
}

func (m *MockProvider) record(messages []model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]model.Message(nil), messages...))
}

// Calls returns the message lists of every chat request so far.
func (m *MockProvider) Calls() [][]model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]model.Message(nil), m.calls...)
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	m.record(messages)
	return m.ChatFunc(ctx, messages, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.record(messages)
	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

func (m *MockProvider) GetDisplayName() string {
	return m.GetModel()
}

func (m *MockProvider) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
