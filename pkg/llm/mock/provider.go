package mock

import (
	"ai-chat-be/pkg/llm"
	"context"
	"strings"
	"sync"
)

// MockProvider replays scripted responses. Useful in tests and for running
// the server without a real model behind it.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	Calls     [][]llm.Message
	Err       error
}

var _ llm.LLMProvider = &MockProvider{}

func NewMockProvider(responses ...string) *MockProvider {
	if len(responses) == 0 {
		responses = []string{"This is a mock response."}
	}
	return &MockProvider{responses: responses}
}

func (m *MockProvider) take(history []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, history)
	if m.Err != nil {
		return "", m.Err
	}
	resp := m.responses[m.next%len(m.responses)]
	m.next++
	return resp, nil
}

func (m *MockProvider) Chat(_ context.Context, history []llm.Message, _ ...llm.Option) (string, error) {
	return m.take(history)
}

// ChatStream emits the scripted response word by word.
func (m *MockProvider) ChatStream(ctx context.Context, history []llm.Message, onDelta llm.StreamCallback, _ ...llm.Option) (string, error) {
	resp, err := m.take(history)
	if err != nil {
		return "", err
	}
	words := strings.SplitAfter(resp, " ")
	for _, w := range words {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		onDelta(w)
	}
	return resp, nil
}

func (m *MockProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return m.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}
