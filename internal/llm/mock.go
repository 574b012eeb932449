package llm

import (
	"context"
	"sync"
)

// defaultMockResponse carries every field the structured-output parsers
// look for, so a dry run with no canned responses drafts, passes the
// gate, and wins the vote in one pass.
const defaultMockResponse = `{
  "content": "Placeholder content produced by the mock backend.",
  "key_points": ["mock backend output"],
  "overall_score": 85,
  "subscores": {"readability": 85, "coverage": 85, "goals": 85, "scope": 85},
  "summary": "Mock analysis.",
  "findings": [],
  "approval": "in_favor",
  "remarks": []
}`

// MockProvider is a canned-response provider for local runs and tests.
// Responses are served in order; the last one repeats once exhausted.
// With no responses configured it serves defaultMockResponse.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	next      int

	// Requests records every request received, in order.
	Requests []CompletionRequest
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	text := defaultMockResponse
	if len(m.responses) > 0 {
		if m.next >= len(m.responses) {
			text = m.responses[len(m.responses)-1]
		} else {
			text = m.responses[m.next]
			m.next++
		}
	}

	return &CompletionResponse{Text: text, StopReason: StopReasonEndTurn}, nil
}

func (m *MockProvider) ModelID() string { return "mock" }
func (m *MockProvider) MaxTokens() int  { return 4096 }
