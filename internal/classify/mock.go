package classify

import (
	"context"
	"sync"
)

// MockClient is a test implementation of the Client interface. It
// records every call and replays scripted results.
type MockClient struct {
	results []mockReply
	calls   []Request
	mu      sync.Mutex
}

type mockReply struct {
	err    error
	result Result
}

// NewMockClient creates a mock classifier client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// QueueResult scripts a successful classification.
func (m *MockClient) QueueResult(result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockReply{result: result})
}

// QueueError scripts a failed classification.
func (m *MockClient) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockReply{err: err})
}

// Classify returns the next scripted reply, or an unclear result when
// the script is exhausted.
func (m *MockClient) Classify(_ context.Context, req Request) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)

	if len(m.results) == 0 {
		return Result{Intent: IntentUnclear, Confidence: 0.2}, nil
	}

	reply := m.results[0]
	m.results = m.results[1:]
	return reply.result, reply.err
}

// Calls returns a copy of all recorded requests.
func (m *MockClient) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
