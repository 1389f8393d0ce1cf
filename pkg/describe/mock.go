package describe

import (
	"context"
	"sync"
)

// Mock is a Provider for tests. Set DescribeFunc to script answers; the
// prompts it receives are kept in order.
type Mock struct {
	DescribeFunc func(ctx context.Context, req *Request) (*Response, error)
	CloseFunc    func() error

	mu      sync.Mutex
	prompts []string
	closes  int
}

// NewMock always answers "I see a mock image".
func NewMock() *Mock {
	return &Mock{DescribeFunc: func(context.Context, *Request) (*Response, error) {
		return &Response{Text: "I see a mock image", Model: "mock", Provider: "mock"}, nil
	}}
}

// WithError always fails with err.
func WithError(err error) *Mock {
	return &Mock{DescribeFunc: func(context.Context, *Request) (*Response, error) {
		return nil, err
	}}
}

func (m *Mock) Describe(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	fn := m.DescribeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return fn(ctx, req)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closes++
	fn := m.CloseFunc
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Described is the number of Describe calls.
func (m *Mock) Described() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Closes is the number of Close calls.
func (m *Mock) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// LastPrompt is the prompt of the latest Describe, or "".
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

var _ Provider = (*Mock)(nil)
