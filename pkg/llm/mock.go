package llm

import (
	"context"
)

// MockClient is a configurable Client for tests.
type MockClient struct {
	// Response and Err are the canned results returned by Complete.
	Response string
	Err      error

	// CompleteFunc overrides the canned results when set.
	CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Call tracking for verification.
	CompleteCalls int
	LastSystem    string
	LastPrompt    string
}

var _ Client = (*MockClient)(nil)

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.CompleteCalls++
	m.LastSystem = systemPrompt
	m.LastPrompt = userPrompt

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, systemPrompt, userPrompt)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}
