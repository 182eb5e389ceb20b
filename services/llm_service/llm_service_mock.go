package llm_service

import (
	"context"
)

type MockLLMService struct {
	CallLLMFunc func(ctx context.Context, config map[string]interface{}, prompt string) (string, error)
	Unavailable bool
}

func (m *MockLLMService) CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	if m.CallLLMFunc != nil {
		return m.CallLLMFunc(ctx, config, prompt)
	}
	return "mock response", nil
}

func (m *MockLLMService) IsAvailable() bool {
	return !m.Unavailable
}

type MockDocumentReader struct {
	ExtractTextFunc func(ctx context.Context, data []byte, mimeType, instruction string) (string, error)
	Unavailable     bool
}

func (m *MockDocumentReader) ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error) {
	if m.ExtractTextFunc != nil {
		return m.ExtractTextFunc(ctx, data, mimeType, instruction)
	}
	return string(data), nil
}

func (m *MockDocumentReader) IsAvailable() bool {
	return !m.Unavailable
}
