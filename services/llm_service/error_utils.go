package llm_service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiErrorBody matches the error envelope shared by OpenAI, Gemini and Anthropic.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

type OpenAIHttpError struct {
	StatusCode int
	Message    string
	ErrorType  string
	RawBody    string
}

func (e *OpenAIHttpError) Error() string {
	return fmt.Sprintf("OpenAI API error (HTTP %d): %s (Type: %s)", e.StatusCode, e.Message, e.ErrorType)
}

type GeminiHttpError struct {
	StatusCode int
	Message    string
	Status     string
	RawBody    string
}

func (e *GeminiHttpError) Error() string {
	return fmt.Sprintf("Gemini API error (HTTP %d): %s (Status: %s)", e.StatusCode, e.Message, e.Status)
}

type AnthropicHttpError struct {
	StatusCode int
	Message    string
	ErrorType  string
	RawBody    string
}

func (e *AnthropicHttpError) Error() string {
	return fmt.Sprintf("Anthropic API error (HTTP %d): %s (Type: %s)", e.StatusCode, e.Message, e.ErrorType)
}

// extractErrorDetails reads the body of a failed response and parses the
// provider error envelope when there is one.
func extractErrorDetails(resp *http.Response) (string, *apiErrorBody) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return string(body), &apiErr
	}

	return string(body), nil
}

func NewOpenAIHttpError(resp *http.Response) *OpenAIHttpError {
	rawBody, apiErr := extractErrorDetails(resp)
	httpErr := &OpenAIHttpError{
		StatusCode: resp.StatusCode,
		RawBody:    rawBody,
		Message:    "Unknown error",
		ErrorType:  "unknown",
	}
	if apiErr != nil {
		httpErr.Message = apiErr.Error.Message
		httpErr.ErrorType = apiErr.Error.Type
	}
	return httpErr
}

func NewGeminiHttpError(resp *http.Response) *GeminiHttpError {
	rawBody, apiErr := extractErrorDetails(resp)
	httpErr := &GeminiHttpError{
		StatusCode: resp.StatusCode,
		RawBody:    rawBody,
		Message:    "Unknown error",
		Status:     "UNKNOWN",
	}
	if apiErr != nil {
		httpErr.Message = apiErr.Error.Message
		httpErr.Status = apiErr.Error.Status
	}
	return httpErr
}

func newAnthropicHttpError(resp *http.Response) *AnthropicHttpError {
	rawBody, apiErr := extractErrorDetails(resp)
	httpErr := &AnthropicHttpError{
		StatusCode: resp.StatusCode,
		RawBody:    rawBody,
		Message:    "Unknown error",
		ErrorType:  "unknown",
	}
	if apiErr != nil {
		httpErr.Message = apiErr.Error.Message
		httpErr.ErrorType = apiErr.Error.Type
	}
	return httpErr
}
