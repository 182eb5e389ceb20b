package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type OpenAIConfig struct {
	// APIURL is the API root, e.g. https://api.openai.com/v1.
	APIURL string
	APIKey string
	Model  string
}

type OpenAIService struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     OpenAIConfig
	maxRetries int
	retryDelay time.Duration
}

func NewOpenAIService(config OpenAIConfig, logger *slog.Logger) *OpenAIService {
	return &OpenAIService{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		config:     config,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

func (s *OpenAIService) IsAvailable() bool {
	return s != nil && s.config.APIKey != ""
}

func (s *OpenAIService) CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("OpenAI API key is not configured")
	}
	modelName := stringFromConfig(config, "model_name", s.config.Model)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		response, err := s.callOpenAI(ctx, config, prompt)
		if err == nil {
			return response, nil
		}

		if httpErr, ok := err.(*OpenAIHttpError); ok {
			if httpErr.StatusCode == http.StatusTooManyRequests {
				s.logger.Error("OpenAI API quota exceeded",
					slog.String("error_type", httpErr.ErrorType),
					slog.String("error_message", httpErr.Message),
					slog.String("model", modelName),
					slog.Int("status_code", httpErr.StatusCode))
				return "", fmt.Errorf("OpenAI quota exceeded: %s (Type: %s)", httpErr.Message, httpErr.ErrorType)
			}

			s.logger.Error("OpenAI API error",
				slog.Int("attempt", attempt),
				slog.Int("status_code", httpErr.StatusCode),
				slog.String("error_type", httpErr.ErrorType),
				slog.String("error_message", httpErr.Message),
				slog.String("raw_body", httpErr.RawBody))
		}

		if attempt == s.maxRetries {
			s.logger.Error("Error calling OpenAI API after multiple attempts",
				slog.Int("attempts", s.maxRetries),
				slog.String("error", err.Error()),
				slog.String("model", modelName))
			return "", fmt.Errorf("failed to call OpenAI API after %d attempts: %w", s.maxRetries, err)
		}

		s.logger.Warn("Attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", s.retryDelay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}

	return "", fmt.Errorf("failed to call OpenAI API after exhausting all retry attempts")
}

func (s *OpenAIService) callOpenAI(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	apiURL := stringFromConfig(config, "api_url", s.config.APIURL+"/chat/completions")
	apiKey := stringFromConfig(config, "api_key", s.config.APIKey)
	modelName := stringFromConfig(config, "model_name", s.config.Model)
	params := paramsFromConfig(config)

	systemInstruction := stringFromConfig(config, "system_instruction", "You are a helpful assistant.")
	messages := []map[string]string{
		{"role": "system", "content": systemInstruction},
		{"role": "user", "content": prompt},
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":       modelName,
		"messages":    messages,
		"temperature": safeParseFloat(params["temperature"], 0.7),
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewOpenAIHttpError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("unexpected response format from OpenAI API")
	}

	return result.Choices[0].Message.Content, nil
}
