package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type AnthropicConfig struct {
	APIURL string
	APIKey string
	Model  string
}

type AnthropicService struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     AnthropicConfig
	maxRetries int
	retryDelay time.Duration
}

func NewAnthropicService(config AnthropicConfig, logger *slog.Logger) *AnthropicService {
	return &AnthropicService{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		config:     config,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

func (s *AnthropicService) IsAvailable() bool {
	return s != nil && s.config.APIKey != ""
}

func (s *AnthropicService) CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("Anthropic API key is not configured")
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		response, err := s.callAnthropic(ctx, config, prompt)
		if err == nil {
			return response, nil
		}

		if attempt == s.maxRetries {
			s.logger.Error("Error calling Anthropic API after multiple attempts",
				slog.Int("attempts", s.maxRetries),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to call Anthropic API after %d attempts: %w", s.maxRetries, err)
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

	return "", fmt.Errorf("failed to call Anthropic API after exhausting all retry attempts")
}

func (s *AnthropicService) callAnthropic(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	apiURL := stringFromConfig(config, "api_url", s.config.APIURL)
	apiKey := stringFromConfig(config, "api_key", s.config.APIKey)
	modelName := stringFromConfig(config, "model_name", s.config.Model)
	params := paramsFromConfig(config)

	body := map[string]interface{}{
		"model": modelName,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  int(safeParseFloat(params["max_tokens"], 2048)),
		"temperature": safeParseFloat(params["temperature"], 0.7),
	}
	if instruction := stringFromConfig(config, "system_instruction", ""); instruction != "" {
		body["system"] = instruction
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newAnthropicHttpError(resp)
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	for _, block := range result.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("text not found in Anthropic API response")
}
