package llm_service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type GeminiConfig struct {
	// APIURL is the API root, e.g. https://generativelanguage.googleapis.com/v1beta.
	APIURL          string
	APIKey          string
	ExtractionModel string
	GenerationModel string
}

type GeminiService struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     GeminiConfig
	maxRetries int
	retryDelay time.Duration
}

func NewGeminiService(config GeminiConfig, logger *slog.Logger) *GeminiService {
	return &GeminiService{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		config:     config,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

func (s *GeminiService) IsAvailable() bool {
	return s != nil && s.config.APIKey != ""
}

// CallLLM generates an answer. It retries transient failures; callers in the
// ingestion path use ExtractText instead, which never retries.
func (s *GeminiService) CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("gemini API key is not configured")
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		response, err := s.callGemini(ctx, config, prompt)
		if err == nil {
			return response, nil
		}

		if httpErr, ok := err.(*GeminiHttpError); ok && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
			s.logger.Error("Gemini API rejected the request",
				slog.Int("status_code", httpErr.StatusCode),
				slog.String("status", httpErr.Status),
				slog.String("error_message", httpErr.Message))
			return "", err
		}

		if attempt == s.maxRetries {
			s.logger.Error("Error calling Gemini API after multiple attempts",
				slog.Int("attempts", s.maxRetries),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to call Gemini API after %d attempts: %w", s.maxRetries, err)
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

	return "", fmt.Errorf("failed to call Gemini API after exhausting all retry attempts")
}

func (s *GeminiService) callGemini(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	modelName := stringFromConfig(config, "model_name", s.config.GenerationModel)
	apiURL := stringFromConfig(config, "api_url", s.generateURL(modelName))
	apiKey := stringFromConfig(config, "api_key", s.config.APIKey)
	params := paramsFromConfig(config)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      safeParseFloat(params["temperature"], 0.7),
			"topK":             safeParseFloat(params["top_k"], 40),
			"topP":             safeParseFloat(params["top_p"], 0.95),
			"maxOutputTokens":  safeParseFloat(params["max_tokens"], 8192.0),
			"responseMimeType": "text/plain",
		},
	}
	if instruction := stringFromConfig(config, "system_instruction", ""); instruction != "" {
		payload["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": instruction}},
		}
	}

	return s.generate(ctx, apiURL, apiKey, payload)
}

// ExtractText sends the raw file inline and asks the model to transcribe it.
func (s *GeminiService) ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("gemini API key is not configured")
	}

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]interface{}{
					{
						"inline_data": map[string]string{
							"mime_type": mimeType,
							"data":      base64.StdEncoding.EncodeToString(data),
						},
					},
					{"text": instruction},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.0,
			"responseMimeType": "text/plain",
		},
	}

	start := time.Now()
	text, err := s.generate(ctx, s.generateURL(s.config.ExtractionModel), s.config.APIKey, payload)
	if err != nil {
		s.logger.Error("Gemini document extraction failed",
			slog.String("mime_type", mimeType),
			slog.Int("data_size", len(data)),
			slog.String("error", err.Error()))
		return "", err
	}

	s.logger.Info("Gemini document extraction completed",
		slog.String("model", s.config.ExtractionModel),
		slog.Int("data_size", len(data)),
		slog.Int("text_length", len(text)),
		slog.Duration("duration", time.Since(start)))

	return text, nil
}

func (s *GeminiService) generateURL(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent", s.config.APIURL, strings.TrimPrefix(model, "models/"))
}

func (s *GeminiService) generate(ctx context.Context, apiURL, apiKey string, payload map[string]interface{}) (string, error) {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewGeminiHttpError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var result generateContentResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(result.Candidates) == 0 {
		if result.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked the prompt: %s", result.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("unexpected response format from Gemini API")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return text.String(), nil
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}
