package llm_service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexService talks to Gemini models through Vertex AI using application
// default credentials instead of an API key.
type VertexService struct {
	client          *genai.Client
	logger          *slog.Logger
	extractionModel string
	generationModel string
}

func NewVertexService(ctx context.Context, projectID, region, extractionModel, generationModel string, logger *slog.Logger) (*VertexService, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexService: projectID and region cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexService{
		client:          client,
		logger:          logger,
		extractionModel: strings.TrimPrefix(extractionModel, "models/"),
		generationModel: strings.TrimPrefix(generationModel, "models/"),
	}, nil
}

func (s *VertexService) IsAvailable() bool {
	return s != nil && s.client != nil
}

func (s *VertexService) ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("vertex AI client is not configured")
	}

	model := s.client.GenerativeModel(s.extractionModel)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "text/plain",
		Temperature:      genai.Ptr[float32](0.0),
	}

	resp, err := model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data}, genai.Text(instruction))
	if err != nil {
		s.logger.Error("Call to Vertex AI for extraction failed",
			slog.String("mime_type", mimeType),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to extract text with vertex AI: %w", err)
	}

	return responseText(resp), nil
}

func (s *VertexService) CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error) {
	if !s.IsAvailable() {
		return "", fmt.Errorf("vertex AI client is not configured")
	}
	params := paramsFromConfig(config)

	model := s.client.GenerativeModel(stringFromConfig(config, "model_name", s.generationModel))
	if instruction := stringFromConfig(config, "system_instruction", ""); instruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(instruction)},
		}
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(float32(safeParseFloat(params["temperature"], 0.7))),
		TopP:            genai.Ptr(float32(safeParseFloat(params["top_p"], 0.95))),
		MaxOutputTokens: genai.Ptr(int32(safeParseFloat(params["max_tokens"], 8192))),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		s.logger.Error("Call to Vertex AI failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to generate content with vertex AI: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from vertex AI")
	}
	return text, nil
}

func (s *VertexService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
