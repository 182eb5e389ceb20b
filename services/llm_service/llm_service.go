package llm_service

import (
	"context"
	"strconv"
)

// LLMService generates text from a prompt. config carries per-call settings:
// model_name, api_url, api_key, system_instruction and a parameters map
// (temperature, max_tokens, top_p, top_k).
type LLMService interface {
	CallLLM(ctx context.Context, config map[string]interface{}, prompt string) (string, error)
	IsAvailable() bool
}

// DocumentReader turns raw file bytes into plain text following a
// natural-language instruction.
type DocumentReader interface {
	ExtractText(ctx context.Context, data []byte, mimeType, instruction string) (string, error)
	IsAvailable() bool
}

func safeParseFloat(value interface{}, defaultValue float64) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultValue
}

func stringFromConfig(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func paramsFromConfig(config map[string]interface{}) map[string]interface{} {
	params, ok := config["parameters"].(map[string]interface{})
	if !ok {
		return make(map[string]interface{})
	}
	return params
}
