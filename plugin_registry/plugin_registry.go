package plugin_registry

import (
	"fmt"
	"sort"

	"github.com/serisow/sagefemme/services/llm_service"
)

// PluginRegistry holds the named AI providers the service can be configured
// with: text generation services and PDF document readers.
type PluginRegistry struct {
	llmServices     map[string]llm_service.LLMService
	documentReaders map[string]llm_service.DocumentReader
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		llmServices:     make(map[string]llm_service.LLMService),
		documentReaders: make(map[string]llm_service.DocumentReader),
	}
}

// RegisterLLMService registers a new LLM service
func (pr *PluginRegistry) RegisterLLMService(name string, service llm_service.LLMService) {
	pr.llmServices[name] = service
}

// GetLLMService returns an LLM service by name
func (pr *PluginRegistry) GetLLMService(name string) (llm_service.LLMService, bool) {
	service, ok := pr.llmServices[name]
	return service, ok
}

func (pr *PluginRegistry) RegisterDocumentReader(name string, reader llm_service.DocumentReader) {
	pr.documentReaders[name] = reader
}

func (pr *PluginRegistry) GetDocumentReader(name string) (llm_service.DocumentReader, bool) {
	reader, ok := pr.documentReaders[name]
	return reader, ok
}

// ResolveLLMService returns the named service or an error listing the
// registered names.
func (pr *PluginRegistry) ResolveLLMService(name string) (llm_service.LLMService, error) {
	if service, ok := pr.llmServices[name]; ok {
		return service, nil
	}
	return nil, fmt.Errorf("unknown generation provider: %s (registered: %v)", name, sortedKeys(pr.llmServices))
}

func (pr *PluginRegistry) ResolveDocumentReader(name string) (llm_service.DocumentReader, error) {
	if reader, ok := pr.documentReaders[name]; ok {
		return reader, nil
	}
	return nil, fmt.Errorf("unknown extraction backend: %s (registered: %v)", name, sortedKeys(pr.documentReaders))
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
