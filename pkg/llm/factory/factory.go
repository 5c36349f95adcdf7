package factory

import (
	"fmt"

	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/llm/huggingface"
	"study-pipeline-be/pkg/llm/ollama"
	"study-pipeline-be/pkg/llm/resilient"
)

// NewLLMProvider builds the configured backend wrapped with timeout, retry and breaker.
func NewLLMProvider(providerType, modelName, baseURL, apiKey string, cfg resilient.Config) (llm.Provider, error) {
	var inner llm.Provider
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		inner = ollama.NewOllamaProvider(baseURL, modelName)
	case "huggingface", "openai":
		inner = huggingface.NewHuggingFaceProvider(apiKey, baseURL, modelName)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
	return resilient.New(inner, cfg), nil
}
