package generator

import (
	"context"

	"github.com/hyperjump/kotae/internal/ollama"
)

// OllamaModel adapts the Ollama HTTP client to the Model contract.
type OllamaModel struct {
	client *ollama.Client
	model  string
}

// NewOllamaModel creates an adapter generating with the named model.
func NewOllamaModel(client *ollama.Client, model string) *OllamaModel {
	return &OllamaModel{client: client, model: model}
}

func (m *OllamaModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return m.client.Generate(ctx, m.model, prompt, maxTokens)
}
