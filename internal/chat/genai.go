package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/graaaaa/sms900/internal/config"
)

// GenAICompleter completes prompts with the Gemini API.
type GenAICompleter struct {
	client *genai.Client
}

// NewGenAICompleter creates a Gemini client for apiKey.
func NewGenAICompleter(ctx context.Context, apiKey config.Secret) (*GenAICompleter, error) {
	if apiKey.IsEmpty() {
		return nil, errors.New("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey.Value(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}
	return &GenAICompleter{client: client}, nil
}

// Complete implements Completer.
func (c *GenAICompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
