package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// OpenAI-compatible chat completions (OpenAI, Groq, Ollama, custom)
// ---------------------------------------------------------------------------

// OpenAIClient wraps a go-openai client.
type OpenAIClient struct {
	prov        Provider
	client      *openai.Client
	Temperature float32
	Verbose     bool
}

// NewOpenAIClient returns a client for any OpenAI-compatible endpoint.
func NewOpenAIClient(p Provider) *OpenAIClient {
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(p.BaseURL, "/"), "/chat/completions")
	}
	cfg.HTTPClient = makeHTTPClient(p.Proxy, p.Timeout)
	return &OpenAIClient{
		prov:        p,
		client:      openai.NewClientWithConfig(cfg),
		Temperature: float32(p.temperature()),
		Verbose:     p.Verbose,
	}
}

// Translate sends the prompt as a single user message.
func (c *OpenAIClient) Translate(ctx context.Context, prompt, model string) (string, error) {
	model = c.prov.model(model)
	if c.Verbose {
		log.Printf("[DEBUG] %s: chat completion, model %s", c.prov.Name, model)
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Temperature: c.Temperature,
		},
	)
	if err != nil {
		return "", openAIFailure(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return "", retry.Newf(retry.Unknown, "empty response from %s", c.prov.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

// openAIFailure maps go-openai errors onto failure kinds.
func openAIFailure(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retry.New(kindForStatus(apiErr.HTTPStatusCode), fmt.Errorf("OpenAI API error: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retry.New(kindForStatus(reqErr.HTTPStatusCode), fmt.Errorf("OpenAI request error: %w", err))
	}
	return transportFailure(ctx, err)
}
