package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/minios-linux/mnbkit/retry"
)

// ---------------------------------------------------------------------------
// Google AI (Gemini) native REST client
// ---------------------------------------------------------------------------

// GeminiClient calls POST /v1beta/models/{model}:generateContent.
type GeminiClient struct {
	prov        Provider
	http        *http.Client
	Temperature float64
	Verbose     bool
}

// NewGeminiClient returns a client for p. The HTTP client is shared by all
// concurrent calls.
func NewGeminiClient(p Provider) *GeminiClient {
	return &GeminiClient{
		prov:        p,
		http:        makeHTTPClient(p.Proxy, p.Timeout),
		Temperature: p.temperature(),
		Verbose:     p.Verbose,
	}
}

// Translate sends the rendered prompt as a single user turn.
func (c *GeminiClient) Translate(ctx context.Context, prompt, model string) (string, error) {
	model = c.prov.model(model)
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.prov.BaseURL, "/"), model)

	body, err := buildGeminiRequest("", prompt, c.Temperature)
	if err != nil {
		return "", retry.New(retry.InvalidRequest, fmt.Errorf("building request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", retry.New(retry.InvalidRequest, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.prov.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.prov.APIKey)
	}

	if c.Verbose {
		log.Printf("[DEBUG] %s: POST %s", c.prov.Name, endpoint)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportFailure(ctx, err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", transportFailure(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusFailure(resp.StatusCode, respBody, resp.Header)
	}

	text, err := extractResponseText(respBody)
	if err != nil {
		return "", retry.New(retry.Unknown, err)
	}
	return text, nil
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// extractResponseText pulls the first candidate's text out of a
// generateContent response.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	// Check for API error
	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// candidates[0].content.parts[*].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok && len(parts) > 0 {
					var sb strings.Builder
					found := false
					for _, p := range parts {
						if part, ok := p.(map[string]any); ok {
							if text, ok := part["text"].(string); ok {
								sb.WriteString(text)
								found = true
							}
						}
					}
					if found {
						return sb.String(), nil
					}
				}
			}
			if reason, ok := candidate["finishReason"].(string); ok && reason != "STOP" {
				return "", fmt.Errorf("no text in response (finishReason=%s)", reason)
			}
		}
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}
