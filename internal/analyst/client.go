// Package analyst wraps the external analyst-model endpoint used for pair
// classification, shock parsing, and narrative generation. It speaks the
// OpenAI-compatible chat completion protocol against a configurable base
// URL, and tolerates prose-wrapped JSON in the model's response via a
// three-strategy extraction fallback.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client talks to the configured analyst-model endpoint.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// New creates a Client pointed at the given OpenAI-compatible endpoint.
func New(endpoint, apiKey, model string, logger *slog.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With("component", "analyst"),
	}
}

// ChatJSON sends a system/user prompt pair requesting a structured JSON
// object in response, and unmarshals the first well-formed object found in
// the reply into result.
func (c *Client) ChatJSON(ctx context.Context, systemPrompt, userPrompt string, result any) error {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return fmt.Errorf("analyst chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("analyst chat completion: no choices returned")
	}

	content := resp.Choices[0].Message.Content
	obj, err := ExtractJSON(content)
	if err != nil {
		return fmt.Errorf("analyst response: %w", err)
	}
	if err := json.Unmarshal(obj, result); err != nil {
		return fmt.Errorf("analyst response unmarshal: %w", err)
	}
	return nil
}

// ExtractJSON applies the three fallback strategies spec §4.4/§9 mandate:
// (i) raw parse, (ii) strip code-fence wrappers and parse, (iii) extract the
// substring from the first '{' to the last '}' and parse. The model
// occasionally wraps its JSON in prose or markdown fences; this recovers it
// rather than failing the whole unit of work.
func ExtractJSON(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if stripped := stripCodeFences(trimmed); json.Valid([]byte(stripped)) {
		return json.RawMessage(stripped), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, fmt.Errorf("no well-formed JSON object found in analyst response")
}

func stripCodeFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json", "```")
	parts := strings.Split(s, "```")
	if len(parts) >= 3 {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}
