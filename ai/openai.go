package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	maxTokens          = 2048
)

// OpenAIModel calls chat completion models through go-openai
type OpenAIModel struct {
	client *openai.Client
	model  string
}

// NewOpenAIModel creates a model client for the given API key
func NewOpenAIModel(apiKey, model string) *OpenAIModel {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIModel{client: openai.NewClient(apiKey), model: model}
}

func (o *OpenAIModel) Name() string { return "openai:" + o.model }

// Generate sends the prompt as one user message
func (o *OpenAIModel) Generate(ctx context.Context, prompt string) (string, error) {
	if len(prompt) > maxPromptChars {
		prompt = truncatePrompt(prompt, maxPromptChars)
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	// reasoning models reject MaxTokens
	if strings.HasPrefix(o.model, "o1") || strings.HasPrefix(o.model, "o3") || strings.HasPrefix(o.model, "o4") || strings.HasPrefix(o.model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Provider: "openai", Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Provider: "openai", Err: err}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
