package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const (
	defaultGeminiModel = "gemini-1.5-flash"
	maxPromptChars     = 30000
)

// GeminiModel calls Google's Gemini models through generative-ai-go
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
	log         *logrus.Logger
}

// NewGeminiClient creates the Gemini SDK client
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiModel wraps an SDK client for one model name
func NewGeminiModel(client *genai.Client, model string, log *logrus.Logger) *GeminiModel {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiModel{client: client, model: model, temperature: 0.2, log: log}
}

func (g *GeminiModel) Name() string { return "gemini:" + g.model }

// Generate sends the prompt as a single user turn and concatenates the
// text parts of every candidate
func (g *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	if len(prompt) > maxPromptChars {
		g.log.WithField("chars", len(prompt)).Warn("Prompt too long, truncating")
		prompt = truncatePrompt(prompt, maxPromptChars)
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("%w: %s", ErrPromptBlocked, resp.PromptFeedback.BlockReason)
	}

	var text strings.Builder
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonUnspecified {
			g.log.WithFields(logrus.Fields{"candidate": i, "reason": cand.FinishReason}).Warn("Gemini candidate finished early")
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

// classifyGeminiError turns provider rate limits into RateLimitError,
// reading the retry delay from the Retry-After header or the RetryInfo
// error detail when present
func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests {
		return &RateLimitError{Provider: "gemini", RetryAfterHint: parseRetryAfter(gerr.Header.Get("Retry-After")), Err: err}
	}

	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		limited := aerr.HTTPCode() == http.StatusTooManyRequests
		if st := aerr.GRPCStatus(); st != nil && st.Code() == codes.ResourceExhausted {
			limited = true
		}
		if limited {
			var hint time.Duration
			if info := aerr.Details().RetryInfo; info != nil && info.GetRetryDelay() != nil {
				hint = info.GetRetryDelay().AsDuration()
			}
			return &RateLimitError{Provider: "gemini", RetryAfterHint: hint, Err: err}
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return &RateLimitError{Provider: "gemini", Err: err}
	}
	return fmt.Errorf("gemini generate: %w", err)
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
