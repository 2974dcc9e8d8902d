// Package openai adapts the OpenAI Chat Completions API to
// types.AgentBackend.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/meshwave/agentwave/types"
)

// ChatClient captures the subset of the openai-go client used by this
// adapter, so tests can supply a fake in place of the real
// Chat.Completions service.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements types.AgentBackend via the OpenAI Chat Completions API.
type Client struct {
	chat         ChatClient
	defaultModel string
}

var _ types.AgentBackend = (*Client)(nil)

// New builds a Client from a ChatClient and a default model identifier
// used when CompleteRequest.Model is empty.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	defaultModel = strings.TrimSpace(defaultModel)
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, defaultModel)
}

// Complete implements types.AgentBackend.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.defaultModel
	}
	if req.MaxTokens <= 0 {
		return types.CompleteResult{}, &types.CompleteError{Message: "max_tokens must be positive"}
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.MaxTokens)),
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "cancelled"}
		}
		return types.CompleteResult{}, &types.CompleteError{Transient: isTransient(err), Message: fmt.Sprintf("openai chat completion: %v", err)}
	}

	var text, stop string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	return types.CompleteResult{
		Text:         text,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		StopReason:   stop,
	}, nil
}

// isTransient classifies rate-limit and server errors as retryable;
// validation (4xx) errors are permanent.
func isTransient(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
