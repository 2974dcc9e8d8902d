// Package anthropic adapts the Anthropic Claude Messages API to
// types.AgentBackend.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/meshwave/agentwave/types"
)

// MessagesClient captures the subset of the Anthropic SDK used by this
// adapter, so tests can supply a fake in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements types.AgentBackend on top of Anthropic Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

var _ types.AgentBackend = (*Client)(nil)

// New builds a Client from an Anthropic Messages client and a default
// model identifier used when CompleteRequest.Model is empty.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// client, reading ANTHROPIC_API_KEY via sdk.NewClient's option defaults.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, defaultModel)
}

// Complete implements types.AgentBackend.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		return types.CompleteResult{}, &types.CompleteError{Message: "max_tokens must be positive"}
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(model),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "cancelled"}
		}
		return types.CompleteResult{}, &types.CompleteError{Transient: isTransient(err), Message: fmt.Sprintf("anthropic messages.new: %v", err)}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return types.CompleteResult{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		StopReason:   string(msg.StopReason),
	}, nil
}

// isTransient classifies rate-limit and server errors as retryable;
// validation (4xx) errors are permanent.
func isTransient(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
