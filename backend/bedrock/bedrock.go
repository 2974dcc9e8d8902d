// Package bedrock adapts the AWS Bedrock Converse API to
// types.AgentBackend.
package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/meshwave/agentwave/types"
)

// RuntimeClient captures the subset of the AWS Bedrock runtime client used
// by this adapter, so tests can supply a fake in place of
// *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements types.AgentBackend on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

var _ types.AgentBackend = (*Client)(nil)

// New builds a Client from a Bedrock runtime client and a default model
// identifier used when CompleteRequest.Model is empty.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

// Complete implements types.AgentBackend.
func (c *Client) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	if req.MaxTokens <= 0 {
		return types.CompleteResult{}, &types.CompleteError{Message: "max_tokens must be positive"}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []brtypes.Message{
			{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: req.User}},
			},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		},
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: "cancelled"}
		}
		return types.CompleteResult{}, &types.CompleteError{Transient: isTransient(err), Message: fmt.Sprintf("bedrock converse: %v", err)}
	}

	var text, stop string
	var inputTokens, outputTokens int
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text += tb.Value
			}
		}
	}
	stop = string(out.StopReason)
	if out.Usage != nil {
		inputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		outputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return types.CompleteResult{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		StopReason:   stop,
	}, nil
}

// isTransient classifies throttling and 5xx responses as retryable;
// validation errors are permanent.
func isTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException", "InternalServerException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 429 || respErr.HTTPStatusCode() >= 500
	}
	return false
}
