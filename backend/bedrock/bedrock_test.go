package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/types"
)

type stubRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	out       *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntime) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.out, s.err
}

func TestCompleteReturnsTextAndUsage(t *testing.T) {
	stub := &stubRuntime{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "world"}},
		}},
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
		},
		StopReason: brtypes.StopReasonEndTurn,
	}}
	cl, err := New(stub, "anthropic.claude-3-sonnet")
	require.NoError(t, err)

	res, err := cl.Complete(context.Background(), types.CompleteRequest{System: "be nice", User: "hello", MaxTokens: 128})
	require.NoError(t, err)
	assert.Equal(t, "world", res.Text)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
	assert.Equal(t, string(brtypes.StopReasonEndTurn), res.StopReason)
	require.Len(t, stub.lastInput.System, 1)
}

func TestCompleteRejectsNonPositiveMaxTokens(t *testing.T) {
	cl, err := New(&stubRuntime{}, "m1")
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), types.CompleteRequest{User: "hi"})
	require.Error(t, err)
	var cerr *types.CompleteError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.Transient)
}

func TestCompleteWrapsProviderErrors(t *testing.T) {
	stub := &stubRuntime{err: errors.New("boom")}
	cl, err := New(stub, "m1")
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), types.CompleteRequest{User: "hi", MaxTokens: 10})
	require.Error(t, err)
	var cerr *types.CompleteError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.Transient)
}
