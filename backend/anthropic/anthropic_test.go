package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwave/agentwave/types"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteReturnsTextAndUsage(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	cl, err := New(stub, "claude-3.5-sonnet")
	require.NoError(t, err)

	res, err := cl.Complete(context.Background(), types.CompleteRequest{System: "be nice", User: "hello", MaxTokens: 128})
	require.NoError(t, err)
	assert.Equal(t, "world", res.Text)
	assert.Equal(t, 10, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
	assert.Equal(t, string(sdk.StopReasonEndTurn), res.StopReason)
	assert.Equal(t, "be nice", stub.lastParams.System[0].Text)
}

func TestCompleteFallsBackToDefaultModel(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	cl, err := New(stub, "claude-3.5-sonnet")
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), types.CompleteRequest{User: "hi", MaxTokens: 1})
	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-3.5-sonnet"), stub.lastParams.Model)
}

func TestCompleteRejectsNonPositiveMaxTokens(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, "m1")
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), types.CompleteRequest{User: "hi"})
	require.Error(t, err)
	var cerr *types.CompleteError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.Transient)
}

func TestCompleteReportsCancellationAsNonTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub := &stubMessagesClient{err: context.Canceled}
	cl, err := New(stub, "m1")
	require.NoError(t, err)

	_, err = cl.Complete(ctx, types.CompleteRequest{User: "hi", MaxTokens: 10})
	require.Error(t, err)
	var cerr *types.CompleteError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, cerr.Transient)
}
