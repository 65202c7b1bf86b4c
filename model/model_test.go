package model

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroute/core"
)

func collect(t *testing.T, out <-chan Response, errCh <-chan error) ([]Response, error) {
	t.Helper()

	var responses []Response
	for r := range out {
		responses = append(responses, r)
	}
	return responses, <-errCh
}

func userRequest(prompt string, stream bool) Request {
	return Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, prompt)},
		Stream:   stream,
	}
}

func TestMockModel_Generate(t *testing.T) {
	m := NewMockModel("mock-1", "mock")
	m.AddResponse("ping", "pong")

	t.Run("canned", func(t *testing.T) {
		out, errCh := m.Generate(context.Background(), userRequest("ping", false))
		responses, err := collect(t, out, errCh)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		assert.False(t, responses[0].Partial)
		assert.Equal(t, "pong", responses[0].Content.Text())
		assert.Equal(t, "stop", responses[0].FinishReason)
	})

	t.Run("default", func(t *testing.T) {
		out, errCh := m.Generate(context.Background(), userRequest("hello", false))
		responses, err := collect(t, out, errCh)
		require.NoError(t, err)
		require.Len(t, responses, 1)
		assert.Equal(t, "Mock response to: hello", responses[0].Content.Text())
	})

	t.Run("no contents", func(t *testing.T) {
		out, errCh := m.Generate(context.Background(), Request{})
		responses, err := collect(t, out, errCh)
		assert.Empty(t, responses)
		assert.EqualError(t, err, "no contents provided")
	})
}

func TestMockModel_Stream(t *testing.T) {
	m := NewMockModel("mock-1", "mock")
	m.AddResponse("ping", "pong")

	out, errCh := m.Generate(context.Background(), userRequest("ping", true))
	responses, err := collect(t, out, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 5)

	var sb strings.Builder
	for _, r := range responses[:4] {
		assert.True(t, r.Partial)
		sb.WriteString(r.Content.Text())
	}
	assert.Equal(t, "pong", sb.String())

	final := responses[4]
	assert.False(t, final.Partial)
	assert.Equal(t, "pong", final.Content.Text())
}

func TestMockModel_StopsOnCancel(t *testing.T) {
	m := NewMockModel("mock-1", "mock")
	m.AddResponse("long", strings.Repeat("x", 100))

	ctx, cancel := context.WithCancel(context.Background())
	out, errCh := m.Generate(ctx, userRequest("long", true))

	<-out
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("generation kept running after cancel")
	}
}

func TestSend(t *testing.T) {
	out := make(chan Response)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, Send(ctx, out, Response{}))

	buffered := make(chan Response, 1)
	assert.True(t, Send(context.Background(), buffered, Response{ID: "r1"}))
	assert.Equal(t, "r1", (<-buffered).ID)
}
