package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroute/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, core.CallParameters) (string, error) {
	return m.text, m.err
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), core.CallParameters{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), core.CallParameters{})
	require.NoError(t, err)
	assert.Equal(t, "dynamic", got)

	boom := errors.New("boom")
	_, err = NewInstructionFromProvider(mockProvider{err: boom}).Resolve(context.Background(), core.CallParameters{})
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, p core.CallParameters) (string, error) {
		return "prompt was " + p.Prompt, nil
	})

	got, err := inst.Resolve(context.Background(), core.CallParameters{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "prompt was hello", got)
}
