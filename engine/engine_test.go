package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroute/agent"
	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/internal/testutil"
)

// blockingAgent answers with its name once release is closed or fails
// with the context error.
type blockingAgent struct {
	name    string
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
}

func newBlockingAgent(name string) *blockingAgent {
	return &blockingAgent{
		name:    name,
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (a *blockingAgent) Identity() core.Identity { return core.Identity{Name: a.name} }

func (a *blockingAgent) Describe() core.AgentInfoNode {
	return core.AgentInfoNode{Type: core.AgentTypeAgent, Name: a.name}
}

func (a *blockingAgent) Generate(ctx context.Context, _ core.CallParameters) (*core.GenerationResult, error) {
	a.calls.Add(1)
	a.started <- struct{}{}
	select {
	case <-a.release:
		return &core.GenerationResult{Agent: a.name, Text: a.name, FinishReason: "stop"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *blockingAgent) Stream(ctx context.Context, params core.CallParameters) (*core.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := core.NewStream(4, cancel)
	go func() {
		res, err := a.Generate(ctx, params)
		if err != nil {
			s.EndWithError(err)
			return
		}
		_ = s.Push(ctx, core.StreamEvent{Type: core.StreamEventTextDelta, Agent: a.name, Text: res.Text})
		s.End(res)
	}()
	return s, nil
}

func scriptedAgent(name, answer string) *agent.Agent {
	m := testutil.NewScriptedModel(name+"-model", testutil.NewTurn().Text(answer).Build())
	return agent.New(name, m, func(o *agent.Options) { o.CapabilitySummary = "answers with " + answer })
}

func TestEngine_RegisterGetList(t *testing.T) {
	eng := New()

	require.NoError(t, eng.Register(scriptedAgent("zeta", "z")))
	require.NoError(t, eng.Register(scriptedAgent("alpha", "a")))
	assert.Error(t, eng.Register(nil))

	a, err := eng.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", a.Identity().Name)

	_, err = eng.Get("missing")
	var notFound *core.AgentNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)

	nodes := eng.List()
	require.Len(t, nodes, 2)
	assert.Equal(t, "alpha", nodes[0].Name)
	assert.Equal(t, "zeta", nodes[1].Name)
	assert.Equal(t, "answers with a", nodes[0].CapabilitySummary)
}

func TestEngine_Generate(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Register(scriptedAgent("helper", "hello there")))

	id, res, err := eng.Generate(context.Background(), "helper", core.CallParameters{Prompt: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, 0, eng.ActiveInvocations())
}

func TestEngine_GenerateErrors(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Register(scriptedAgent("helper", "x")))

	_, _, err := eng.Generate(context.Background(), "nobody", core.CallParameters{Prompt: "hi"})
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	_, _, err = eng.Generate(context.Background(), "helper", core.CallParameters{})
	assert.ErrorIs(t, err, core.ErrInvalidCall)
	assert.Equal(t, 0, eng.ActiveInvocations())
}

func TestEngine_InvocationIDFromContext(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Register(scriptedAgent("helper", "x")))

	ctx := WithInvocationID(context.Background(), "msg-1")
	id, _, err := eng.Generate(ctx, "helper", core.CallParameters{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
}

func TestEngine_Stream(t *testing.T) {
	eng := New()
	require.NoError(t, eng.Register(scriptedAgent("helper", "streamed answer")))

	_, s, err := eng.Stream(context.Background(), "helper", core.CallParameters{Prompt: "hi"})
	require.NoError(t, err)

	var text string
	for ev := range s.Events() {
		if ev.Type == core.StreamEventTextDelta {
			text += ev.Text
		}
	}
	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, "streamed answer", text)
	assert.Equal(t, "streamed answer", res.Text)

	require.Eventually(t, func() bool { return eng.ActiveInvocations() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEngine_ConcurrencyLimit(t *testing.T) {
	eng := New(func(o *Options) { o.Config.MaxConcurrentInvocations = 1 })
	slow := newBlockingAgent("slow")
	require.NoError(t, eng.Register(slow))

	firstDone := make(chan error, 1)
	go func() {
		_, _, err := eng.Generate(context.Background(), "slow", core.CallParameters{Prompt: "1"})
		firstDone <- err
	}()
	<-slow.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := eng.Generate(ctx, "slow", core.CallParameters{Prompt: "2"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), slow.calls.Load())

	close(slow.release)
	require.NoError(t, <-firstDone)

	_, res, err := eng.Generate(context.Background(), "slow", core.CallParameters{Prompt: "3"})
	require.NoError(t, err)
	assert.Equal(t, "slow", res.Text)
}

func TestEngine_Cancel(t *testing.T) {
	eng := New()
	slow := newBlockingAgent("slow")
	require.NoError(t, eng.Register(slow))

	ctx := WithInvocationID(context.Background(), "inv-42")
	done := make(chan error, 1)
	go func() {
		_, _, err := eng.Generate(ctx, "slow", core.CallParameters{Prompt: "wait"})
		done <- err
	}()
	<-slow.started

	require.NoError(t, eng.Cancel("inv-42"))
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.ErrorIs(t, eng.Cancel("inv-42"), ErrInvocationNotFound)
}

func TestEngine_StreamCancel(t *testing.T) {
	eng := New()
	slow := newBlockingAgent("slow")
	require.NoError(t, eng.Register(slow))

	_, s, err := eng.Stream(context.Background(), "slow", core.CallParameters{Prompt: "wait"})
	require.NoError(t, err)
	<-slow.started

	s.Cancel()
	_, err = s.Result()
	assert.ErrorIs(t, err, context.Canceled)
	require.Eventually(t, func() bool { return eng.ActiveInvocations() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEngine_Callbacks(t *testing.T) {
	m := testutil.NewScriptedModel("helper-model", testutil.NewTurn().Text("done").Build())
	eng := New()
	require.NoError(t, eng.Register(agent.New("helper", m)))

	var phases []CallbackType
	record := func(ctx context.Context, cc *CallbackContext) error {
		phases = append(phases, cc.CallbackType)
		return nil
	}
	eng.RegisterCallback(NewFunctionCallback(CallbackBeforeAgent, func(ctx context.Context, cc *CallbackContext) error {
		cc.Params.Prompt = "rewritten"
		return record(ctx, cc)
	}))
	eng.RegisterCallback(NewFunctionCallback(CallbackAfterAgent, func(ctx context.Context, cc *CallbackContext) error {
		assert.Equal(t, "done", cc.Result.Text)
		return record(ctx, cc)
	}))
	eng.RegisterCallback(NewFunctionCallback(CallbackOnError, record))

	_, _, err := eng.Generate(context.Background(), "helper", core.CallParameters{Prompt: "original"})
	require.NoError(t, err)
	assert.Equal(t, []CallbackType{CallbackBeforeAgent, CallbackAfterAgent}, phases)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, "rewritten", reqs[0].Contents[0].Text())
}

func TestEngine_BeforeCallbackRejects(t *testing.T) {
	eng := New()
	slow := newBlockingAgent("slow")
	require.NoError(t, eng.Register(slow))

	denied := errors.New("denied")
	eng.RegisterCallback(NewFunctionCallback(CallbackBeforeAgent, func(context.Context, *CallbackContext) error {
		return denied
	}))

	_, _, err := eng.Generate(context.Background(), "slow", core.CallParameters{Prompt: "x"})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, int32(0), slow.calls.Load())
	assert.Equal(t, 0, eng.ActiveInvocations())
}

func TestEngine_ErrorCallback(t *testing.T) {
	boom := errors.New("model down")
	m := testutil.NewScriptedModel("broken", testutil.NewTurn().Fail(boom).Build())
	eng := New()
	require.NoError(t, eng.Register(agent.New("broken", m)))

	var seen error
	eng.RegisterCallback(NewFunctionCallback(CallbackOnError, func(_ context.Context, cc *CallbackContext) error {
		seen = cc.Err
		return errors.New("ignored")
	}))

	_, _, err := eng.Generate(context.Background(), "broken", core.CallParameters{Prompt: "x"})
	require.ErrorIs(t, err, core.ErrAgentExecution)
	assert.ErrorIs(t, seen, boom)
}
