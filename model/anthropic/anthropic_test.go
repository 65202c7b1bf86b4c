package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/model"
)

type fakeAPI struct {
	mu      sync.Mutex
	body    map[string]any
	respond func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) lastBody() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body
}

func newFakeAPI(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*fakeAPI, *Model) {
	t.Helper()

	f := &fakeAPI{respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.mu.Lock()
		f.body = body
		f.mu.Unlock()
		f.respond(w, r)
	}))
	t.Cleanup(srv.Close)

	m := NewModel(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL + "/"
	})
	return f, m
}

type sseEvent struct{ name, data string }

func writeEvents(w http.ResponseWriter, events ...sseEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
	}
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

var (
	messageStart = sseEvent{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-20241022","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}`}
	textStart    = sseEvent{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`}
	textStop     = sseEvent{"content_block_stop", `{"type":"content_block_stop","index":0}`}
	messageDelta = sseEvent{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":3}}`}
	messageStop  = sseEvent{"message_stop", `{"type":"message_stop"}`}
)

func textDelta(text string) sseEvent {
	b, _ := json.Marshal(text)
	return sseEvent{"content_block_delta", fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%s}}`, b)}
}

func drain(t *testing.T, out <-chan model.Response, errCh <-chan error) ([]model.Response, error) {
	t.Helper()

	var responses []model.Response
	for r := range out {
		responses = append(responses, r)
	}
	return responses, <-errCh
}

func TestModel_Generate(t *testing.T) {
	f, m := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",`+
			`"content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":"tu_1","name":"lookup","input":{"q":"x"}}],`+
			`"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`)
	})

	req := model.Request{
		Instructions: "Be brief.",
		Contents: []core.Content{
			core.NewTextContent(core.RoleSystem, "Answer in English."),
			core.NewTextContent(core.RoleUser, "look it up"),
			{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID: "tu_0", Name: "lookup", Arguments: `{"q":"w"}`,
			}}}},
			{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID: "tu_0", Name: "lookup", Error: "boom",
			}}}},
		},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "lookup",
				Description: "Looks things up",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"q": map[string]any{"type": "string"}},
					"required":   []any{"q"},
				},
			},
		}},
		Options: map[string]any{"maxTokens": float64(256)},
	}

	out, errCh := m.Generate(context.Background(), req)
	responses, err := drain(t, out, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	res := responses[0]
	assert.Equal(t, "msg_1", res.ID)
	assert.Equal(t, "tool_use", res.FinishReason)
	assert.Equal(t, "Let me check.", res.Content.Text())
	require.NotNil(t, res.Usage)
	assert.Equal(t, 15, res.Usage.TotalTokens)

	calls := res.Content.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.Equal(t, "lookup", calls[0].Name)
	assert.JSONEq(t, `{"q":"x"}`, calls[0].Arguments)

	body := f.lastBody()
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-9)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 2)
	assert.Equal(t, "Be brief.", system[0].(map[string]any)["text"])
	assert.Equal(t, "Answer in English.", system[1].(map[string]any)["text"])

	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].(map[string]any)["name"])

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)

	toolTurn := messages[2].(map[string]any)
	assert.Equal(t, "user", toolTurn["role"])
	block := toolTurn["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "tu_0", block["tool_use_id"])
	assert.Equal(t, true, block["is_error"])
}

func TestModel_GenerateDefaultsFinishReason(t *testing.T) {
	_, m := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",`+
			`"content":[{"type":"text","text":"hi"}],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	out, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
	})
	responses, err := drain(t, out, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "stop", responses[0].FinishReason)
}

func TestModel_Stream(t *testing.T) {
	_, m := newFakeAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEvents(w, messageStart, textStart, textDelta("Hel"), textDelta("lo"), textStop, messageDelta, messageStop)
	})

	out, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Stream:   true,
	})
	responses, err := drain(t, out, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 3)

	assert.True(t, responses[0].Partial)
	assert.Equal(t, "Hel", responses[0].Content.Text())
	assert.True(t, responses[1].Partial)
	assert.Equal(t, "lo", responses[1].Content.Text())

	final := responses[2]
	assert.False(t, final.Partial)
	assert.Equal(t, "Hello", final.Content.Text())
	assert.Equal(t, "end_turn", final.FinishReason)
	assert.Equal(t, "msg_1", final.ID)
}

func TestModel_StreamStopsWhenContextEnds(t *testing.T) {
	_, m := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		events := []sseEvent{messageStart, textStart}
		for i := 0; i < 200; i++ {
			events = append(events, textDelta("tok "))
		}
		writeEvents(w, events...)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, errCh := m.Generate(ctx, model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Stream:   true,
	})

	first := <-out
	assert.True(t, first.Partial)

	// Nobody reads out anymore; the producer must still finish.
	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("stream producer still running after cancel")
	}
}

func TestNewModel_BaseURL(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_3","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",`+
			`"content":[{"type":"text","text":"routed"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})

	out, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
	})
	responses, err := drain(t, out, errCh)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, "routed", responses[0].Content.Text())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)
}
