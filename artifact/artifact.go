package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/internal/util"
)

// Event is the payload of every artifact writer event.
type Event struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Definition describes an artifact of type T.
type Definition[T any] struct {
	name   string
	schema *util.Schema
}

// Define creates a definition. A nil schema is derived from T.
func Define[T any](name string, schema map[string]any) (*Definition[T], error) {
	if schema == nil {
		var zero T
		schema = util.CreateSchema(zero)
	}

	compiled, err := util.CompileSchema("artifact-"+name, schema)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", name, err)
	}

	return &Definition[T]{name: name, schema: compiled}, nil
}

// MustDefine is like Define but panics when the schema does not compile.
func MustDefine[T any](name string, schema map[string]any) *Definition[T] {
	d, err := Define[T](name, schema)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the artifact name.
func (d *Definition[T]) Name() string { return d.name }

// Create starts a new artifact on w. initial may be a T or any partial
// JSON-compatible value. The state is initial merged over the schema
// defaults; the emitted event carries initial as given.
func (d *Definition[T]) Create(ctx context.Context, w core.Writer, initial any) (*Handle[T], error) {
	if w == nil {
		return nil, &core.MissingWriterError{Operation: "artifact " + d.name + " create"}
	}

	data, err := util.Normalize(initial)
	if err != nil {
		return nil, d.invalid(err)
	}

	current := Merge(map[string]any(d.schema.Defaults()), data)
	if err := d.schema.Validate(current); err != nil {
		return nil, d.invalid(err)
	}

	h := &Handle[T]{def: d, id: uuid.NewString(), writer: w, current: current}
	if err := h.emit(ctx, data); err != nil {
		return nil, err
	}

	return h, nil
}

func (d *Definition[T]) invalid(err error) error {
	return &core.ValidationError{Subject: "artifact " + d.name, Message: err.Error(), Err: err}
}

// Handle is one live artifact. It is safe for concurrent use; updates are
// applied and emitted in call order.
type Handle[T any] struct {
	def    *Definition[T]
	id     string
	writer core.Writer

	mu      sync.Mutex
	current any
}

// ID returns the artifact instance id carried on every event.
func (h *Handle[T]) ID() string { return h.id }

// Update merges partial into the current state, validates and emits it. On
// failure the state is unchanged and nothing is emitted.
func (h *Handle[T]) Update(ctx context.Context, partial any) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, err := util.Normalize(partial)
	if err != nil {
		return h.def.invalid(err)
	}

	next := Merge(h.current, p)
	if err := h.def.schema.Validate(next); err != nil {
		return h.def.invalid(err)
	}

	if err := h.emit(ctx, next); err != nil {
		return err
	}
	h.current = next

	return nil
}

// Value returns a copy of the current state in generic JSON form.
func (h *Handle[T]) Value() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return util.DeepCopy(h.current)
}

// Current decodes the current state into T.
func (h *Handle[T]) Current() (T, error) {
	var out T
	b, err := json.Marshal(h.Value())
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

func (h *Handle[T]) emit(ctx context.Context, data any) error {
	ev := core.NewWriterEvent(core.WriterEventArtifact, Event{
		ID:   h.id,
		Name: h.def.name,
		Data: util.DeepCopy(data),
	})
	if err := h.writer.Write(ctx, ev); err != nil {
		return fmt.Errorf("emit artifact %s: %w", h.def.name, err)
	}
	return nil
}

// Merge applies partial onto current. Records merge key by key; every other
// value replaces current wholesale. Neither input is modified.
func Merge(current, partial any) any {
	cur, curIsRecord := current.(map[string]any)
	par, parIsRecord := partial.(map[string]any)
	if !curIsRecord || !parIsRecord || cur == nil || par == nil {
		return util.DeepCopy(partial)
	}

	out := make(map[string]any, len(cur)+len(par))
	for k, v := range cur {
		out[k] = util.DeepCopy(v)
	}
	for k, v := range par {
		out[k] = Merge(cur[k], v)
	}
	return out
}
