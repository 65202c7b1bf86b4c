package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFrom(t *testing.T) {
	temp := 0.2

	tests := []struct {
		name     string
		opts     any
		wantTemp *float64
		wantMax  int64
	}{
		{name: "nil", opts: nil},
		{name: "value", opts: Settings{Temperature: &temp, MaxTokens: 64}, wantTemp: &temp, wantMax: 64},
		{name: "pointer", opts: &Settings{MaxTokens: 32}, wantMax: 32},
		{name: "nil pointer", opts: (*Settings)(nil)},
		{name: "decoded json", opts: map[string]any{"temperature": 0.2, "maxTokens": float64(128)}, wantTemp: &temp, wantMax: 128},
		{name: "map with wrong types", opts: map[string]any{"temperature": "hot", "maxTokens": 12}},
		{name: "unknown type", opts: "fast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SettingsFrom(tt.opts)
			if tt.wantTemp == nil {
				assert.Nil(t, s.Temperature)
			} else {
				require.NotNil(t, s.Temperature)
				assert.InDelta(t, *tt.wantTemp, *s.Temperature, 1e-9)
			}
			assert.Equal(t, tt.wantMax, s.MaxTokens)
		})
	}
}
