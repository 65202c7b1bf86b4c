package model

// Settings are per-call generation knobs passed as core.CallParameters.Options.
// Zero values leave the adapter's configured defaults in place.
type Settings struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int64    `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
}

// SettingsFrom extracts Settings from an opaque options value. Both Settings,
// *Settings and the JSON-decoded map form are recognized.
func SettingsFrom(opts any) Settings {
	switch v := opts.(type) {
	case Settings:
		return v
	case *Settings:
		if v != nil {
			return *v
		}
	case map[string]any:
		var s Settings
		if t, ok := v["temperature"].(float64); ok {
			s.Temperature = &t
		}
		if mt, ok := v["maxTokens"].(float64); ok {
			s.MaxTokens = int64(mt)
		}
		return s
	}
	return Settings{}
}
