package manager

// SanityReport describes runtime checks for the inference engine.
type SanityReport struct {
	LlamaBuilt      bool   `json:"llama_built"`
	EngineAvailable bool   `json:"engine_available"`
	Error           string `json:"error,omitempty"`
}

// SanityCheck reports whether the configured engine can be used.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{LlamaBuilt: llamaBuilt}
	if err := m.engine.Available(); err != nil {
		r.Error = err.Error()
		return r
	}
	r.EngineAvailable = true
	return r
}
