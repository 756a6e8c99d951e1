package manager

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:          m.cur.state,
		Model:          m.cur.model,
		Handle:         m.handle,
		LastError:      m.lastErr,
		LoadsTotal:     m.loadsTotal,
		LastLoad:       m.lastLoad,
		LastGeneration: m.lastGen,
	}
}
