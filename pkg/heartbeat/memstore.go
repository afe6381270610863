package heartbeat

import (
	"sync"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// MemStore is an in-process Store for tests and single-process daemons
// that don't need heartbeat survival across restarts.
type MemStore struct {
	mu   sync.Mutex
	rows map[string]types.Heartbeat
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{rows: make(map[string]types.Heartbeat)}
}

func (m *MemStore) Put(hb types.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[heartbeatKey(hb.Executable, hb.Hostname, hb.PID, hb.ThreadID)] = hb
	return nil
}

func (m *MemStore) Delete(executable, hostname string, pid int, threadID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, heartbeatKey(executable, hostname, pid, threadID))
	return nil
}

func (m *MemStore) List(executable string) ([]types.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Heartbeat
	for _, hb := range m.rows {
		if hb.Executable == executable {
			out = append(out, hb)
		}
	}
	return out, nil
}
