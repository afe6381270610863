package protocol

import (
	"context"
	"fmt"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// MockDriver is an in-memory Driver for tests: it records Connect/Close
// calls and lets tests script per-PFN Delete outcomes.
type MockDriver struct {
	Connected   bool
	Closed      bool
	DeleteErr   map[PFN]error
	Deleted     []PFN
	ExistingSet map[PFN]bool
}

// NewMockDriver builds a MockDriver ignoring the bound RSE/protocol.
func NewMockDriver(types.RSE, types.Protocol) Driver {
	return &MockDriver{
		DeleteErr:   make(map[PFN]error),
		ExistingSet: make(map[PFN]bool),
	}
}

func (m *MockDriver) Connect(ctx context.Context) error {
	m.Connected = true
	return nil
}

func (m *MockDriver) Close() error {
	m.Closed = true
	return nil
}

func (m *MockDriver) Delete(ctx context.Context, pfn PFN) error {
	if err, ok := m.DeleteErr[pfn]; ok && err != nil {
		return err
	}
	m.Deleted = append(m.Deleted, pfn)
	return nil
}

func (m *MockDriver) Exists(ctx context.Context, pfn PFN) (bool, error) {
	return m.ExistingSet[pfn], nil
}

func (m *MockDriver) LFNs2PFNs(lfns []LFN) map[string]PFN {
	out := make(map[string]PFN, len(lfns))
	for _, lfn := range lfns {
		out[fmt.Sprintf("%s:%s", lfn.Scope, lfn.Name)] = PFN(fmt.Sprintf("mock://%s/%s", lfn.Scope, lfn.Name))
	}
	return out
}
