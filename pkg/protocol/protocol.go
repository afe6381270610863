// Package protocol defines the Storage Protocol Driver capability set of
// spec §4.4 and a registry that resolves one by (scheme, impl), following
// the dynamic-dispatch-as-interface design note of spec §9.
package protocol

import (
	"context"
	"fmt"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

// PFN is a physical file name: the concrete, protocol-specific location
// of one replica on one RSE.
type PFN string

// LFN names one DID for translation to a PFN.
type LFN struct {
	Scope string
	Name  string
	Path  string
}

// Driver is the capability set a deletion protocol must offer. Connect
// is idempotent and may open a long-lived session; Delete is a single
// blocking call per PFN.
type Driver interface {
	Connect(ctx context.Context) error
	Delete(ctx context.Context, pfn PFN) error
	Exists(ctx context.Context, pfn PFN) (bool, error)
	Close() error
	// LFNs2PFNs translates LFNs to PFNs as a pure function of the RSE's
	// protocol attributes; bit-identical for the same inputs.
	LFNs2PFNs(lfns []LFN) map[string]PFN
}

// Factory builds a Driver bound to one RSE protocol.
type Factory func(rse types.RSE, proto types.Protocol) Driver

// Registry resolves a Driver factory by (scheme, impl) and applies any
// impl overrides (spec §9: a data-driven rewrite rule on the protocol
// list, not a type switch — the canonical case is routing nominally-SRM
// endpoints through a GFAL2 driver).
type Registry struct {
	factories map[string]Factory
	overrides map[string]string
}

// NewRegistry builds an empty registry. Register factories with Register
// before resolving drivers.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		overrides: make(map[string]string),
	}
}

func key(scheme, impl string) string { return scheme + "+" + impl }

// Register binds a Factory to the given (scheme, impl) pair.
func (r *Registry) Register(scheme, impl string, f Factory) {
	r.factories[key(scheme, impl)] = f
}

// OverrideImpl installs a rewrite rule: any protocol whose Impl equals
// fromImpl resolves as if Impl were toImpl instead. Used to force
// nominally-SRM endpoints through a GFAL2 driver without touching the
// stored RSE protocol rows.
func (r *Registry) OverrideImpl(fromImpl, toImpl string) {
	r.overrides[fromImpl] = toImpl
}

// Resolve builds a Driver for rse using the protocol matching scheme,
// applying any registered impl override first.
func (r *Registry) Resolve(rse types.RSE, scheme string) (Driver, error) {
	var chosen *types.Protocol
	for i := range rse.Protocols {
		p := rse.Protocols[i]
		if p.Scheme == scheme {
			chosen = &p
			break
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("protocol: RSE %s offers no protocol for scheme %q", rse.Name, scheme)
	}

	impl := chosen.Impl
	if to, ok := r.overrides[impl]; ok {
		impl = to
	}

	f, ok := r.factories[key(scheme, impl)]
	if !ok {
		return nil, fmt.Errorf("protocol: no driver registered for scheme %q impl %q", scheme, impl)
	}
	resolved := *chosen
	resolved.Impl = impl
	return f(rse, resolved), nil
}
