package protocol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
	"github.com/lattice-dmcp/lattice/pkg/types"
)

// PosixDriver implements Driver over a local or NFS-mounted filesystem
// rooted at the RSE protocol's Prefix. It requires no persistent
// session, so Connect and Close are no-ops.
type PosixDriver struct {
	prefix string
}

// NewPosixDriver builds a driver rooted at proto.Prefix.
func NewPosixDriver(rse types.RSE, proto types.Protocol) Driver {
	return &PosixDriver{prefix: proto.Prefix}
}

func (d *PosixDriver) Connect(ctx context.Context) error { return nil }
func (d *PosixDriver) Close() error                      { return nil }

func (d *PosixDriver) Delete(ctx context.Context, pfn PFN) error {
	err := os.Remove(string(pfn))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return catalogerr.New(catalogerr.SourceNotFound, string(pfn))
	default:
		return catalogerr.New(catalogerr.ServiceUnavailable, err.Error())
	}
}

func (d *PosixDriver) Exists(ctx context.Context, pfn PFN) (bool, error) {
	_, err := os.Stat(string(pfn))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, catalogerr.New(catalogerr.ServiceUnavailable, err.Error())
}

func (d *PosixDriver) LFNs2PFNs(lfns []LFN) map[string]PFN {
	out := make(map[string]PFN, len(lfns))
	for _, lfn := range lfns {
		key := fmt.Sprintf("%s:%s", lfn.Scope, lfn.Name)
		p := lfn.Path
		if p == "" {
			p = path.Join(lfn.Scope, lfn.Name)
		}
		out[key] = PFN(path.Join(d.prefix, p))
	}
	return out
}
