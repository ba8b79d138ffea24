// Package loader turns BPF object files into live, pinned kernel maps
// and programs: it applies compatibility gating, provisions maps,
// patches map relocations into the bytecode, loads programs, and
// publishes everything under deterministic paths on the pinning
// filesystem.
//
// The loader is strictly sequential. It runs once, early in boot,
// before any consumer attaches; every kernel call is synchronous and
// the per-object positional invariants (see provisionMaps) assume no
// interleaving.
package loader

import (
	"log/slog"
	"strings"

	"github.com/cilium/ebpf"

	"github.com/netbpf/bpfload"
)

// Kernel is the syscall surface the loader needs. The production
// implementation lives in the kernel package; tests substitute a fake.
type Kernel interface {
	CreateMap(p bpfload.MapParams) (Map, error)
	// OpenPinnedMap opens an existing pin. A read-only handle is
	// enough; bytecode map references resolve by fd identity.
	OpenPinnedMap(path string) (Map, error)
	LoadProgram(p ProgParams) (Program, error)
	OpenPinnedProgram(path string) (Program, error)
	// SetAttr applies mode and ownership to a pinned node.
	SetAttr(path string, mode uint32, uid, gid uint32) error
}

// Map is a process-scoped handle to a kernel map. Closing it never
// destroys a pinned map; the pin owns the object's lifetime.
type Map interface {
	// FD is the identifier patched into bytecode map references.
	FD() int
	// ID is the kernel's global map id, for diagnostics.
	ID() (uint32, error)
	// Params reports the map's structure as the kernel sees it.
	// Requires an introspection-capable kernel.
	Params() (bpfload.MapParams, error)
	Pin(path string) error
	// Put writes one entry; used by the post-run scratch canary.
	Put(key, value uint32) error
	Close() error
}

// Program is a process-scoped handle to a loaded program.
type Program interface {
	ID() (uint32, error)
	Pin(path string) error
	Close() error
}

// ProgParams is a kernel program-load request.
type ProgParams struct {
	Name          string
	Type          ebpf.ProgramType
	AttachType    ebpf.AttachType
	License       string
	KernelVersion uint32
	// Insns is the raw, already-relocated bytecode.
	Insns []byte
}

// Location pairs a source directory of object files with the structural
// pin prefix applied to objects that do not override it.
type Location struct {
	Dir    string
	Prefix string
}

// Loader loads BPF objects against one kernel and one pinning
// filesystem root.
type Loader struct {
	kernel  Kernel
	log     *slog.Logger
	ctx     bpfload.Context
	pinRoot string
}

// New builds a Loader. The domain table is validated here, once,
// before anything touches the filesystem.
func New(k Kernel, log *slog.Logger, ctx bpfload.Context, pinRoot string) (*Loader, error) {
	if err := bpfload.ValidateDomains(); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(pinRoot, "/") {
		pinRoot += "/"
	}
	return &Loader{
		kernel:  k,
		log:     log.With("component", "loader"),
		ctx:     ctx,
		pinRoot: pinRoot,
	}, nil
}
