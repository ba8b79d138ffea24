// Package kernel implements the loader's kernel surface with
// cilium/ebpf. Everything here talks to a real kernel; tests of the
// loading logic substitute a fake instead.
package kernel

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cilium/ebpf"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/loader"
)

// Adapter performs bpf(2) operations via cilium/ebpf.
type Adapter struct {
	log *slog.Logger
}

var _ loader.Kernel = (*Adapter)(nil)

// New creates an Adapter.
func New(log *slog.Logger) *Adapter {
	return &Adapter{log: log.With("component", "kernel")}
}

// CreateMap creates a new kernel map with the given parameters.
func (a *Adapter) CreateMap(p bpfload.MapParams) (loader.Map, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       p.Name,
		Type:       p.Type,
		KeySize:    p.KeySize,
		ValueSize:  p.ValueSize,
		MaxEntries: p.MaxEntries,
		Flags:      p.Flags,
	})
	if err != nil {
		return nil, fmt.Errorf("create map %s: %w", p.Name, err)
	}
	return &mapHandle{m: m}, nil
}

// OpenPinnedMap opens an existing map pin read-only. Map fd references
// in bytecode resolve by fd identity, so a read-only fd suffices.
func (a *Adapter) OpenPinnedMap(path string) (loader.Map, error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open pinned map %s: %w", path, err)
	}
	return &mapHandle{m: m}, nil
}

// OpenPinnedProgram opens an existing program pin.
func (a *Adapter) OpenPinnedProgram(path string) (loader.Program, error) {
	p, err := ebpf.LoadPinnedProgram(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open pinned program %s: %w", path, err)
	}
	return &progHandle{p: p}, nil
}

// SetAttr applies mode and ownership to a pinned node.
func (a *Adapter) SetAttr(path string, mode uint32, uid, gid uint32) error {
	if err := os.Chmod(path, os.FileMode(mode)); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Chown(path, int(uid), int(gid)); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
