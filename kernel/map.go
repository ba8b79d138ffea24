package kernel

import (
	"fmt"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/loader"

	"github.com/cilium/ebpf"
)

// mapHandle adapts *ebpf.Map to loader.Map. Closing the handle drops
// this process's fd only; pinned maps stay alive through their pins.
type mapHandle struct {
	m *ebpf.Map
}

var _ loader.Map = (*mapHandle)(nil)

func (h *mapHandle) FD() int { return h.m.FD() }

func (h *mapHandle) ID() (uint32, error) {
	info, err := h.m.Info()
	if err != nil {
		return 0, fmt.Errorf("map info: %w", err)
	}
	id, ok := info.ID()
	if !ok {
		return 0, fmt.Errorf("kernel does not report map ids")
	}
	return uint32(id), nil
}

func (h *mapHandle) Params() (bpfload.MapParams, error) {
	info, err := h.m.Info()
	if err != nil {
		return bpfload.MapParams{}, fmt.Errorf("map info: %w", err)
	}
	return bpfload.MapParams{
		Name:       info.Name,
		Type:       info.Type,
		KeySize:    info.KeySize,
		ValueSize:  info.ValueSize,
		MaxEntries: info.MaxEntries,
		Flags:      info.Flags,
	}, nil
}

func (h *mapHandle) Pin(path string) error {
	return h.m.Pin(path)
}

func (h *mapHandle) Put(key, value uint32) error {
	return h.m.Put(key, value)
}

func (h *mapHandle) Close() error {
	return h.m.Close()
}
