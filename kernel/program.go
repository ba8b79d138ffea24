package kernel

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/loader"
)

// LoadProgram loads already-relocated bytecode into the kernel. A
// verifier rejection comes back as *bpfload.VerifierError carrying the
// captured log.
func (a *Adapter) LoadProgram(p loader.ProgParams) (loader.Program, error) {
	insns, err := decodeInstructions(p.Insns)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", p.Name, err)
	}

	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:          p.Name,
		Type:          p.Type,
		AttachType:    p.AttachType,
		License:       p.License,
		KernelVersion: p.KernelVersion,
		Instructions:  insns,
	})
	if err != nil {
		var verr *ebpf.VerifierError
		if errors.As(err, &verr) {
			return nil, &bpfload.VerifierError{
				Name: p.Name,
				Log:  trimVerifierLog(verr.Log),
				Err:  verr.Cause,
			}
		}
		return nil, fmt.Errorf("load program %s: %w", p.Name, err)
	}
	return &progHandle{p: prog}, nil
}

// decodeInstructions lifts a raw little-endian instruction stream into
// cilium/ebpf's representation. Patched map references survive the
// round trip: a two-slot ldimm64 with the pseudo-map-fd source decodes
// into a single map-load instruction whose constant is the fd.
func decodeInstructions(code []byte) (asm.Instructions, error) {
	r := bytes.NewReader(code)
	var insns asm.Instructions
	for {
		var ins asm.Instruction
		if err := ins.Unmarshal(r, binary.LittleEndian, "linux"); err != nil {
			if errors.Is(err, io.EOF) {
				return insns, nil
			}
			return nil, fmt.Errorf("decode instruction %d: %w", len(insns), err)
		}
		insns = append(insns, ins)
	}
}

// trimVerifierLog drops trailing blank lines the kernel pads the log
// buffer with.
func trimVerifierLog(log []string) []string {
	end := len(log)
	for end > 0 && log[end-1] == "" {
		end--
	}
	return log[:end]
}

// progHandle adapts *ebpf.Program to loader.Program.
type progHandle struct {
	p *ebpf.Program
}

var _ loader.Program = (*progHandle)(nil)

func (h *progHandle) ID() (uint32, error) {
	info, err := h.p.Info()
	if err != nil {
		return 0, fmt.Errorf("program info: %w", err)
	}
	id, ok := info.ID()
	if !ok {
		return 0, fmt.Errorf("kernel does not report program ids")
	}
	return uint32(id), nil
}

func (h *progHandle) Pin(path string) error {
	return h.p.Pin(path)
}

func (h *progHandle) Close() error {
	return h.p.Close()
}
