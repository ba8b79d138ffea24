package loader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/netbpf/bpfload/elfobj"
)

const (
	// insnSize is the size of one bytecode instruction slot. A
	// 64-bit load-immediate occupies two slots; relocations target
	// the first.
	insnSize = 8

	// ldImm64Op is the opcode of a 64-bit load-immediate
	// (BPF_LD | BPF_IMM | BPF_DW), the only instruction form a map
	// relocation may target.
	ldImm64Op = 0x18

	// pseudoMapFD marks the source-register field of a patched
	// load-immediate as "immediate is a map fd, not a literal".
	pseudoMapFD = 1
)

// BadRelocationError reports a relocation whose target offset cannot be
// patched safely: out of range or not instruction-aligned.
type BadRelocationError struct {
	Section string
	Offset  uint64
	Reason  string
}

func (e *BadRelocationError) Error() string {
	return fmt.Sprintf("relocation in %s at offset %d: %s", e.Section, e.Offset, e.Reason)
}

// errNotLdImm64 reports a relocation pointing at an instruction that is
// not a 64-bit load-immediate. The original build never emits these;
// skipping beats corrupting adjacent bytecode.
var errNotLdImm64 = errors.New("relocated instruction is not a 64-bit load-immediate")

// patchMapRef rewrites the load-immediate slot at offset: the immediate
// field becomes fd and the source register is marked as a map
// reference. Patching an already-patched instruction with the same fd
// is a byte-identical no-op.
func patchMapRef(code []byte, section string, offset uint64, fd int) error {
	if offset%insnSize != 0 {
		return &BadRelocationError{Section: section, Offset: offset, Reason: "misaligned"}
	}
	if offset >= uint64(len(code)) || uint64(len(code))-offset < insnSize {
		return &BadRelocationError{
			Section: section,
			Offset:  offset,
			Reason:  fmt.Sprintf("beyond section end (%d bytes)", len(code)),
		}
	}
	if code[offset] != ldImm64Op {
		return errNotLdImm64
	}
	// Instruction slot layout: opcode, dst/src register nibbles,
	// 16-bit offset, 32-bit immediate. dst occupies the low nibble.
	code[offset+1] = code[offset+1]&0x0f | pseudoMapFD<<4
	binary.LittleEndian.PutUint32(code[offset+4:], uint32(int32(fd)))
	return nil
}

// applyMapRelocations resolves every code section's relocations against
// the provisioned map slots and patches the bytecode in place. Maps
// excluded by the compatibility filter patch as fd -1; any program that
// actually uses such a map is expected to be gated by the same windows.
func (l *Loader) applyMapRelocations(obj *elfobj.Object, slots []mapSlot, sections []codeSection) error {
	for i := range sections {
		cs := &sections[i]
		for _, rel := range cs.rels {
			symName, err := obj.SymbolNameByIndex(rel.SymIndex)
			if err != nil {
				return err
			}

			fd, found := -1, false
			for _, slot := range slots {
				if slot.name != symName {
					continue
				}
				found = true
				if slot.m != nil {
					fd = slot.m.FD()
				}
				break
			}
			if !found {
				continue // not a map reference
			}

			switch err := patchMapRef(cs.data, cs.name, rel.Offset, fd); {
			case errors.Is(err, errNotLdImm64):
				l.log.Warn("skipping relocation", "section", cs.name, "offset", rel.Offset, "error", err)
			case err != nil:
				return err
			}
		}
	}
	return nil
}
