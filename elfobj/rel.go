package elfobj

import (
	"encoding/binary"
	"fmt"
)

// Rel is one relocation record: the byte offset of the instruction to
// patch within its code section, and the index of the symbol being
// referenced.
type Rel struct {
	Offset   uint64
	SymIndex uint32
}

// elf64RelSize is the on-disk size of an Elf64_Rel record (r_offset,
// r_info).
const elf64RelSize = 16

// Relocations reads the relocation table attached to the named code
// section (the section named ".rel<section>"). A missing relocation
// section means the code needs no patching and yields no records; a
// badly sized table is a hard error.
func (o *Object) Relocations(section string) ([]Rel, error) {
	data, err := o.SectionData(".rel" + section)
	if err != nil {
		if IsNoSection(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data)%elf64RelSize != 0 {
		return nil, fmt.Errorf("%s: relocation table for %q has size %d, not a multiple of %d",
			o.path, section, len(data), elf64RelSize)
	}
	rels := make([]Rel, 0, len(data)/elf64RelSize)
	for off := 0; off < len(data); off += elf64RelSize {
		info := binary.LittleEndian.Uint64(data[off+8:])
		rels = append(rels, Rel{
			Offset:   binary.LittleEndian.Uint64(data[off:]),
			SymIndex: uint32(info >> 32),
		})
	}
	return rels, nil
}
