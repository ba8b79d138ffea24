// Package elftest synthesizes minimal little-endian ELF64 relocatable
// images for tests: named sections, a symbol table, and relocation
// tables, in the shape produced by the BPF object build.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
)

const (
	ehdrSize = 64
	shdrSize = 64
	symSize  = 24
	relSize  = 16
)

type section struct {
	name    string
	typ     elf.SectionType
	data    []byte
	link    string // section name resolved to an index at build time
	entsize uint64
}

// Sym describes one symbol-table entry.
type Sym struct {
	Name    string
	Section string // name of the defining section
	Value   uint64
	Type    elf.SymType
}

// Rel describes one relocation entry against a named symbol.
type Rel struct {
	Offset  uint64
	SymName string
}

// Builder accumulates sections and symbols and renders an ELF image.
type Builder struct {
	sections []section
	symbols  []Sym
	rels     map[string][]Rel // keyed by target section name
}

// NewBuilder returns an empty object builder.
func NewBuilder() *Builder {
	return &Builder{rels: map[string][]Rel{}}
}

// AddSection appends a PROGBITS section.
func (b *Builder) AddSection(name string, data []byte) *Builder {
	b.sections = append(b.sections, section{name: name, typ: elf.SHT_PROGBITS, data: data})
	return b
}

// AddU32Section appends a PROGBITS section holding one little-endian
// 32-bit value, as the loader-version-bound sections do.
func (b *Builder) AddU32Section(name string, v uint32) *Builder {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	return b.AddSection(name, data)
}

// AddSymbol records a symbol defined at value within the named section.
func (b *Builder) AddSymbol(name, sect string, value uint64, typ elf.SymType) *Builder {
	b.symbols = append(b.symbols, Sym{Name: name, Section: sect, Value: value, Type: typ})
	return b
}

// AddRel records a relocation against the named symbol inside the named
// code section; the builder emits a ".rel<section>" table.
func (b *Builder) AddRel(sect string, offset uint64, symName string) *Builder {
	b.rels[sect] = append(b.rels[sect], Rel{Offset: offset, SymName: symName})
	return b
}

// Bytes renders the image. It panics on inconsistencies such as a
// symbol or relocation referencing a section or symbol that was never
// added; tests construct objects statically so that is a test bug.
func (b *Builder) Bytes() []byte {
	symIndex := func(name string) uint32 {
		for i, s := range b.symbols {
			if s.Name == name {
				return uint32(i + 1) // slot 0 is the reserved null symbol
			}
		}
		panic(fmt.Sprintf("elftest: relocation against unknown symbol %q", name))
	}

	// Section list: null, user sections, per-section rel tables,
	// .shstrtab, .symtab, .strtab.
	sections := []section{{}}
	sections = append(sections, b.sections...)
	for _, us := range b.sections {
		rels, ok := b.rels[us.name]
		if !ok {
			continue
		}
		var data bytes.Buffer
		for _, r := range rels {
			binary.Write(&data, binary.LittleEndian, r.Offset)
			binary.Write(&data, binary.LittleEndian, uint64(symIndex(r.SymName))<<32|1)
		}
		sections = append(sections, section{
			name:    ".rel" + us.name,
			typ:     elf.SHT_REL,
			data:    data.Bytes(),
			link:    ".symtab",
			entsize: relSize,
		})
	}
	for target := range b.rels {
		found := false
		for _, us := range b.sections {
			found = found || us.name == target
		}
		if !found {
			panic(fmt.Sprintf("elftest: relocations for unknown section %q", target))
		}
	}

	shstrtabIdx := len(sections)
	symtabIdx := shstrtabIdx + 1
	strtabIdx := symtabIdx + 1

	sectionIdx := func(name string) uint16 {
		for i, s := range sections {
			if i > 0 && s.name == name {
				return uint16(i)
			}
		}
		panic(fmt.Sprintf("elftest: symbol in unknown section %q", name))
	}

	// String tables.
	strtab := []byte{0}
	strOff := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, s...)
		strtab = append(strtab, 0)
		return off
	}
	var symtab bytes.Buffer
	symtab.Write(make([]byte, symSize)) // null symbol
	for _, s := range b.symbols {
		binary.Write(&symtab, binary.LittleEndian, strOff(s.Name))
		symtab.WriteByte(byte(elf.STB_GLOBAL)<<4 | byte(s.Type))
		symtab.WriteByte(0)
		binary.Write(&symtab, binary.LittleEndian, sectionIdx(s.Section))
		binary.Write(&symtab, binary.LittleEndian, s.Value)
		binary.Write(&symtab, binary.LittleEndian, uint64(0))
	}

	sections = append(sections,
		section{name: ".shstrtab", typ: elf.SHT_STRTAB},
		section{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab.Bytes(), link: ".strtab", entsize: symSize},
		section{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab},
	)

	shstrtab := []byte{0}
	nameOffs := make([]uint32, len(sections))
	for i, s := range sections {
		if i == 0 {
			continue
		}
		nameOffs[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, s.name...)
		shstrtab = append(shstrtab, 0)
	}
	sections[shstrtabIdx].data = shstrtab

	// Lay out: ehdr, section data, section header table.
	offsets := make([]uint64, len(sections))
	off := uint64(ehdrSize)
	for i, s := range sections {
		if i == 0 || len(s.data) == 0 {
			continue
		}
		offsets[i] = off
		off += uint64(len(s.data))
	}
	shoff := (off + 7) &^ 7

	var out bytes.Buffer
	out.Write([]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), 1, 0})
	out.Write(make([]byte, 8))
	binary.Write(&out, binary.LittleEndian, uint16(elf.ET_REL))
	binary.Write(&out, binary.LittleEndian, uint16(247)) // EM_BPF
	binary.Write(&out, binary.LittleEndian, uint32(1))
	binary.Write(&out, binary.LittleEndian, uint64(0)) // entry
	binary.Write(&out, binary.LittleEndian, uint64(0)) // phoff
	binary.Write(&out, binary.LittleEndian, shoff)
	binary.Write(&out, binary.LittleEndian, uint32(0)) // flags
	binary.Write(&out, binary.LittleEndian, uint16(ehdrSize))
	binary.Write(&out, binary.LittleEndian, uint16(0)) // phentsize
	binary.Write(&out, binary.LittleEndian, uint16(0)) // phnum
	binary.Write(&out, binary.LittleEndian, uint16(shdrSize))
	binary.Write(&out, binary.LittleEndian, uint16(len(sections)))
	binary.Write(&out, binary.LittleEndian, uint16(shstrtabIdx))

	for i, s := range sections {
		if i == 0 || len(s.data) == 0 {
			continue
		}
		for uint64(out.Len()) < offsets[i] {
			out.WriteByte(0)
		}
		out.Write(s.data)
	}
	for uint64(out.Len()) < shoff {
		out.WriteByte(0)
	}

	linkIdx := func(name string) uint32 {
		switch name {
		case "":
			return 0
		case ".symtab":
			return uint32(symtabIdx)
		case ".strtab":
			return uint32(strtabIdx)
		default:
			panic("elftest: unknown link target " + name)
		}
	}
	for i, s := range sections {
		binary.Write(&out, binary.LittleEndian, nameOffs[i])
		binary.Write(&out, binary.LittleEndian, uint32(s.typ))
		binary.Write(&out, binary.LittleEndian, uint64(0)) // flags
		binary.Write(&out, binary.LittleEndian, uint64(0)) // addr
		binary.Write(&out, binary.LittleEndian, offsets[i])
		binary.Write(&out, binary.LittleEndian, uint64(len(s.data)))
		binary.Write(&out, binary.LittleEndian, linkIdx(s.link))
		binary.Write(&out, binary.LittleEndian, uint32(0)) // info
		binary.Write(&out, binary.LittleEndian, uint64(1)) // addralign
		binary.Write(&out, binary.LittleEndian, s.entsize)
	}
	return out.Bytes()
}
