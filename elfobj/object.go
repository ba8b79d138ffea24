// Package elfobj reads the BPF object container format: an ELF64
// relocatable file whose sections carry a license string, loader
// version windows, fixed-size map/program definition records, bytecode
// and relocation tables.
//
// The package distinguishes a section that is simply not present
// (ErrNoSection, a soft condition: the feature is absent from the
// object) from a truncated or corrupt container (hard errors), so that
// callers can branch correctly.
package elfobj

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoSection reports that an optional section is not present in the
// object. Callers treat this as "feature absent", not as corruption.
var ErrNoSection = errors.New("section not present")

// IsNoSection reports whether err indicates an absent section rather
// than a read failure.
func IsNoSection(err error) bool { return errors.Is(err, ErrNoSection) }

// Object is the parsed, ephemeral view of one BPF object file. It is
// discarded after the object has been processed.
type Object struct {
	path string
	file *elf.File

	closer io.Closer

	// index-stable symbol table, cached on first use. Raw symtab
	// index i corresponds to syms[i-1]: debug/elf omits the
	// all-zero symbol at index 0.
	syms []elf.Symbol
}

// Open parses the object file at path. The container must be a
// little-endian ELF64 relocatable.
func Open(path string) (*Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	o := &Object{path: path, file: ef, closer: f}
	if err := o.checkHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return o, nil
}

// New parses an object from an in-memory image, for tests and callers
// that already hold the bytes. name stands in for the file path.
func New(r io.ReaderAt, name string) (*Object, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	o := &Object{path: name, file: ef}
	if err := o.checkHeader(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Object) checkHeader() error {
	h := &o.file.FileHeader
	if h.Class != elf.ELFCLASS64 || h.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("%s: unsupported container class %v/%v, want ELF64 little-endian", o.path, h.Class, h.Data)
	}
	if h.Type != elf.ET_REL {
		return fmt.Errorf("%s: not a relocatable object (type %v)", o.path, h.Type)
	}
	return nil
}

// Close releases the underlying file, if any.
func (o *Object) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// Path returns the path the object was opened from.
func (o *Object) Path() string { return o.path }

// Name returns the object name used in pin paths: the basename with
// the extension stripped, and any trailing "@..." disambiguation suffix
// removed (mux between duplicate objects targeting different loader
// generations).
func (o *Object) Name() string { return ObjName(o.path) }

// ObjName derives the pin-path object name from an object file path.
func ObjName(path string) string {
	name := filepath.Base(path)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

// SectionNames returns all section names in section-header order.
func (o *Object) SectionNames() []string {
	names := make([]string, 0, len(o.file.Sections))
	for _, s := range o.file.Sections {
		names = append(names, s.Name)
	}
	return names
}

// SectionData reads a whole section by name. Returns ErrNoSection when
// no section of that name exists; any read failure is a hard error.
func (o *Object) SectionData(name string) ([]byte, error) {
	sec := o.file.Section(name)
	if sec == nil {
		return nil, fmt.Errorf("%s: %q: %w", o.path, name, ErrNoSection)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("%s: read section %q: %w", o.path, name, err)
	}
	return data, nil
}

// SectionU32 decodes the first four bytes of a section as a
// little-endian unsigned integer. Both absence and truncation are hard
// errors: the version-bound sections this reads are mandatory.
func (o *Object) SectionU32(name string) (uint32, error) {
	data, err := o.SectionData(name)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, fmt.Errorf("%s: section %q too short (%d bytes)", o.path, name, len(data))
	}
	// There will usually be more than 4 bytes due to alignment.
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24, nil
}

// License returns the object's license string.
func (o *Object) License() (string, error) {
	data, err := o.SectionData("license")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

func (o *Object) symbols() ([]elf.Symbol, error) {
	if o.syms != nil {
		return o.syms, nil
	}
	syms, err := o.file.Symbols()
	if err != nil {
		return nil, fmt.Errorf("%s: read symbol table: %w", o.path, err)
	}
	o.syms = syms
	return syms, nil
}

func (o *Object) sectionIndex(name string) (elf.SectionIndex, bool) {
	for i, s := range o.file.Sections {
		if s.Name == name {
			return elf.SectionIndex(i), true
		}
	}
	return 0, false
}

// sectionSymbolNames returns the names of symbols defined in the named
// section, ordered by address so they correlate positionally with the
// fixed-size records of that section. A negative typ accepts any
// symbol type.
func (o *Object) sectionSymbolNames(section string, typ int) ([]string, error) {
	idx, ok := o.sectionIndex(section)
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", o.path, section, ErrNoSection)
	}
	syms, err := o.symbols()
	if err != nil {
		return nil, err
	}
	var in []elf.Symbol
	for _, s := range syms {
		if s.Section != idx {
			continue
		}
		if typ >= 0 && elf.ST_TYPE(s.Info) != elf.SymType(typ) {
			continue
		}
		in = append(in, s)
	}
	sort.SliceStable(in, func(i, j int) bool { return in[i].Value < in[j].Value })
	names := make([]string, len(in))
	for i, s := range in {
		names[i] = s.Name
	}
	return names, nil
}

// SectionSymbolNames returns all symbol names defined in the named
// section, address-ordered.
func (o *Object) SectionSymbolNames(section string) ([]string, error) {
	return o.sectionSymbolNames(section, -1)
}

// SectionFuncSymbolNames returns the function symbol names defined in
// the named section, address-ordered. Code sections carry exactly one.
func (o *Object) SectionFuncSymbolNames(section string) ([]string, error) {
	return o.sectionSymbolNames(section, int(elf.STT_FUNC))
}

// SymbolNameByIndex resolves a raw symbol-table index (as found in
// relocation records) to a symbol name. Index numbering is the on-disk
// one, where 0 is the reserved undefined symbol.
func (o *Object) SymbolNameByIndex(idx uint32) (string, error) {
	if idx == 0 {
		return "", fmt.Errorf("%s: relocation against undefined symbol 0", o.path)
	}
	syms, err := o.symbols()
	if err != nil {
		return "", err
	}
	if int(idx) > len(syms) {
		return "", fmt.Errorf("%s: symbol index %d out of range (%d symbols)", o.path, idx, len(syms))
	}
	return syms[idx-1].Name, nil
}
