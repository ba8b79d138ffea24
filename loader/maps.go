package loader

import (
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/elfobj"
)

// mapSlot is one declared map: its symbol name, decoded definition, and
// the resolved kernel handle. Filtered maps keep their slot with a nil
// handle so the slice stays positionally aligned with the maps-section
// symbol names, which relocation resolution depends on.
type mapSlot struct {
	name string
	def  bpfload.MapDef
	m    Map // nil when excluded by the compatibility filter
}

func closeSlots(slots []mapSlot) {
	for _, s := range slots {
		if s.m != nil {
			s.m.Close()
		}
	}
}

// provisionMaps creates, reuses or skips every map the object declares,
// in declaration order. The returned slice always has exactly one slot
// per maps-section symbol name.
func (l *Loader) provisionMaps(obj *elfobj.Object, prefix string) ([]mapSlot, error) {
	data, err := obj.SectionData("maps")
	if elfobj.IsNoSection(err) {
		return nil, nil // no maps to provision
	}
	if err != nil {
		return nil, err
	}
	defs, err := bpfload.DecodeMapDefs(data)
	if err != nil {
		return nil, err
	}
	names, err := obj.SectionSymbolNames("maps")
	if err != nil {
		return nil, err
	}
	if len(names) != len(defs) {
		return nil, &bpfload.MalformedObjectError{
			Reason: fmt.Sprintf("maps section has %d records but %d symbols", len(defs), len(names)),
		}
	}

	slots := make([]mapSlot, 0, len(names))
	for i, name := range names {
		def := defs[i]
		slot := mapSlot{name: name, def: def}

		if !shouldInclude(l.ctx, def.Gates) {
			l.log.Debug("skipping map", "map", name,
				"loader_window", fmt.Sprintf("[%#x,%#x)", def.LoaderMin, def.LoaderMax),
				"kernel_window", fmt.Sprintf("[%s,%s)", def.KernelMin, def.KernelMax))
			slots = append(slots, slot)
			continue
		}

		m, err := l.resolveMap(obj.Name(), name, def, prefix)
		if err != nil {
			closeSlots(slots)
			return nil, err
		}
		slot.m = m
		slots = append(slots, slot)
	}
	return slots, nil
}

// normalizeMap downgrades map types the running kernel cannot provide
// to their closest userspace-api-compatible stand-ins, and applies the
// kernel's structural requirements.
func (l *Loader) normalizeMap(name string, def bpfload.MapDef) bpfload.MapParams {
	typ := def.Type
	switch {
	case typ == ebpf.DevMap && !l.ctx.AtLeastKernel(4, 14, 0):
		// Same userspace api as an array; programs needing the
		// real thing carry a 4.14+ kernel window anyway.
		typ = ebpf.Array
	case typ == ebpf.DevMapHash && !l.ctx.AtLeastKernel(5, 4, 0):
		typ = ebpf.Hash
	}

	maxEntries := def.MaxEntries
	if typ == ebpf.RingBuf && maxEntries < l.ctx.PageSize {
		// Capacity is enforced to be a power of two by the build;
		// raising it to the page size keeps it a valid multiple.
		maxEntries = l.ctx.PageSize
	}

	flags := def.Flags
	if typ == ebpf.LPMTrie {
		flags |= unix.BPF_F_NO_PREALLOC
	}

	p := bpfload.MapParams{
		Name:       name,
		Type:       typ,
		KeySize:    def.KeySize,
		ValueSize:  def.ValueSize,
		MaxEntries: maxEntries,
		Flags:      flags,
	}
	if !l.ctx.SupportsObjNames() {
		p.Name = ""
	}
	return p
}

// expectedParams is what a validated pin must report: creation
// parameters plus flags the kernel sets on its own.
func expectedParams(p bpfload.MapParams) bpfload.MapParams {
	if p.Type == ebpf.DevMap || p.Type == ebpf.DevMapHash {
		// Devmaps are read-only from the program side; the
		// kernel forces this flag during map init.
		p.Flags |= unix.BPF_F_RDONLY_PROG
	}
	return p
}

func (l *Loader) resolveMap(objName, name string, def bpfload.MapDef, prefix string) (Map, error) {
	params := l.normalizeMap(name, def)

	// Shared maps drop the object name so every object resolves to
	// the same node.
	pinObj := objName
	if def.Shared {
		pinObj = ""
	}
	pin := l.pinRoot + def.PinSubdir.Subdir(prefix) + "map_" + pinObj + "_" + name

	reuse, err := pathExists(pin)
	if err != nil {
		return nil, err
	}

	var m Map
	if reuse {
		m, err = l.kernel.OpenPinnedMap(pin)
		if err != nil {
			return nil, fmt.Errorf("reuse pinned map %s: %w", pin, err)
		}
		l.log.Debug("reusing pinned map", "map", name, "pin", pin)
	} else {
		m, err = l.kernel.CreateMap(params)
		if err != nil {
			return nil, fmt.Errorf("create map %s: %w", name, err)
		}
		l.log.Debug("created map", "map", name, "fd", m.FD())
	}

	// The reuse path is the one this protects, but the checks run on
	// freshly created maps too: a mismatch there means a kernel that
	// silently altered our parameters.
	if err := l.validateMap(pin, params, m); err != nil {
		m.Close()
		return nil, err
	}

	if !reuse {
		if err := l.publishPin(m, pin, "tmp_map_"+objName+"_"+name, def.SELinuxContext); err != nil {
			m.Close()
			return nil, err
		}
		if err := l.kernel.SetAttr(pin, def.Mode, def.UID, def.GID); err != nil {
			m.Close()
			return nil, fmt.Errorf("set attributes on %s: %w", pin, err)
		}
	}

	if id, err := m.ID(); err != nil {
		if l.ctx.SupportsObjInfo() {
			l.log.Warn("map id unavailable", "map", name, "error", err)
		}
	} else {
		l.log.Info("map ready", "pin", pin, "id", id)
	}
	return m, nil
}

// validateMap checks a handle against the normalized declaration. On
// kernels without map introspection the check is skipped; the failure
// modes it guards against are kernel-independent misconfigurations that
// newer test devices will still catch.
func (l *Loader) validateMap(pin string, params bpfload.MapParams, m Map) error {
	if !l.ctx.SupportsObjInfo() {
		return nil
	}
	got, err := m.Params()
	if err != nil {
		return fmt.Errorf("inspect map %s: %w", pin, err)
	}
	want := expectedParams(params)
	if got.Structural() != want.Structural() {
		return &bpfload.NotUniqueError{Pin: pin, Want: want, Got: got}
	}
	return nil
}

// publishPin makes a pinnable object visible at its final path. When a
// selinux context is specified the pin is first created under a
// temporary name inside that context's own subdirectory, where the
// filesystem assigns the desired label, and only an atomic no-overwrite
// rename publishes it at the addressable path.
func (l *Loader) publishPin(obj interface{ Pin(string) error }, pin, tmpName string, sel bpfload.Domain) error {
	if !sel.Specified() {
		if err := obj.Pin(pin); err != nil {
			return fmt.Errorf("pin %s: %w", pin, err)
		}
		return nil
	}
	tmp := l.pinRoot + sel.Subdir("") + tmpName
	if err := obj.Pin(tmp); err != nil {
		return fmt.Errorf("pin %s: %w", tmp, err)
	}
	if err := unix.Renameat2(unix.AT_FDCWD, tmp, unix.AT_FDCWD, pin, unix.RENAME_NOREPLACE); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, pin, err)
	}
	return nil
}

// pathExists distinguishes a missing pin from an unreadable one; the
// latter means permissions are broken badly enough that continuing is
// pointless.
func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
