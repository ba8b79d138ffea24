package loader

import (
	"errors"
	"fmt"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/elfobj"
)

// Load processes one object file: license, whole-file compatibility
// window, maps, code sections, relocations, programs, in that order.
// A nil return covers both success and a silent whole-file skip.
func (l *Loader) Load(path, prefix string) error {
	obj, err := elfobj.Open(path)
	if err != nil {
		return err
	}
	defer obj.Close()
	return l.loadObject(obj, prefix)
}

func (l *Loader) loadObject(obj *elfobj.Object, prefix string) error {
	license, err := obj.License()
	if err != nil {
		return fmt.Errorf("required license: %w", err)
	}

	// The version-bound sections are mandatory; their absence means
	// a corrupt or foreign object.
	minVer, err := obj.SectionU32("bpfloader_min_ver")
	if err != nil {
		return err
	}
	maxVer, err := obj.SectionU32("bpfloader_max_ver")
	if err != nil {
		return err
	}
	if l.ctx.LoaderVersion < minVer || l.ctx.LoaderVersion >= maxVer {
		l.log.Debug("object out of loader version window",
			"object", obj.Path(), "window", fmt.Sprintf("[%#x,%#x)", minVer, maxVer),
			"loader_version", fmt.Sprintf("%#x", l.ctx.LoaderVersion))
		return nil
	}

	l.log.Debug("processing object", "object", obj.Path(), "license", license,
		"window", fmt.Sprintf("[%#x,%#x)", minVer, maxVer))

	slots, err := l.provisionMaps(obj, prefix)
	if err != nil {
		return fmt.Errorf("provision maps for %s: %w", obj.Path(), err)
	}
	defer closeSlots(slots)

	sections, err := l.catalogCodeSections(obj)
	if errors.Is(err, errNoPrograms) {
		// Maps-only objects exist only from the mainline loader
		// generation onwards; an older object without programs is
		// a bad build.
		if minVer >= bpfload.MainlineVersion {
			return nil
		}
		return &bpfload.MalformedObjectError{
			Reason: fmt.Sprintf("%s targets loader %#x but declares no programs", obj.Path(), minVer),
		}
	}
	if err != nil {
		return fmt.Errorf("catalog code sections in %s: %w", obj.Path(), err)
	}

	if err := l.applyMapRelocations(obj, slots, sections); err != nil {
		return fmt.Errorf("relocate %s: %w", obj.Path(), err)
	}

	if err := l.loadPrograms(obj, sections, license, prefix); err != nil {
		return fmt.Errorf("load programs from %s: %w", obj.Path(), err)
	}
	return nil
}
