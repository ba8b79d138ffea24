package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/elfobj"
)

// progMode is the fixed mode applied to every program pin; programs
// are only ever attached, never written.
const progMode = 0o440

// loadPrograms loads (or reuses) every catalogued code section, in
// section order. Relocations must already be applied.
func (l *Loader) loadPrograms(obj *elfobj.Object, sections []codeSection, license, prefix string) error {
	objName := obj.Name()

	for i := range sections {
		cs := &sections[i]

		if !cs.hasDef {
			return &bpfload.MalformedObjectError{
				Reason: fmt.Sprintf("code section %q has no program definition", cs.name),
			}
		}
		if !shouldInclude(l.ctx, cs.def.Gates) {
			l.log.Debug("skipping program", "program", cs.name,
				"loader_window", fmt.Sprintf("[%#x,%#x)", cs.def.LoaderMin, cs.def.LoaderMax),
				"kernel_window", fmt.Sprintf("[%s,%s)", cs.def.KernelMin, cs.def.KernelMax))
			continue
		}

		// Strip any trailing $-suffix: duplicate variants of one
		// logical program, made mutually exclusive by their
		// version windows, share the logical name. At most one
		// winner is a precondition of the build, not enforced
		// here.
		name := cs.name
		if idx := strings.LastIndexByte(name, '$'); idx >= 0 {
			name = name[:idx]
		}

		// Program pins always carry the object name; there is no
		// shared variant.
		pin := l.pinRoot + cs.def.PinSubdir.Subdir(prefix) + "prog_" + objName + "_" + name

		reuse, err := pathExists(pin)
		if err != nil {
			return err
		}

		var prog Program
		if reuse {
			prog, err = l.kernel.OpenPinnedProgram(pin)
			if err != nil {
				return fmt.Errorf("reuse pinned program %s: %w", pin, err)
			}
			l.log.Debug("reusing pinned program", "program", name, "pin", pin)
		} else {
			params := ProgParams{
				Name:          cs.name,
				Type:          cs.progType,
				AttachType:    cs.attachType,
				License:       license,
				KernelVersion: uint32(l.ctx.Kernel),
				Insns:         cs.data,
			}
			if !l.ctx.SupportsObjNames() {
				params.Name = ""
			}
			prog, err = l.kernel.LoadProgram(params)
			if err != nil {
				var verr *bpfload.VerifierError
				if errors.As(err, &verr) {
					for _, line := range verr.Log {
						l.log.Warn("verifier", "program", cs.name, "log", line)
					}
				}
				if cs.def.Optional {
					l.log.Warn("optional program failed to load, continuing", "program", cs.name, "error", err)
					continue
				}
				return fmt.Errorf("load program %s: %w", cs.name, err)
			}
		}

		if !reuse {
			if err := l.publishPin(prog, pin, "tmp_prog_"+objName+"_"+name, cs.def.SELinuxContext); err != nil {
				prog.Close()
				return err
			}
			if err := l.kernel.SetAttr(pin, progMode, cs.def.UID, cs.def.GID); err != nil {
				prog.Close()
				return fmt.Errorf("set attributes on %s: %w", pin, err)
			}
		}

		if id, err := prog.ID(); err != nil {
			l.log.Warn("program id unavailable", "program", name, "error", err)
		} else {
			l.log.Info("program ready", "pin", pin, "id", id)
		}
		prog.Close()
	}
	return nil
}
