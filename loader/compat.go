package loader

import "github.com/netbpf/bpfload"

// shouldInclude is the compatibility predicate applied identically to
// maps and programs (and, via the file-level version sections, to whole
// objects). Both version windows are half-open [min, max); a matching
// build or arch ignore flag excludes the item. Exclusion on any axis is
// a skip, never an error.
func shouldInclude(ctx bpfload.Context, g bpfload.Gates) bool {
	if ctx.LoaderVersion < g.LoaderMin || ctx.LoaderVersion >= g.LoaderMax {
		return false
	}
	if ctx.Kernel < g.KernelMin || ctx.Kernel >= g.KernelMax {
		return false
	}
	switch ctx.Build {
	case bpfload.BuildEng:
		if g.IgnoreOnEng {
			return false
		}
	case bpfload.BuildUser:
		if g.IgnoreOnUser {
			return false
		}
	case bpfload.BuildUserdebug:
		if g.IgnoreOnUserdebug {
			return false
		}
	}
	switch ctx.Arch {
	case bpfload.ArchArm:
		if !ctx.Kernel64Bit && g.IgnoreOnArm32 {
			return false
		}
		if ctx.Kernel64Bit && g.IgnoreOnAarch64 {
			return false
		}
	case bpfload.ArchX86:
		if !ctx.Kernel64Bit && g.IgnoreOnX86_32 {
			return false
		}
		if ctx.Kernel64Bit && g.IgnoreOnX86_64 {
			return false
		}
	case bpfload.ArchRiscV:
		if g.IgnoreOnRiscv64 {
			return false
		}
	}
	return true
}
