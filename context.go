package bpfload

import "fmt"

// KernelVersion is a kernel release packed into a single comparable
// integer: major<<24 | minor<<16 | sub. This matches the encoding used
// by the kernel-version window fields inside BPF object files.
type KernelVersion uint32

// KVer packs a major.minor.sub release.
func KVer(major, minor, sub uint32) KernelVersion {
	return KernelVersion(major<<24 | minor<<16 | sub)
}

func (v KernelVersion) String() string {
	return fmt.Sprintf("%07x", uint32(v))
}

// BuildVariant classifies the system build the loader is running on.
type BuildVariant string

const (
	BuildEng       BuildVariant = "eng"
	BuildUser      BuildVariant = "user"
	BuildUserdebug BuildVariant = "userdebug"
)

// Known reports whether the variant is one of the three recognized
// build types.
func (b BuildVariant) Known() bool {
	switch b {
	case BuildEng, BuildUser, BuildUserdebug:
		return true
	}
	return false
}

// Arch is the CPU architecture family of the running system.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchArm
	ArchX86
	ArchRiscV
)

// Context carries everything about the running system that gating and
// normalization decisions depend on. It is constructed once at startup
// and threaded explicitly through every component; there is no global
// mutable state.
type Context struct {
	// LoaderVersion is the generation of this loader, compared
	// against the half-open loader-version windows declared by
	// objects, maps and programs.
	LoaderVersion uint32

	// Kernel is the packed version of the running kernel.
	Kernel KernelVersion

	Build BuildVariant
	Arch  Arch

	// Kernel64Bit reports the bitness of the kernel, which may
	// differ from userspace on compat setups.
	Kernel64Bit    bool
	Userspace64Bit bool

	// PageSize is the system page size, used to normalize ring
	// buffer capacities.
	PageSize uint32
}

// AtLeastKernel reports whether the running kernel is at least
// major.minor.sub.
func (c Context) AtLeastKernel(major, minor, sub uint32) bool {
	return c.Kernel >= KVer(major, minor, sub)
}

// SupportsObjNames reports whether the kernel accepts names on map and
// program creation (4.15+).
func (c Context) SupportsObjNames() bool {
	return c.AtLeastKernel(4, 15, 0)
}

// SupportsObjInfo reports whether the kernel can report structural
// information about an open map, used to validate reused pins (4.14+).
func (c Context) SupportsObjInfo() bool {
	return c.AtLeastKernel(4, 14, 0)
}

// DescribeArch renders the userspace-on-kernel bitness combination for
// log output.
func (c Context) DescribeArch() string {
	arch := map[Arch]string{ArchArm: "arm", ArchX86: "x86", ArchRiscV: "riscv"}[c.Arch]
	if arch == "" {
		arch = "unknown"
	}
	user, kern := "32", "32"
	if c.Userspace64Bit {
		user = "64"
	}
	if c.Kernel64Bit {
		kern = "64"
	}
	return user + "-on-" + arch + kern
}
