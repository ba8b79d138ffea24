// Package sysinfo gathers the host facts that gating and
// normalization decisions depend on: kernel release, architecture,
// bitness, build variant and page size. Everything here is read-only.
package sysinfo

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/netbpf/bpfload"
)

// BuildVariantVar is the environment variable naming the system build
// variant (eng, user or userdebug). Unset leaves the variant unknown,
// which matches no build-specific exclusion flag.
const BuildVariantVar = "NETBPFLOAD_BUILD_VARIANT"

// Collect builds a bpfload.Context for the running system.
func Collect(loaderVersion uint32) (bpfload.Context, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return bpfload.Context{}, fmt.Errorf("uname: %w", err)
	}

	release := unix.ByteSliceToString(uts.Release[:])
	kver, err := ParseKernelRelease(release)
	if err != nil {
		return bpfload.Context{}, err
	}

	machine := unix.ByteSliceToString(uts.Machine[:])

	return bpfload.Context{
		LoaderVersion: loaderVersion,
		Kernel:        kver,
		Build:         bpfload.BuildVariant(os.Getenv(BuildVariantVar)),
		Arch:          archFromMachine(machine),
		Kernel64Bit:   machine64Bit(machine),
		// The loader's own pointer width is userspace's width.
		Userspace64Bit: strconv.IntSize == 64,
		PageSize:       uint32(os.Getpagesize()),
	}, nil
}

// ParseKernelRelease packs a release string like "5.15.0-105-generic"
// into a comparable kernel version. The sublevel is optional; anything
// after the leading major.minor[.sub] digits is ignored.
func ParseKernelRelease(release string) (bpfload.KernelVersion, error) {
	var parts [3]uint32
	rest := release
	for i := range parts {
		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			if i == 2 {
				break // sublevel absent, eg. "4.9-rc3"
			}
			return 0, fmt.Errorf("unparseable kernel release %q", release)
		}
		// The packed encoding gives the minor one byte and the
		// sublevel two.
		limits := [3]uint64{0xff, 0xff, 0xffff}
		n, err := strconv.ParseUint(rest[:digits], 10, 32)
		if err != nil || n > limits[i] {
			return 0, fmt.Errorf("unparseable kernel release %q", release)
		}
		parts[i] = uint32(n)
		rest = rest[digits:]
		if !strings.HasPrefix(rest, ".") {
			break
		}
		rest = rest[1:]
	}
	return bpfload.KVer(parts[0], parts[1], parts[2]), nil
}

func archFromMachine(machine string) bpfload.Arch {
	switch {
	case machine == "x86_64", machine == "i686", machine == "i386":
		return bpfload.ArchX86
	case machine == "aarch64", strings.HasPrefix(machine, "arm"):
		return bpfload.ArchArm
	case machine == "riscv64":
		return bpfload.ArchRiscV
	}
	return bpfload.ArchUnknown
}

// machine64Bit reports the kernel's bitness. uname machine reflects
// the kernel even when the calling process is a 32-bit compat binary.
func machine64Bit(machine string) bool {
	switch machine {
	case "x86_64", "aarch64", "riscv64":
		return true
	}
	return false
}
