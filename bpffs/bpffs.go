// Package bpffs provides functions to check and mount the BPF pinning
// filesystem and to prepare its pin subdirectories.
package bpffs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	// DefaultMountInfoPath is the path to the mountinfo file.
	DefaultMountInfoPath = "/proc/self/mountinfo"

	// DefaultRoot is where the pinning filesystem lives on a
	// standard system.
	DefaultRoot = "/sys/fs/bpf/"

	// defaultScanMaxLineLen is the maximum line length for
	// scanning mountinfo. Some nodes/runtimes can produce long
	// lines; this prevents ErrTooLong.
	defaultScanMaxLineLen = 1024 * 1024
)

// IsMounted reports whether a bpffs is mounted at mountPoint by
// parsing mountInfoPath (e.g. /proc/self/mountinfo).
//
// The mountinfo format is documented in proc(5). Each line contains:
//
//	mount_id parent_id major:minor root mount_point options [optional_fields...] - fstype source super_options
//
// Example bpffs entry:
//
//	30 22 0:27 / /sys/fs/bpf rw,nosuid shared:9 - bpf bpf rw,mode=700
//	              ↑                               ↑
//	              mount_point (fields[4])         fstype (after " - ")
//
// The key insight from libmount (util-linux) is that the separator "
// - " must be found using string search, not by assuming a fixed
// field position. This is because optional fields (like "shared:N"
// for mount propagation) may be present between the mount options and
// the separator.
func IsMounted(mountInfoPath, mountPoint string) (bool, error) {
	file, err := os.Open(mountInfoPath)
	if err != nil {
		return false, fmt.Errorf("opening mountinfo: %w", err)
	}
	defer file.Close()

	mountPoint = trimSlash(mountPoint)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), defaultScanMaxLineLen)

	for scanner.Scan() {
		line := scanner.Text()

		// Find the separator " - " which precedes "fstype
		// source super_options". This is how libmount parses
		// mountinfo (see mnt_parse_mountinfo_line).
		sepIdx := strings.Index(line, " - ")
		if sepIdx == -1 {
			continue
		}

		// Parse the prefix: mount_id parent_id major:minor
		// root mount_point ...
		prefix := line[:sepIdx]
		fields := strings.Fields(prefix)
		if len(fields) < 5 {
			continue
		}
		mntPoint := fields[4]

		// Parse the suffix after " - ": fstype source
		// super_options.
		suffix := line[sepIdx+3:] // skip " - "
		suffixFields := strings.Fields(suffix)
		if len(suffixFields) < 1 {
			continue
		}
		fsType := suffixFields[0]

		// Match: bpffs at the requested path.
		if mntPoint == mountPoint && fsType == "bpf" {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("reading mountinfo: %w", err)
	}

	return false, nil
}

// Mount mounts a bpffs at mountPoint, creating the directory if needed.
func Mount(mountPoint string) error {
	fi, err := os.Stat(mountPoint)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return fmt.Errorf("mount point exists but is not a directory")
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(mountPoint, 0755); err != nil {
			return fmt.Errorf("creating mount point directory: %w", err)
		}
	default:
		return fmt.Errorf("stat mount point: %w", err)
	}

	if err := syscall.Mount("bpffs", mountPoint, "bpf", 0, ""); err != nil {
		return fmt.Errorf("mount syscall: %w", err)
	}

	return nil
}

// EnsureMounted ensures a bpffs is mounted at mountPoint. It checks
// mountInfoPath (e.g. /proc/self/mountinfo) for an existing bpf mount
// at mountPoint; if none is found, it mounts one.
//
// Equivalent to:
//
//	if ! findmnt --noheadings --types bpf <mountPoint>; then
//	  mount bpffs <mountPoint> -t bpf
//	fi
func EnsureMounted(mountInfoPath, mountPoint string) error {
	mounted, err := IsMounted(mountInfoPath, mountPoint)
	if err != nil {
		return err
	}
	if mounted {
		return nil
	}
	return Mount(mountPoint)
}

// CreatePinSubdir creates a pin subdirectory under root, group and
// world searchable with the sticky bit so differently-privileged
// owners can pin into it while only owners can remove their nodes. An
// empty prefix is a no-op: pins land directly under root. The umask
// is cleared for the duration so the requested mode survives.
func CreatePinSubdir(root, prefix string) error {
	if prefix == "" {
		return nil
	}
	prev := unix.Umask(0)
	defer unix.Umask(prev)

	path := trimSlash(root) + "/" + trimSlash(prefix)
	if err := os.MkdirAll(path, os.ModeSticky|0o777); err != nil {
		return fmt.Errorf("create pin subdirectory %s: %w", path, err)
	}
	return nil
}

func trimSlash(p string) string {
	return strings.TrimRight(p, "/")
}
