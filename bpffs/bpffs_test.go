package bpffs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/netbpf/bpfload/bpffs"
)

func TestIsMounted(t *testing.T) {
	tests := []struct {
		name       string
		mountinfo  string
		mountPoint string
		want       bool
	}{
		{
			name: "util-linux format without propagation - no bpf",
			mountinfo: `15 20 0:3 / /proc rw,relatime - proc /proc rw
16 20 0:15 / /sys rw,relatime - sysfs /sys rw
17 20 0:5 / /dev rw,relatime - devtmpfs udev rw,size=1983516k,nr_inodes=495879,mode=755
20 1 8:4 / / rw,noatime - ext3 /dev/sda4 rw,errors=continue,user_xattr,acl,barrier=0,data=ordered
`,
			mountPoint: "/sys/fs/bpf",
			want:       false,
		},
		{
			name: "util-linux format without propagation - with bpf",
			mountinfo: `15 20 0:3 / /proc rw,relatime - proc /proc rw
16 20 0:15 / /sys rw,relatime - sysfs /sys rw
48 16 0:39 / /sys/fs/bpf rw,nosuid,nodev,noexec,relatime - bpf bpf rw,mode=700
`,
			mountPoint: "/sys/fs/bpf",
			want:       true,
		},
		{
			name: "format with propagation - with bpf",
			mountinfo: `22 31 0:6 / /dev rw,nosuid shared:12 - devtmpfs devtmpfs rw,size=6532720k,nr_inodes=16327128,mode=755
25 31 0:23 / /proc rw,nosuid,nodev,noexec,relatime shared:5 - proc proc rw
39 28 0:38 / /sys/fs/bpf rw,nosuid,nodev,noexec,relatime shared:11 - bpf bpf rw,gid=983,mode=770
`,
			mountPoint: "/sys/fs/bpf",
			want:       true,
		},
		{
			name: "different mount point",
			mountinfo: `30 22 0:27 / /sys/fs/bpf rw,nosuid,nodev,noexec,relatime shared:9 - bpf bpf rw,mode=700
`,
			mountPoint: "/some/other/path",
			want:       false,
		},
		{
			name: "trailing slash on mount point",
			mountinfo: `30 22 0:27 / /sys/fs/bpf rw,nosuid,nodev,noexec,relatime shared:9 - bpf bpf rw,mode=700
`,
			mountPoint: "/sys/fs/bpf/",
			want:       true,
		},
		{
			name: "multiple optional fields",
			mountinfo: `30 22 0:27 / /sys/fs/bpf rw,nosuid shared:9 master:1 - bpf bpf rw,mode=700
`,
			mountPoint: "/sys/fs/bpf",
			want:       true,
		},
		{
			name:       "empty file",
			mountinfo:  "",
			mountPoint: "/sys/fs/bpf",
			want:       false,
		},
		{
			name: "malformed line without separator",
			mountinfo: `this line has no separator
30 22 0:27 / /sys/fs/bpf rw,nosuid shared:9 - bpf bpf rw,mode=700
`,
			mountPoint: "/sys/fs/bpf",
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mountInfoPath := filepath.Join(t.TempDir(), "mountinfo")
			if err := os.WriteFile(mountInfoPath, []byte(tt.mountinfo), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			got, err := bpffs.IsMounted(mountInfoPath, tt.mountPoint)
			if err != nil {
				t.Fatalf("IsMounted: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsMounted = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsMountedMissingMountinfo(t *testing.T) {
	_, err := bpffs.IsMounted(filepath.Join(t.TempDir(), "nope"), "/sys/fs/bpf")
	if err == nil {
		t.Fatal("expected error for missing mountinfo")
	}
}

func TestCreatePinSubdir(t *testing.T) {
	root := t.TempDir()

	if err := bpffs.CreatePinSubdir(root, "tethering/"); err != nil {
		t.Fatalf("CreatePinSubdir: %v", err)
	}
	fi, err := os.Stat(filepath.Join(root, "tethering"))
	if err != nil {
		t.Fatalf("stat created subdir: %v", err)
	}
	if !fi.IsDir() {
		t.Fatal("pin subdir is not a directory")
	}
	if fi.Mode()&os.ModeSticky == 0 {
		t.Errorf("pin subdir mode %v lacks sticky bit", fi.Mode())
	}

	// Creating again is a no-op, not an error.
	if err := bpffs.CreatePinSubdir(root, "tethering/"); err != nil {
		t.Fatalf("CreatePinSubdir second call: %v", err)
	}
}

func TestCreatePinSubdirNested(t *testing.T) {
	root := t.TempDir()
	if err := bpffs.CreatePinSubdir(root, "netd_shared/mainline_done"); err != nil {
		t.Fatalf("CreatePinSubdir nested: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "netd_shared", "mainline_done")); err != nil {
		t.Fatalf("stat nested marker: %v", err)
	}
}

func TestCreatePinSubdirEmptyPrefix(t *testing.T) {
	if err := bpffs.CreatePinSubdir(t.TempDir(), ""); err != nil {
		t.Fatalf("CreatePinSubdir with empty prefix: %v", err)
	}
}
