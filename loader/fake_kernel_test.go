package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/elfobj"
	"github.com/netbpf/bpfload/elfobj/elftest"
)

// fakeKernel records every call on the syscall surface and backs pins
// with real files, so the stat/rename-based publish paths run against a
// tempdir root exactly as they would against a mounted bpffs.
type fakeKernel struct {
	nextFD int

	creates []bpfload.MapParams
	loads   []ProgParams
	attrs   map[string]attrCall
	puts    []putCall

	pinnedMaps  map[string]bpfload.MapParams
	pinnedProgs map[string]string

	failProg map[string]error
}

type attrCall struct{ mode, uid, gid uint32 }

type putCall struct {
	fd         int
	key, value uint32
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		nextFD:      10,
		attrs:       map[string]attrCall{},
		pinnedMaps:  map[string]bpfload.MapParams{},
		pinnedProgs: map[string]string{},
		failProg:    map[string]error{},
	}
}

func (k *fakeKernel) CreateMap(p bpfload.MapParams) (Map, error) {
	// The kernel forces devmap types read-only from the program side.
	if p.Type == ebpf.DevMap || p.Type == ebpf.DevMapHash {
		p.Flags |= unix.BPF_F_RDONLY_PROG
	}
	k.creates = append(k.creates, p)
	fd := k.nextFD
	k.nextFD++
	return &fakeMap{k: k, fd: fd, params: p}, nil
}

func (k *fakeKernel) OpenPinnedMap(path string) (Map, error) {
	p, ok := k.pinnedMaps[path]
	if !ok {
		return nil, fmt.Errorf("no pinned map at %s", path)
	}
	fd := k.nextFD
	k.nextFD++
	// Reopened pins hand out read-only handles, like the production
	// adapter. The loader only writes through maps it created.
	return &fakeMap{k: k, fd: fd, params: p, readOnly: true}, nil
}

func (k *fakeKernel) LoadProgram(p ProgParams) (Program, error) {
	if err := k.failProg[p.Name]; err != nil {
		return nil, err
	}
	// Insns alias the caller's buffer; copy for later assertions.
	rec := p
	rec.Insns = append([]byte(nil), p.Insns...)
	k.loads = append(k.loads, rec)
	return &fakeProg{k: k, name: p.Name}, nil
}

func (k *fakeKernel) OpenPinnedProgram(path string) (Program, error) {
	name, ok := k.pinnedProgs[path]
	if !ok {
		return nil, fmt.Errorf("no pinned program at %s", path)
	}
	return &fakeProg{k: k, name: name}, nil
}

func (k *fakeKernel) SetAttr(path string, mode, uid, gid uint32) error {
	k.attrs[path] = attrCall{mode: mode, uid: uid, gid: gid}
	return nil
}

type fakeMap struct {
	k        *fakeKernel
	fd       int
	params   bpfload.MapParams
	readOnly bool
	closed   bool
}

func (m *fakeMap) FD() int                            { return m.fd }
func (m *fakeMap) ID() (uint32, error)                { return uint32(m.fd), nil }
func (m *fakeMap) Params() (bpfload.MapParams, error) { return m.params, nil }

func (m *fakeMap) Pin(path string) error {
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return err
	}
	m.k.pinnedMaps[path] = m.params
	return nil
}

func (m *fakeMap) Put(key, value uint32) error {
	if m.readOnly {
		return fmt.Errorf("map fd %d opened read-only", m.fd)
	}
	m.k.puts = append(m.k.puts, putCall{fd: m.fd, key: key, value: value})
	return nil
}

func (m *fakeMap) Close() error {
	m.closed = true
	return nil
}

type fakeProg struct {
	k    *fakeKernel
	name string
}

func (p *fakeProg) ID() (uint32, error) { return 1, nil }

func (p *fakeProg) Pin(path string) error {
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return err
	}
	p.k.pinnedProgs[path] = p.name
	return nil
}

func (p *fakeProg) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testContext is a 64-bit arm device on a modern kernel, the least
// restrictive configuration.
func testContext() bpfload.Context {
	return bpfload.Context{
		LoaderVersion:  bpfload.MainlineVersion,
		Kernel:         bpfload.KVer(5, 15, 0),
		Build:          bpfload.BuildUser,
		Arch:           bpfload.ArchArm,
		Kernel64Bit:    true,
		Userspace64Bit: true,
		PageSize:       4096,
	}
}

func newTestLoader(t *testing.T, k Kernel, ctx bpfload.Context, pinRoot string) *Loader {
	t.Helper()
	l, err := New(k, discardLogger(), ctx, pinRoot)
	require.NoError(t, err)
	return l
}

func parseObject(t *testing.T, image []byte, name string) *elfobj.Object {
	t.Helper()
	o, err := elfobj.New(bytes.NewReader(image), name)
	require.NoError(t, err)
	return o
}

// openGates admit everything the test context runs as.
func openGates() bpfload.Gates {
	return bpfload.Gates{
		LoaderMax: 0x10000,
		KernelMax: bpfload.KernelVersion(0xffffffff),
	}
}

// ldImm64 renders the two-slot 64-bit load-immediate targeting dst, the
// instruction form map relocations patch.
func ldImm64(dst byte) []byte {
	ins := make([]byte, 16)
	ins[0] = 0x18
	ins[1] = dst & 0x0f
	return ins
}

func retInsn() []byte {
	ins := make([]byte, 8)
	ins[0] = 0x95
	return ins
}

func immAt(code []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(code[off+4:])
}

func mapsSection(defs ...bpfload.MapDef) []byte {
	var out []byte
	for _, d := range defs {
		out = append(out, elftest.MapRecord(d)...)
	}
	return out
}
