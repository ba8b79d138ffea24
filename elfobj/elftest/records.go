package elftest

import (
	"encoding/binary"

	"github.com/netbpf/bpfload"
)

// MapRecord renders one 128-byte maps-section record for def.
func MapRecord(def bpfload.MapDef) []byte {
	b := make([]byte, bpfload.MapRecordSize)
	le := binary.LittleEndian

	le.PutUint32(b[0:], uint32(def.Type))
	le.PutUint32(b[4:], def.KeySize)
	le.PutUint32(b[8:], def.ValueSize)
	le.PutUint32(b[12:], def.MaxEntries)
	le.PutUint32(b[16:], def.Flags)
	// Offset 20 is the reserved field and stays zero.
	le.PutUint32(b[24:], def.UID)
	le.PutUint32(b[28:], def.GID)
	le.PutUint32(b[32:], def.Mode)
	le.PutUint32(b[36:], def.LoaderMin)
	le.PutUint32(b[40:], def.LoaderMax)
	le.PutUint32(b[44:], uint32(def.KernelMin))
	le.PutUint32(b[48:], uint32(def.KernelMax))
	copy(b[52:84], def.SELinuxContext.Label())
	copy(b[84:116], def.PinSubdir.Subdir(""))
	b[116] = flag(def.Shared)
	putIgnoreFlags(b[117:125], def.Gates)
	return b
}

// ProgRecord renders one 104-byte progs-section record for def.
func ProgRecord(def bpfload.ProgDef) []byte {
	b := make([]byte, bpfload.ProgRecordSize)
	le := binary.LittleEndian

	le.PutUint32(b[0:], def.UID)
	le.PutUint32(b[4:], def.GID)
	le.PutUint32(b[8:], uint32(def.KernelMin))
	le.PutUint32(b[12:], uint32(def.KernelMax))
	le.PutUint32(b[16:], def.LoaderMin)
	le.PutUint32(b[20:], def.LoaderMax)
	copy(b[24:56], def.SELinuxContext.Label())
	copy(b[56:88], def.PinSubdir.Subdir(""))
	b[88] = flag(def.Optional)
	putIgnoreFlags(b[89:97], def.Gates)
	return b
}

func putIgnoreFlags(b []byte, g bpfload.Gates) {
	b[0] = flag(g.IgnoreOnEng)
	b[1] = flag(g.IgnoreOnUser)
	b[2] = flag(g.IgnoreOnUserdebug)
	b[3] = flag(g.IgnoreOnArm32)
	b[4] = flag(g.IgnoreOnAarch64)
	b[5] = flag(g.IgnoreOnX86_32)
	b[6] = flag(g.IgnoreOnX86_64)
	b[7] = flag(g.IgnoreOnRiscv64)
}

func flag(v bool) byte {
	if v {
		return 1
	}
	return 0
}
