package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/cilium/ebpf/asm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insn renders one 8-byte instruction slot.
func insn(op, regs byte, off int16, imm int32) []byte {
	b := make([]byte, 8)
	b[0] = op
	b[1] = regs
	binary.LittleEndian.PutUint16(b[2:], uint16(off))
	binary.LittleEndian.PutUint32(b[4:], uint32(imm))
	return b
}

func TestDecodeInstructions(t *testing.T) {
	var code []byte
	code = append(code, insn(0xb7, 0x00, 0, 0)...) // mov64 r0, 0
	code = append(code, insn(0x95, 0x00, 0, 0)...) // exit

	insns, err := decodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, insns, 2)
	assert.Equal(t, asm.Mov.Op(asm.ImmSource), insns[0].OpCode)
	assert.Equal(t, asm.Return().OpCode, insns[1].OpCode)
}

func TestDecodeInstructionsMapLoad(t *testing.T) {
	// A patched map reference: two-slot ldimm64, src nibble set to
	// the pseudo map fd marker, fd in the first slot's immediate.
	var code []byte
	code = append(code, insn(0x18, 0x11, 0, 42)...) // ld_imm64 r1, map fd 42
	code = append(code, insn(0x00, 0x00, 0, 0)...)  // second slot
	code = append(code, insn(0x95, 0x00, 0, 0)...)  // exit

	insns, err := decodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, insns, 2)
	assert.True(t, insns[0].IsLoadFromMap())
	assert.Equal(t, int32(42), int32(insns[0].Constant))
}

func TestDecodeInstructionsTruncated(t *testing.T) {
	code := insn(0x18, 0x11, 0, 42) // ldimm64 missing its second slot
	_, err := decodeInstructions(code)
	assert.Error(t, err)
}

func TestDecodeInstructionsEmpty(t *testing.T) {
	insns, err := decodeInstructions(nil)
	require.NoError(t, err)
	assert.Empty(t, insns)
}

func TestTrimVerifierLog(t *testing.T) {
	assert.Equal(t, []string{"R1 !read_ok"}, trimVerifierLog([]string{"R1 !read_ok", "", ""}))
	assert.Empty(t, trimVerifierLog([]string{"", ""}))
	assert.Nil(t, trimVerifierLog(nil))
}
