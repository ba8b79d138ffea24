package bpfload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf"
)

// Gates are the compatibility axes shared by map and program
// definitions: a half-open [min,max) loader-version window, a half-open
// [min,max) kernel-version window, and per-build/per-arch ignore flags.
type Gates struct {
	LoaderMin, LoaderMax uint32
	KernelMin, KernelMax KernelVersion

	IgnoreOnEng       bool
	IgnoreOnUser      bool
	IgnoreOnUserdebug bool
	IgnoreOnArm32     bool
	IgnoreOnAarch64   bool
	IgnoreOnX86_32    bool
	IgnoreOnX86_64    bool
	IgnoreOnRiscv64   bool
}

// MapDef is one decoded entry of an object's "maps" section.
type MapDef struct {
	Type       ebpf.MapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	Flags      uint32

	UID  uint32
	GID  uint32
	Mode uint32

	SELinuxContext Domain
	PinSubdir      Domain

	// Shared maps are pinned without the object name so that
	// multiple objects resolve to the same node.
	Shared bool

	Gates
}

// ProgDef is one decoded entry of an object's "progs" section. The
// record for program symbol <name> carries the symbol name <name>_def.
type ProgDef struct {
	UID uint32
	GID uint32

	// Optional programs downgrade a kernel load rejection from
	// object-fatal to a logged skip.
	Optional bool

	SELinuxContext Domain
	PinSubdir      Domain

	Gates
}

// Wire layouts. Records are fixed-size little-endian structures emitted
// by the object build; any size mismatch means a corrupt or mismatched
// artifact.
type mapRecord struct {
	Type       uint32
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	MapFlags   uint32
	Zero       uint32 // must be zero; formerly an inner-map slot
	UID        uint32
	GID        uint32
	Mode       uint32
	LoaderMin  uint32
	LoaderMax  uint32
	KernelMin  uint32
	KernelMax  uint32

	SELinuxContext [domainFieldSize]byte
	PinSubdir      [domainFieldSize]byte

	Shared            uint8
	IgnoreOnEng       uint8
	IgnoreOnUser      uint8
	IgnoreOnUserdebug uint8
	IgnoreOnArm32     uint8
	IgnoreOnAarch64   uint8
	IgnoreOnX86_32    uint8
	IgnoreOnX86_64    uint8
	IgnoreOnRiscv64   uint8
	_                 [3]uint8
}

type progRecord struct {
	UID       uint32
	GID       uint32
	KernelMin uint32
	KernelMax uint32
	LoaderMin uint32
	LoaderMax uint32

	SELinuxContext [domainFieldSize]byte
	PinSubdir      [domainFieldSize]byte

	Optional          uint8
	IgnoreOnEng       uint8
	IgnoreOnUser      uint8
	IgnoreOnUserdebug uint8
	IgnoreOnArm32     uint8
	IgnoreOnAarch64   uint8
	IgnoreOnX86_32    uint8
	IgnoreOnX86_64    uint8
	IgnoreOnRiscv64   uint8
	_                 [7]uint8
}

// MapRecordSize is the wire size of one maps-section record.
const MapRecordSize = 128

// ProgRecordSize is the wire size of one progs-section record.
const ProgRecordSize = 104

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// DecodeMapDefs decodes a raw "maps" section. The section must be an
// exact multiple of the record size and every record's reserved field
// must be zero; violations are malformed-object errors.
func DecodeMapDefs(data []byte) ([]MapDef, error) {
	if len(data)%MapRecordSize != 0 {
		return nil, &MalformedObjectError{
			Reason: fmt.Sprintf("maps section size %d not a multiple of %d", len(data), MapRecordSize),
		}
	}
	defs := make([]MapDef, 0, len(data)/MapRecordSize)
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var rec mapRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, &MalformedObjectError{Reason: fmt.Sprintf("maps record %d: %v", len(defs), err)}
		}
		if rec.Zero != 0 {
			return nil, &MalformedObjectError{
				Reason: fmt.Sprintf("maps record %d has non-zero reserved field %#x", len(defs), rec.Zero),
			}
		}
		sel, err := DomainFromLabel(cstr(rec.SELinuxContext[:]))
		if err != nil {
			return nil, err
		}
		sub, err := DomainFromSubdir(cstr(rec.PinSubdir[:]))
		if err != nil {
			return nil, err
		}
		defs = append(defs, MapDef{
			Type:           ebpf.MapType(rec.Type),
			KeySize:        rec.KeySize,
			ValueSize:      rec.ValueSize,
			MaxEntries:     rec.MaxEntries,
			Flags:          rec.MapFlags,
			UID:            rec.UID,
			GID:            rec.GID,
			Mode:           rec.Mode,
			SELinuxContext: sel,
			PinSubdir:      sub,
			Shared:         rec.Shared != 0,
			Gates:          rec.gates(),
		})
	}
	return defs, nil
}

// DecodeProgDefs decodes a raw "progs" section.
func DecodeProgDefs(data []byte) ([]ProgDef, error) {
	if len(data)%ProgRecordSize != 0 {
		return nil, &MalformedObjectError{
			Reason: fmt.Sprintf("progs section size %d not a multiple of %d", len(data), ProgRecordSize),
		}
	}
	defs := make([]ProgDef, 0, len(data)/ProgRecordSize)
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		var rec progRecord
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, &MalformedObjectError{Reason: fmt.Sprintf("progs record %d: %v", len(defs), err)}
		}
		sel, err := DomainFromLabel(cstr(rec.SELinuxContext[:]))
		if err != nil {
			return nil, err
		}
		sub, err := DomainFromSubdir(cstr(rec.PinSubdir[:]))
		if err != nil {
			return nil, err
		}
		defs = append(defs, ProgDef{
			UID:            rec.UID,
			GID:            rec.GID,
			Optional:       rec.Optional != 0,
			SELinuxContext: sel,
			PinSubdir:      sub,
			Gates:          rec.gates(),
		})
	}
	return defs, nil
}

func (rec *mapRecord) gates() Gates {
	return Gates{
		LoaderMin:         rec.LoaderMin,
		LoaderMax:         rec.LoaderMax,
		KernelMin:         KernelVersion(rec.KernelMin),
		KernelMax:         KernelVersion(rec.KernelMax),
		IgnoreOnEng:       rec.IgnoreOnEng != 0,
		IgnoreOnUser:      rec.IgnoreOnUser != 0,
		IgnoreOnUserdebug: rec.IgnoreOnUserdebug != 0,
		IgnoreOnArm32:     rec.IgnoreOnArm32 != 0,
		IgnoreOnAarch64:   rec.IgnoreOnAarch64 != 0,
		IgnoreOnX86_32:    rec.IgnoreOnX86_32 != 0,
		IgnoreOnX86_64:    rec.IgnoreOnX86_64 != 0,
		IgnoreOnRiscv64:   rec.IgnoreOnRiscv64 != 0,
	}
}

func (rec *progRecord) gates() Gates {
	return Gates{
		LoaderMin:         rec.LoaderMin,
		LoaderMax:         rec.LoaderMax,
		KernelMin:         KernelVersion(rec.KernelMin),
		KernelMax:         KernelVersion(rec.KernelMax),
		IgnoreOnEng:       rec.IgnoreOnEng != 0,
		IgnoreOnUser:      rec.IgnoreOnUser != 0,
		IgnoreOnUserdebug: rec.IgnoreOnUserdebug != 0,
		IgnoreOnArm32:     rec.IgnoreOnArm32 != 0,
		IgnoreOnAarch64:   rec.IgnoreOnAarch64 != 0,
		IgnoreOnX86_32:    rec.IgnoreOnX86_32 != 0,
		IgnoreOnX86_64:    rec.IgnoreOnX86_64 != 0,
		IgnoreOnRiscv64:   rec.IgnoreOnRiscv64 != 0,
	}
}
