package bpfload

import (
	"fmt"
	"strings"

	"github.com/cilium/ebpf"
)

// MapParams are the structural parameters of a kernel map, used both to
// request creation and to validate a reused pin against its
// declaration.
type MapParams struct {
	Name       string
	Type       ebpf.MapType
	KeySize    uint32
	ValueSize  uint32
	MaxEntries uint32
	Flags      uint32
}

// Structural compares everything except the name, which older kernels
// cannot report and newer kernels may have truncated.
func (p MapParams) Structural() MapParams {
	p.Name = ""
	return p
}

// NotUniqueError reports that a pin already existed at a map's path but
// its structure does not match the declaration. This is never silently
// accepted: it means an object file changed underneath an existing pin,
// or a shared map is declared twice with different parameters.
type NotUniqueError struct {
	Pin  string
	Want MapParams
	Got  MapParams
}

func (e *NotUniqueError) Error() string {
	return fmt.Sprintf("pinned map %s mismatch: want/got type:%d/%d key:%d/%d value:%d/%d entries:%d/%d flags:%#x/%#x",
		e.Pin, e.Want.Type, e.Got.Type, e.Want.KeySize, e.Got.KeySize,
		e.Want.ValueSize, e.Got.ValueSize, e.Want.MaxEntries, e.Got.MaxEntries,
		e.Want.Flags, e.Got.Flags)
}

// UnknownDomainError reports a selinux context or pin subdirectory
// string that is not in the domain table. Definitions are co-built with
// the loader, so this always indicates a mismatched artifact and is
// fatal for the whole run.
type UnknownDomainError struct {
	Kind  string // "selinux_context" or "pin_subdir"
	Value string
}

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("unrecognized %s %q", e.Kind, e.Value)
}

// MalformedObjectError reports structural corruption in an object file:
// truncated or missing required sections, badly sized definition
// records, or reserved fields with unexpected values.
type MalformedObjectError struct {
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return "malformed object: " + e.Reason
}

// VerifierError reports a kernel program-load rejection together with
// the captured verifier log, trimmed of trailing blank lines.
type VerifierError struct {
	Name string
	Log  []string
	Err  error
}

func (e *VerifierError) Error() string {
	if len(e.Log) == 0 {
		return fmt.Sprintf("program %s rejected: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("program %s rejected: %v: %s", e.Name, e.Err, strings.Join(e.Log, "; "))
}

func (e *VerifierError) Unwrap() error { return e.Err }
