package bpfload

import "fmt"

// Domain enumerates the sepolicy contexts and pin subdirectories the
// loader knows about. Objects declare both a selinux context and a pin
// subdirectory per map/program; because contexts are implemented via
// pin-into-labelled-subdirectory plus rename, the two sets are required
// to be in 1:1 correspondence, and Domain names both sides of that
// pairing.
type Domain int

const (
	// DomainUnspecified means "use the default for this pin
	// location", ie. the structural prefix of the source directory.
	DomainUnspecified Domain = iota
	DomainTethering
	DomainNetPrivate
	DomainNetShared
	DomainNetdReadonly
	DomainNetdShared
	DomainLoader
)

// domainFieldSize is the size of the fixed selinux_context and
// pin_subdir character-array fields in map and program records.
const domainFieldSize = 32

type domainEntry struct {
	domain Domain
	label  string // selinux context, eg. fs_bpf_tethering
	subdir string // pin subdirectory, eg. tethering/
}

var domainTable = []domainEntry{
	{DomainUnspecified, "", ""},
	{DomainTethering, "fs_bpf_tethering", "tethering/"},
	{DomainNetPrivate, "fs_bpf_net_private", "net_private/"},
	{DomainNetShared, "fs_bpf_net_shared", "net_shared/"},
	{DomainNetdReadonly, "fs_bpf_netd_readonly", "netd_readonly/"},
	{DomainNetdShared, "fs_bpf_netd_shared", "netd_shared/"},
	{DomainLoader, "fs_bpf_loader", "loader/"},
}

// ValidateDomains checks the domain table once at startup: every Domain
// value appears exactly once, labels and subdirectories are mutually
// distinct (the mapping is a bijection), and every string fits its
// fixed-size record field. Failing fast here replaces scattered
// checks deep inside arbitrary call chains.
func ValidateDomains() error {
	if len(domainTable) != int(DomainLoader)+1 {
		return fmt.Errorf("domain table has %d entries, want %d", len(domainTable), int(DomainLoader)+1)
	}
	seenLabel := map[string]bool{}
	seenSubdir := map[string]bool{}
	for i, e := range domainTable {
		if e.domain != Domain(i) {
			return fmt.Errorf("domain table entry %d holds domain %d, table must be ordered", i, e.domain)
		}
		if seenLabel[e.label] {
			return fmt.Errorf("selinux context %q maps to two domains", e.label)
		}
		if seenSubdir[e.subdir] {
			return fmt.Errorf("pin subdir %q maps to two domains", e.subdir)
		}
		if len(e.label) >= domainFieldSize || len(e.subdir) >= domainFieldSize {
			return fmt.Errorf("domain %d strings exceed %d byte record field", e.domain, domainFieldSize)
		}
		seenLabel[e.label] = true
		seenSubdir[e.subdir] = true
	}
	return nil
}

// DomainFromLabel resolves a declared selinux context string. An
// unrecognized value is unrecoverable: it can only come from an object
// built against a different loader, never from external input.
func DomainFromLabel(s string) (Domain, error) {
	for _, e := range domainTable {
		if e.label == s {
			return e.domain, nil
		}
	}
	return DomainUnspecified, &UnknownDomainError{Kind: "selinux_context", Value: s}
}

// DomainFromSubdir resolves a declared pin subdirectory string.
func DomainFromSubdir(s string) (Domain, error) {
	for _, e := range domainTable {
		if e.subdir == s {
			return e.domain, nil
		}
	}
	return DomainUnspecified, &UnknownDomainError{Kind: "pin_subdir", Value: s}
}

// PinSubdirs returns the pin subdirectories of every specified domain,
// in domain order.
func PinSubdirs() []string {
	subdirs := make([]string, 0, len(domainTable)-1)
	for _, e := range domainTable {
		if e.domain.Specified() {
			subdirs = append(subdirs, e.subdir)
		}
	}
	return subdirs
}

// Specified reports whether the domain overrides the default pin
// location.
func (d Domain) Specified() bool { return d != DomainUnspecified }

// Label returns the selinux context string for the domain.
func (d Domain) Label() string {
	return domainTable[d].label
}

// Subdir returns the pin subdirectory for the domain, or the given
// default (the location's structural prefix) when unspecified.
func (d Domain) Subdir(unspecified string) string {
	if d == DomainUnspecified {
		return unspecified
	}
	return domainTable[d].subdir
}
