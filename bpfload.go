// Package bpfload holds the domain types shared by the netbpfload
// loader: the loader context, map and program definitions decoded from
// BPF object files, the sepolicy domain table, and the typed errors the
// loader reports.
//
// The loader itself lives in the loader package; kernel access in the
// kernel package; ELF container parsing in the elfobj package.
package bpfload

// MainlineVersion is the first loader generation shipped as part of the
// mainline networking module. Objects whose loader-version lower bound
// is at or above this generation may legitimately declare no programs
// at all (maps-only objects).
const MainlineVersion uint32 = 42
