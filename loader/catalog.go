package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cilium/ebpf"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/elfobj"
)

// sectionType maps a code-section name prefix to the program type and
// expected attach type it implies. Sections are named
// <prefix>/<program-name> by the object build; the prefix is the only
// source of type information.
type sectionType struct {
	prefix string
	prog   ebpf.ProgramType
	attach ebpf.AttachType
}

var sectionTypes = []sectionType{
	{"bind4/", ebpf.CGroupSockAddr, ebpf.AttachCGroupInet4Bind},
	{"bind6/", ebpf.CGroupSockAddr, ebpf.AttachCGroupInet6Bind},
	{"cgroupskb/", ebpf.CGroupSKB, ebpf.AttachNone},
	{"cgroupsock/", ebpf.CGroupSock, ebpf.AttachNone},
	{"cgroupsockcreate/", ebpf.CGroupSock, ebpf.AttachCGroupInetSockCreate},
	{"cgroupsockrelease/", ebpf.CGroupSock, ebpf.AttachCgroupInetSockRelease},
	{"connect4/", ebpf.CGroupSockAddr, ebpf.AttachCGroupInet4Connect},
	{"connect6/", ebpf.CGroupSockAddr, ebpf.AttachCGroupInet6Connect},
	{"egress/", ebpf.CGroupSKB, ebpf.AttachCGroupInetEgress},
	{"getsockopt/", ebpf.CGroupSockopt, ebpf.AttachCGroupGetsockopt},
	{"ingress/", ebpf.CGroupSKB, ebpf.AttachCGroupInetIngress},
	{"postbind4/", ebpf.CGroupSock, ebpf.AttachCGroupInet4PostBind},
	{"postbind6/", ebpf.CGroupSock, ebpf.AttachCGroupInet6PostBind},
	{"recvmsg4/", ebpf.CGroupSockAddr, ebpf.AttachCGroupUDP4Recvmsg},
	{"recvmsg6/", ebpf.CGroupSockAddr, ebpf.AttachCGroupUDP6Recvmsg},
	{"schedact/", ebpf.SchedACT, ebpf.AttachNone},
	{"schedcls/", ebpf.SchedCLS, ebpf.AttachNone},
	{"sendmsg4/", ebpf.CGroupSockAddr, ebpf.AttachCGroupUDP4Sendmsg},
	{"sendmsg6/", ebpf.CGroupSockAddr, ebpf.AttachCGroupUDP6Sendmsg},
	{"setsockopt/", ebpf.CGroupSockopt, ebpf.AttachCGroupSetsockopt},
	{"skfilter/", ebpf.SocketFilter, ebpf.AttachNone},
	{"sockops/", ebpf.SockOps, ebpf.AttachCGroupSockOps},
	{"sysctl", ebpf.CGroupSysctl, ebpf.AttachCGroupSysctl},
	{"xdp/", ebpf.XDP, ebpf.AttachNone},
}

// classifySection resolves a raw (pre-sanitization) section name
// against the prefix table.
func classifySection(name string) (sectionType, bool) {
	for _, st := range sectionTypes {
		if strings.HasPrefix(name, st.prefix) {
			return st, true
		}
	}
	return sectionType{}, false
}

// codeSection is one catalogued program: typed bytecode plus its
// relocation table and linked program definition.
type codeSection struct {
	// name is the sanitized section name ('/' replaced by '_'),
	// used as the kernel program name.
	name       string
	progType   ebpf.ProgramType
	attachType ebpf.AttachType
	data       []byte
	rels       []elfobj.Rel

	def    bpfload.ProgDef
	hasDef bool
}

// errNoPrograms reports an object that declares no programs at all.
// Only maps-only objects targeting the mainline loader generation may
// do this.
var errNoPrograms = errors.New("object declares no programs")

// catalogCodeSections walks the section table and collects every
// section whose name matches a known prefix. Unmatched sections are
// ignored here, before any kernel call can be attempted with a
// zero-value type.
func (l *Loader) catalogCodeSections(obj *elfobj.Object) ([]codeSection, error) {
	defsData, err := obj.SectionData("progs")
	if elfobj.IsNoSection(err) {
		return nil, errNoPrograms
	}
	if err != nil {
		return nil, err
	}
	defs, err := bpfload.DecodeProgDefs(defsData)
	if err != nil {
		return nil, err
	}
	defNames, err := obj.SectionSymbolNames("progs")
	if err != nil {
		return nil, err
	}
	if len(defNames) != len(defs) {
		return nil, &bpfload.MalformedObjectError{
			Reason: fmt.Sprintf("progs section has %d records but %d symbols", len(defs), len(defNames)),
		}
	}

	var sections []codeSection
	for _, rawName := range obj.SectionNames() {
		st, ok := classifySection(rawName)
		if !ok {
			continue
		}
		data, err := obj.SectionData(rawName)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		cs := codeSection{
			name:       strings.ReplaceAll(rawName, "/", "_"),
			progType:   st.prog,
			attachType: st.attach,
			data:       data,
		}

		funcs, err := obj.SectionFuncSymbolNames(rawName)
		if err != nil {
			return nil, err
		}
		if len(funcs) == 0 {
			return nil, &bpfload.MalformedObjectError{
				Reason: fmt.Sprintf("code section %q has no function symbol", rawName),
			}
		}
		// The definition record for program <sym> carries the
		// symbol <sym>_def; record order and symbol order are
		// both the build's declaration order.
		for i, dn := range defNames {
			if dn == funcs[0]+"_def" {
				cs.def = defs[i]
				cs.hasDef = true
				break
			}
		}

		if cs.rels, err = obj.Relocations(rawName); err != nil {
			return nil, err
		}

		l.log.Debug("catalogued code section", "section", rawName, "type", st.prog, "relocations", len(cs.rels))
		sections = append(sections, cs)
	}
	return sections, nil
}
