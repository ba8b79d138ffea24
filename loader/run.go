package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cilium/ebpf"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/bpffs"
)

// ObjectResult records the outcome of one object file for reporting.
type ObjectResult struct {
	Path   string
	Object string
	Prefix string
	Err    error
}

// DoneMarker is the subdirectory whose presence tells consumers the
// loader has completed a full run.
const DoneMarker = "netd_shared/mainline_done"

// Run sweeps every location in order. A single object's failure is
// recorded and the scan continues, but any recorded failure makes the
// whole run fail afterwards: every consumer assumes all of these
// resources exist before it proceeds, so a partial boot must fail
// loudly here rather than be discovered ad hoc downstream.
func (l *Loader) Run(locations []Location) ([]ObjectResult, error) {
	// Pin subdirectories must all exist up front: selinux-context
	// pin-and-rename can target any domain's subdirectory
	// regardless of which location the object came from. The
	// loader/ subdirectory has no source directory of its own.
	for _, loc := range locations {
		if err := bpffs.CreatePinSubdir(l.pinRoot, loc.Prefix); err != nil {
			return nil, err
		}
	}
	if err := bpffs.CreatePinSubdir(l.pinRoot, bpfload.DomainLoader.Subdir("")); err != nil {
		return nil, err
	}

	var results []ObjectResult
	var failures []error
	for _, loc := range locations {
		entries, err := os.ReadDir(loc.Dir)
		if err != nil {
			if os.IsNotExist(err) {
				l.log.Debug("no such object directory", "dir", loc.Dir)
				continue
			}
			return results, fmt.Errorf("scan %s: %w", loc.Dir, err)
		}
		for _, e := range entries {
			if !strings.HasSuffix(e.Name(), ".o") {
				continue
			}
			path := filepath.Join(loc.Dir, e.Name())
			err := l.Load(path, loc.Prefix)
			results = append(results, ObjectResult{
				Path:   path,
				Object: e.Name(),
				Prefix: loc.Prefix,
				Err:    err,
			})
			if err != nil {
				l.log.Error("failed to load object", "object", path, "error", err)
				failures = append(failures, fmt.Errorf("%s: %w", path, err))
			} else {
				l.log.Info("loaded object", "object", path)
			}
		}
	}

	if len(failures) > 0 {
		return results, fmt.Errorf("critical failure loading bpf objects: %w", errors.Join(failures...))
	}

	if err := l.writeCanary(); err != nil {
		return results, err
	}
	if err := bpffs.CreatePinSubdir(l.pinRoot, DoneMarker); err != nil {
		return results, err
	}
	return results, nil
}

// writeCanary creates a throwaway two-element array map and writes a
// fixed value into index 1. This exercises the map-update path once per
// boot; a failure here means a kernel too broken for any consumer to
// function.
func (l *Loader) writeCanary() error {
	m, err := l.kernel.CreateMap(bpfload.MapParams{
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: 2,
	})
	if err != nil {
		return fmt.Errorf("create canary map: %w", err)
	}
	defer m.Close()
	if err := m.Put(1, 123); err != nil {
		return fmt.Errorf("write canary map entry: %w", err)
	}
	return nil
}
