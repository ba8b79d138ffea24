package bpffs

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// PinKind distinguishes map pins from program pins.
type PinKind int

const (
	KindMap PinKind = iota
	KindProg
)

// String returns "map" or "prog".
func (k PinKind) String() string {
	if k == KindProg {
		return "prog"
	}
	return "map"
}

// Pin represents one pinned BPF node found under the pin root.
type Pin struct {
	// Path is the full path to the pin.
	Path string
	// Prefix is the subdirectory the pin lives under, relative to
	// the root; empty for pins directly under the root.
	Prefix string
	// Kind says whether the pin is a map or a program.
	Kind PinKind
	// Object is the name of the object the node was loaded from.
	// Empty for shared maps, whose pin names omit the object.
	// Derived by splitting the pin name at the first underscore,
	// so an object name containing underscores is split early.
	Object string
	// Node is the map or program name within the object.
	Node string
	// Stale marks a tmp_ pin left behind by an interrupted
	// publish. Stale pins were never renamed into place and can
	// be removed.
	Stale bool
}

// Scanner provides read-only access to the pin directory layout. It
// encapsulates the pin naming conventions and provides a streaming
// iterator over pinned nodes.
type Scanner struct {
	root        string
	prefixes    []string
	onMalformed func(path string, err error)
}

// NewScanner creates a Scanner over root and the given pin
// subdirectory prefixes. The root itself is always scanned.
func NewScanner(root string, prefixes ...string) *Scanner {
	return &Scanner{root: trimSlash(root), prefixes: prefixes}
}

// WithOnMalformed sets a callback for pin names that carry a map_ or
// prog_ prefix but do not parse. The callback receives the path and
// the parse error. Returns the Scanner for chaining.
func (s *Scanner) WithOnMalformed(f func(path string, err error)) *Scanner {
	s.onMalformed = f
	return s
}

func (s *Scanner) reportMalformed(path string, err error) {
	if s.onMalformed != nil {
		s.onMalformed(path, err)
	}
}

// Pins returns an iterator over pins under the root and each prefix,
// in prefix order. Errors are yielded only for failures that prevent
// enumeration. Entries that are not pins (directories, foreign files)
// are skipped.
func (s *Scanner) Pins(ctx context.Context) iter.Seq2[Pin, error] {
	return func(yield func(Pin, error) bool) {
		for _, prefix := range append([]string{""}, s.prefixes...) {
			dir := s.root
			if prefix != "" {
				dir = filepath.Join(s.root, prefix)
			}

			entries, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue // prefix never created: no pins
				}
				yield(Pin{}, fmt.Errorf("read dir %s: %w", dir, err))
				return
			}

			for _, entry := range entries {
				if ctx.Err() != nil {
					yield(Pin{}, ctx.Err())
					return
				}
				if entry.IsDir() {
					continue
				}

				name := entry.Name()
				pin, ok, err := parsePinName(name)
				if err != nil {
					s.reportMalformed(filepath.Join(dir, name), err)
					continue
				}
				if !ok {
					continue
				}

				pin.Path = filepath.Join(dir, name)
				pin.Prefix = prefix
				if !yield(pin, nil) {
					return
				}
			}
		}
	}
}

// Scan materialises the iterator into a slice.
func (s *Scanner) Scan(ctx context.Context) ([]Pin, error) {
	var pins []Pin
	for pin, err := range s.Pins(ctx) {
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

// parsePinName parses "map_<obj>_<node>", "map_<node>",
// "prog_<obj>_<node>" and their tmp_ variants. ok is false for names
// that are not pins at all; err is non-nil for names that carry a pin
// prefix but nothing after it.
func parsePinName(name string) (Pin, bool, error) {
	var pin Pin

	rest, stale := strings.CutPrefix(name, "tmp_")
	pin.Stale = stale

	switch {
	case strings.HasPrefix(rest, "map_"):
		pin.Kind = KindMap
		rest = strings.TrimPrefix(rest, "map_")
	case strings.HasPrefix(rest, "prog_"):
		pin.Kind = KindProg
		rest = strings.TrimPrefix(rest, "prog_")
	default:
		return Pin{}, false, nil
	}

	if rest == "" {
		return Pin{}, false, fmt.Errorf("empty %s pin name", pin.Kind)
	}

	if obj, node, found := strings.Cut(rest, "_"); found && node != "" {
		pin.Object = obj
		pin.Node = node
	} else {
		pin.Node = rest
	}
	return pin, true, nil
}
