// Package logging provides structured logging configuration for the
// bpf loader.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level represents a log level with support for trace level below
// slog's built-in levels. Values match slog.Level constants for debug
// through error.
type Level int

const (
	// LevelTrace is the most verbose level, below debug.
	LevelTrace Level = -8
	// LevelDebug is for debug messages. Matches slog.LevelDebug.
	LevelDebug Level = -4
	// LevelInfo is for informational messages. Matches slog.LevelInfo.
	LevelInfo Level = 0
	// LevelWarn is for warning messages. Matches slog.LevelWarn.
	LevelWarn Level = 4
	// LevelError is for error messages. Matches slog.LevelError.
	LevelError Level = 8
)

// ParseLevel parses a string into a Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// ToSlog converts Level to slog.Level.
func (l Level) ToSlog() slog.Level {
	return slog.Level(l)
}

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", l)
	}
}

// Spec represents a logging specification with a base level and
// optional per-component overrides.
//
// Format: "<base-level>[,<component>=<level>]..."
//
// Examples:
//   - "info" - base level info
//   - "warn,loader=debug" - base warn, loader at debug
//   - "info,loader=debug,kernel=trace" - multiple overrides
type Spec struct {
	// BaseLevel is the default level for all components.
	BaseLevel Level
	// Components maps component names to their specific levels.
	Components map[string]Level
}

// ParseSpec parses a log specification string.
// The format is: <base-level>[,<component>=<level>]...
// An empty string defaults to info level with no component overrides.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{
		BaseLevel:  LevelInfo,
		Components: make(map[string]Level),
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}

	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if idx := strings.Index(part, "="); idx != -1 {
			component := strings.TrimSpace(part[:idx])
			levelStr := strings.TrimSpace(part[idx+1:])

			if component == "" {
				return spec, fmt.Errorf("empty component name in %q", part)
			}

			level, err := ParseLevel(levelStr)
			if err != nil {
				return spec, fmt.Errorf("invalid level for component %q: %w", component, err)
			}

			spec.Components[component] = level
		} else {
			// A bare level is the base level and only valid
			// as the first element.
			if i != 0 {
				return spec, fmt.Errorf("base level %q must be first in spec", part)
			}

			level, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.BaseLevel = level
		}
	}

	return spec, nil
}

// LevelFor returns the effective level for a component: the
// component's configured level if present, the base level otherwise.
func (s *Spec) LevelFor(component string) Level {
	if level, ok := s.Components[component]; ok {
		return level
	}
	return s.BaseLevel
}

// String returns the spec as a parseable string.
func (s *Spec) String() string {
	parts := []string{s.BaseLevel.String()}
	for component, level := range s.Components {
		parts = append(parts, fmt.Sprintf("%s=%s", component, level.String()))
	}
	return strings.Join(parts, ",")
}
