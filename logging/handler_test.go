package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbpf/bpfload/logging"
)

func TestSpecHandler_Enabled(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"loader": logging.LevelDebug,
			"kernel": logging.LevelTrace,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewSpecHandler(inner, spec)

	// Base handler (no component) uses warn level.
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))

	// Loader component uses debug level.
	loaderHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "loader")})
	assert.True(t, loaderHandler.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, loaderHandler.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, loaderHandler.Enabled(context.Background(), logging.LevelTrace.ToSlog()))

	// Kernel component uses trace level.
	kernelHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "kernel")})
	assert.True(t, kernelHandler.Enabled(context.Background(), logging.LevelTrace.ToSlog()))
	assert.True(t, kernelHandler.Enabled(context.Background(), slog.LevelDebug))
}

func TestSpecHandler_Handle(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"loader": logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewSpecHandler(inner, spec)

	ctx := context.Background()

	// Debug message without component should be filtered.
	buf.Reset()
	r := slog.NewRecord(testTime(), slog.LevelDebug, "debug message", 0)
	require.NoError(t, handler.Handle(ctx, r))
	assert.Empty(t, buf.String())

	// Warn message without component should pass.
	buf.Reset()
	r = slog.NewRecord(testTime(), slog.LevelWarn, "warn message", 0)
	require.NoError(t, handler.Handle(ctx, r))
	assert.Contains(t, buf.String(), "warn message")

	// Debug message with loader component should pass.
	loaderHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "loader")})
	buf.Reset()
	r = slog.NewRecord(testTime(), slog.LevelDebug, "loader debug", 0)
	require.NoError(t, loaderHandler.Handle(ctx, r))
	assert.Contains(t, buf.String(), "loader debug")
}

func TestSpecHandler_WithGroup(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelInfo,
		Components: map[string]logging.Level{
			"loader": logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewSpecHandler(inner, spec)

	// WithGroup preserves the component.
	loaderHandler := handler.WithAttrs([]slog.Attr{slog.String("component", "loader")})
	groupHandler := loaderHandler.WithGroup("object")

	assert.True(t, groupHandler.Enabled(context.Background(), slog.LevelDebug))
}

func TestSpecHandler_GroupedComponentAttrDoesNotRebind(t *testing.T) {
	spec := &logging.Spec{
		BaseLevel: logging.LevelWarn,
		Components: map[string]logging.Level{
			"loader": logging.LevelDebug,
		},
	}

	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: logging.LevelTrace.ToSlog()})
	handler := logging.NewSpecHandler(inner, spec)

	// A "component" attribute inside a group is record payload, not a
	// component binding, so the base warn level still applies.
	grouped := handler.WithGroup("pin").WithAttrs([]slog.Attr{slog.String("component", "loader")})
	assert.False(t, grouped.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, grouped.Enabled(context.Background(), slog.LevelWarn))

	// A component bound before grouping stays bound.
	loaderGrouped := handler.WithAttrs([]slog.Attr{slog.String("component", "loader")}).WithGroup("pin")
	assert.True(t, loaderGrouped.Enabled(context.Background(), slog.LevelDebug))
}

func TestSpecHandler_Integration(t *testing.T) {
	spec, err := logging.ParseSpec("warn,loader=debug,kernel=trace")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		CLISpec: spec.String(),
		Output:  &buf,
	})
	require.NoError(t, err)

	// Root logger uses warn level.
	buf.Reset()
	logger.Debug("root debug")
	assert.Empty(t, buf.String())

	buf.Reset()
	logger.Warn("root warn")
	assert.Contains(t, buf.String(), "root warn")

	// Loader logger uses debug level.
	loaderLogger := logger.With("component", "loader")

	buf.Reset()
	loaderLogger.Debug("loader debug")
	assert.Contains(t, buf.String(), "loader debug")

	// Kernel logger uses trace level.
	kernelLogger := logger.With("component", "kernel")

	buf.Reset()
	kernelLogger.Log(context.Background(), logging.LevelTrace.ToSlog(), "kernel trace")
	assert.Contains(t, buf.String(), "kernel trace")

	// A component not in the spec falls back to warn.
	storeLogger := logger.With("component", "store")

	buf.Reset()
	storeLogger.Debug("store debug")
	assert.Empty(t, buf.String())

	buf.Reset()
	storeLogger.Warn("store warn")
	assert.Contains(t, buf.String(), "store warn")
}

func TestNew_Precedence(t *testing.T) {
	tests := []struct {
		name      string
		opts      logging.Options
		wantLevel logging.Level
	}{
		{
			name:      "cli takes precedence over env",
			opts:      logging.Options{CLISpec: "error", EnvSpec: "debug", ConfigSpec: "info"},
			wantLevel: logging.LevelError,
		},
		{
			name:      "env takes precedence over config",
			opts:      logging.Options{EnvSpec: "debug", ConfigSpec: "info"},
			wantLevel: logging.LevelDebug,
		},
		{
			name:      "config used when nothing else specified",
			opts:      logging.Options{ConfigSpec: "warn"},
			wantLevel: logging.LevelWarn,
		},
		{
			name:      "default is info",
			opts:      logging.Options{},
			wantLevel: logging.LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf

			logger, err := logging.New(tt.opts)
			require.NoError(t, err)

			ctx := context.Background()

			buf.Reset()
			logger.Log(ctx, tt.wantLevel.ToSlog(), "test message")
			assert.NotEmpty(t, buf.String(), "expected level %s should be logged", tt.wantLevel)

			if tt.wantLevel > logging.LevelTrace {
				belowLevel := logging.Level(int(tt.wantLevel) - 4)
				buf.Reset()
				logger.Log(ctx, belowLevel.ToSlog(), "test message below")
				assert.Empty(t, buf.String(), "level %s below %s should not be logged", belowLevel, tt.wantLevel)
			}
		})
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := logging.New(logging.Options{CLISpec: "invalid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log spec")
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Format
		wantErr bool
	}{
		{"text", logging.FormatText, false},
		{"json", logging.FormatJSON, false},
		{"TEXT", logging.FormatText, false},
		{"JSON", logging.FormatJSON, false},
		{"", logging.FormatText, false},
		{"invalid", logging.FormatText, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseFormat(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{
		CLISpec: "info",
		Format:  logging.FormatJSON,
		Output:  &buf,
	})
	require.NoError(t, err)

	logger.Info("test message", "key", "value")
	output := buf.String()

	assert.True(t, strings.HasPrefix(output, "{"))
	assert.Contains(t, output, `"msg":"test message"`)
	assert.Contains(t, output, `"key":"value"`)
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		input   string
		want    logging.Spec
		wantErr bool
	}{
		{
			input: "",
			want:  logging.Spec{BaseLevel: logging.LevelInfo, Components: map[string]logging.Level{}},
		},
		{
			input: "debug",
			want:  logging.Spec{BaseLevel: logging.LevelDebug, Components: map[string]logging.Level{}},
		},
		{
			input: "warn,loader=debug",
			want: logging.Spec{
				BaseLevel:  logging.LevelWarn,
				Components: map[string]logging.Level{"loader": logging.LevelDebug},
			},
		},
		{input: "loader=debug,warn", wantErr: true},
		{input: "=debug", wantErr: true},
		{input: "warn,loader=bogus", wantErr: true},
		{input: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := logging.ParseSpec(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func testTime() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}
