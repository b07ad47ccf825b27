package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config uses default",
			config:  nil,
			wantErr: false,
		},
		{
			name: "valid minimal config",
			config: &Config{
				Level:         InfoLevel,
				Format:        JSONFormat,
				EnableConsole: true,
			},
		},
		{
			name: "file enabled but no path",
			config: &Config{
				Level:      InfoLevel,
				EnableFile: true,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func newBufferLogger(t *testing.T, cfg *Config) (*BaseLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(cfg, WithWriter(&buf))
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

// TestLoggerLevels 测试日志级别过滤
func TestLoggerLevels(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{Level: WarnLevel, Format: JSONFormat, EnableConsole: true})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message", "user_id", int64(7))
	l.Error("error message")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn message", lines[0]["msg"])
	assert.Equal(t, float64(7), lines[0]["user_id"])
	assert.Equal(t, "error", lines[1]["level"])
}

// TestNamedAndContext 测试具名 logger 与 context 字段
func TestNamedAndContext(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{Level: DebugLevel, Format: JSONFormat, EnableConsole: true})

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), 42)
	l.Named("service.combat").InfoContext(ctx, "fight resolved", "winner_id", int64(42))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "service.combat", lines[0]["logger"])
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, float64(42), lines[0]["user_id"])
}

// TestRedactKeys 测试敏感字段脱敏
func TestRedactKeys(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{
		Level:         InfoLevel,
		Format:        JSONFormat,
		EnableConsole: true,
		RedactKeys:    []string{"password"},
	})

	l.Info("connect", "password", "hunter2", "host", "db")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["password"])
	assert.Equal(t, "db", lines[0]["host"])
}

// TestWithFieldsOddArgs 奇数参数不应丢失日志
func TestWithFieldsOddArgs(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{Level: InfoLevel, Format: JSONFormat, EnableConsole: true})

	l.WithFields("crime_id", int64(3)).Info("odd", "dangling")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(3), lines[0]["crime_id"])
	assert.Equal(t, "(MISSING)", lines[0]["dangling"])
}

// TestRedactBoundFields With 绑定的字段同样脱敏
func TestRedactBoundFields(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{
		Level:         InfoLevel,
		Format:        JSONFormat,
		EnableConsole: true,
		RedactKeys:    []string{"token"},
	})

	l.WithFields("token", "abc").Info("bound")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["token"])
}

func TestTimeRotationRejectsBadDuration(t *testing.T) {
	_, err := NewRotationWriter(&RotationConfig{Type: RotationByTime, RotationTime: "soon"}, t.TempDir()+"/app.log")
	assert.Error(t, err)

	_, err = NewRotationWriter(&RotationConfig{Type: RotationByTime, MaxAgeTime: "-1h"}, t.TempDir()+"/app.log")
	assert.Error(t, err)
}
