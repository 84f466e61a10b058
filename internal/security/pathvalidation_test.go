package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "safe")
	unsafeDir := filepath.Join(tmpDir, "unsafe")
	require.NoError(t, os.MkdirAll(safeDir, 0o755))
	require.NoError(t, os.MkdirAll(unsafeDir, 0o755))
	link := filepath.Join(safeDir, "plots")
	require.NoError(t, os.Symlink(unsafeDir, link))

	tests := []struct {
		name    string
		path    string
		dir     string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safeDir, "session.png"), safeDir, false},
		{"new nested file", filepath.Join(safeDir, "a", "b", "session.png"), safeDir, false},
		{"dot dot", filepath.Join(safeDir, "..", "session.png"), safeDir, true},
		{"relative escape", "../../../etc/passwd", safeDir, true},
		{"absolute outside", "/etc/passwd", safeDir, true},
		{"through symlink", filepath.Join(link, "session.png"), safeDir, true},
		{"symlink itself", link, safeDir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, tt.dir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath("session.png"))
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "session.png")))

	extra := t.TempDir()
	assert.NoError(t, ValidateOutputPath(filepath.Join(extra, "x.png"), extra))
	assert.Error(t, ValidateOutputPath("/etc/session.png"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"session-3f2a", "session-3f2a"},
		{"fixture:/dev/ttyUSB0@115200", "fixture_dev_ttyUSB0_115200"},
		{"a  b!!c", "a_b_c"},
		{"..hidden", "hidden"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
	assert.LessOrEqual(t, len(SanitizeFilename(strings.Repeat("x", 500))), maxFilenameLen)
}
