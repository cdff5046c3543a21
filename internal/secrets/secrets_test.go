// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  map[string]string
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "gemini-api-key", "  AIzaExample123  \n")
				writeFile(t, dir, "other-key", "value\n")
				return dir
			},
			want: map[string]string{
				"gemini-api-key": "AIzaExample123",
				"other-key":      "value",
			},
		},
		{
			name: "returns empty map for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: map[string]string{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "gemini-api-key", "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: map[string]string{
				"gemini-api-key": "valid-key",
			},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "ignored")
				writeFile(t, dir, "gemini-api-key", "k")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
				return dir
			},
			want: map[string]string{
				"gemini-api-key": "k",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			got, err := Load(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValue(t *testing.T) {
	loaded := map[string]string{KeyGeminiAPI: "from-file"}

	assert.Equal(t, "explicit", Value(loaded, KeyGeminiAPI, "explicit"))
	assert.Equal(t, "from-file", Value(loaded, KeyGeminiAPI, ""))
	assert.Equal(t, "", Value(loaded, "missing", ""))
}

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o600))
}
