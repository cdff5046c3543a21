// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{
			name: "fenced python block with surrounding prose",
			raw: "Here is the model you asked for.\n\n" +
				"```python\nfrom build123d import *\n\nresult_part = Box(10, 10, 10)\n```\n\n" +
				"Let me know if you want changes.",
			want: "from build123d import *\n\nresult_part = Box(10, 10, 10)",
		},
		{
			name: "fence without language tag",
			raw:  "```\nfrom build123d import *\nresult_part = Sphere(5)\n```",
			want: "from build123d import *\nresult_part = Sphere(5)",
		},
		{
			name: "inner text trimmed of leading and trailing whitespace",
			raw:  "```python\n\n\nfrom build123d import *\n\n\n```",
			want: "from build123d import *",
		},
		{
			name: "no fence but import marker present",
			raw:  "from build123d import *\nwith BuildPart() as p:\n    Box(1, 2, 3)",
			want: "from build123d import *\nwith BuildPart() as p:\n    Box(1, 2, 3)",
		},
		{
			name: "no fence, plain import marker",
			raw:  "import build123d\nprint(build123d.__version__)",
			want: "import build123d\nprint(build123d.__version__)",
		},
		{
			name:    "neither fence nor marker",
			raw:     "I cannot produce a model for that request.",
			wantErr: ErrNoCode,
		},
		{
			name:    "empty fenced block falls through to marker check",
			raw:     "```python\n```",
			wantErr: ErrNoCode,
		},
		{
			name: "first of multiple blocks wins",
			raw:  "```python\nfirst = 1\n```\ntext\n```python\nsecond = 2\n```",
			want: "first = 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.raw)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveOverwritesPriorScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.py")

	require.NoError(t, Save(path, "result_part = Box(1, 1, 1)"))
	require.NoError(t, Save(path, "result_part = Sphere(2)"))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "result_part = Sphere(2)\n", got)
}

func TestLoadMissingScript(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "model.py"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
