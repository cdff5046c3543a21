// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialPrompt(t *testing.T) {
	got, err := initialPrompt("a coffee mug with a handle")
	require.NoError(t, err)
	assert.Contains(t, got, "a coffee mug with a handle")
}

func TestIteratePromptEmbedsScriptVerbatim(t *testing.T) {
	scriptText := "from build123d import *\nresult_part = Sphere(12)\nexport_stl(result_part, 'output.stl')\n"
	got, err := iteratePrompt(scriptText, "hollow it out")
	require.NoError(t, err)
	assert.Contains(t, got, scriptText)
	assert.Contains(t, got, "hollow it out")
}

func TestExecFailurePrompt(t *testing.T) {
	stderr := "Traceback (most recent call last):\n  File \"model.py\", line 3\nTypeError: Box() missing argument"
	got, err := execFailurePrompt(stderr, "a box")
	require.NoError(t, err)
	assert.Contains(t, got, stderr, "full traceback forwarded, not a summary")
	assert.Contains(t, got, "a box", "original request restated for context")
}

func TestMissingArtifactPromptNamesTheFix(t *testing.T) {
	assert.Contains(t, missingArtifactPrompt, "export_stl")
	assert.Contains(t, missingArtifactPrompt, "output.stl")
}

func TestSystemInstructionConventions(t *testing.T) {
	// The conventions the follow-up prompts rely on must be stated up front.
	assert.Contains(t, systemInstruction, "build123d")
	assert.Contains(t, systemInstruction, "result_part")
	assert.Contains(t, systemInstruction, "export_stl")
	assert.Contains(t, systemInstruction, "output.stl")
}
