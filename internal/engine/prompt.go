// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"bytes"
	"text/template"
)

// systemInstruction fixes the authoring conventions for generated scripts:
// library, coordinate convention, result variable, and the required export
// call. It is sent with every attempt. Per prd001-generation R1.2.
const systemInstruction = `You are a Python-based 3D CAD Engineer using the ` + "`build123d`" + ` library.
Your goal is to write a Python script that generates a 3D model based on the user's request.

Requirements:
1. Start with ` + "`from build123d import *`" + `.
2. Include ` + "`import numpy as np`" + ` if you use any numpy functions (like ` + "`np.sign`, `np.pi`" + `).
3. You MUST assign the final object to a variable named ` + "`result_part`" + `.
4. If you create a sketch or line, extrude it to make it a solid ` + "`Part`" + `.
5. The model should be centered at (0,0,0) and have reasonable dimensions (mm).
6. IMPORTANT: Do NOT use old or PascalCase function names for core operations.
   Use ` + "`make_face()`, `extrude()`, `fillet()`, `chamfer()`, `revolve()`, `loft()`, `sweep()`, `offset()`" + `
   instead of their PascalCase forms; generally prefer lowercase builder methods inside contexts.
7. Vector access: only use ` + "`v.X`, `v.Y`, `v.Z`" + ` on values you are sure are Vectors.
8. Final output: the script MUST end by exporting the final part to an STL file named 'output.stl'
   in the working directory: ` + "`export_stl(result_part, 'output.stl')`" + `.
9. Robustness: ` + "`fillet()`" + ` and ` + "`chamfer()`" + ` crash when the radius is too large for the
   geometry. Use conservative values (0.5mm to 2mm) unless you are certain of the dimensions.

Example script:
` + "```python" + `
from build123d import *

with BuildPart() as p:
    Box(10, 10, 10)
    fillet(p.edges(), radius=1)

result_part = p.part
export_stl(result_part, 'output.stl')
` + "```" + `
`

// initialPromptTmpl is the first instruction of a fresh generation.
var initialPromptTmpl = template.Must(template.New("initial").Parse(
	`You are a build123d expert. Write a generic Python script to create a 3D model of: {{.Request}}. Ensure you export to 'output.stl'. Unscaled.`))

// iteratePromptTmpl embeds the previously persisted script verbatim plus the
// change request, asking for a full rewritten script. Per prd001-generation R6.2.
var iteratePromptTmpl = template.Must(template.New("iterate").Parse(
	`You are iterating on an existing 3D model script.

Current Python code:
` + "```python" + `
{{.Script}}
` + "```" + `

User request: {{.Request}}

Task: Rewrite the code to satisfy the user's request while maintaining the rest of the model structure.
Ensure you still export to 'output.stl'.`))

// execFailurePromptTmpl folds the captured stderr of a failed execution into
// a corrective follow-up instruction. Per prd001-generation R5.2.
var execFailurePromptTmpl = template.Must(template.New("execFailure").Parse(
	`The Python script you generated failed to execute with the following error:
{{.Stderr}}

Please fix the code to resolve this error. Return the full corrected script.
Ensure you still export to 'output.stl'.
Original request: {{.Request}}`))

// missingArtifactPrompt reminds the model to call the export function after
// a zero-exit run that produced no artifact. Per prd001-generation R5.3.
const missingArtifactPrompt = `The script executed successfully but 'output.stl' was not found. Ensure you call ` + "`export_stl(result_part, 'output.stl')`" + ` at the end.`

func initialPrompt(request string) (string, error) {
	return render(initialPromptTmpl, struct{ Request string }{request})
}

func iteratePrompt(scriptText, request string) (string, error) {
	return render(iteratePromptTmpl, struct{ Script, Request string }{scriptText, request})
}

func execFailurePrompt(stderr, request string) (string, error) {
	return render(execFailurePromptTmpl, struct{ Stderr, Request string }{stderr, request})
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
