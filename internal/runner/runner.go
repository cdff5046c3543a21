// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runner implements interpreter detection and isolated script
// execution. Implements: prd003-execution (R1-R4);
//
//	docs/ARCHITECTURE § Script Runtime.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const (
	binPython3 = "python3"
	binPython  = "python"
)

// ExecResult captures one script execution: exit code and both output
// streams. Stderr feeds the corrective follow-up instruction on failure.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Interpreter runs CAD scripts in a separate process with its own
// dependency environment, keeping build123d's requirements away from the
// host process.
type Interpreter interface {
	// Name returns the interpreter binary path or name.
	Name() string

	// Available reports whether the binary exists and responds to a
	// version probe.
	Available() bool

	// CheckModule reports whether the named module imports cleanly in the
	// interpreter environment.
	CheckModule(module string) error

	// Run executes the script at scriptPath with the working directory set
	// to workDir, so relative output paths land in the session scratch
	// directory. A non-zero exit is reported through ExecResult, not error;
	// error means the process could not be run at all.
	Run(ctx context.Context, scriptPath, workDir string) (ExecResult, error)
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunSilent(name string, args ...string) error
	RunScript(ctx context.Context, name string, args []string, dir string) (ExecResult, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunSilent(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func (o *osExecutor) RunScript(ctx context.Context, name string, args []string, dir string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// interpreter implements Interpreter for a specific binary. The dedicated
// CAD environment and the PATH fallbacks share the same logic; they differ
// only in how the binary was chosen.
type interpreter struct {
	bin  string
	exec executor
}

func (i *interpreter) Name() string { return i.bin }

func (i *interpreter) Available() bool {
	if _, err := i.exec.LookPath(i.bin); err != nil {
		// A configured absolute path is not on PATH; stat it directly.
		if info, statErr := os.Stat(i.bin); statErr != nil || info.IsDir() {
			return false
		}
	}
	return i.exec.RunSilent(i.bin, "--version") == nil
}

func (i *interpreter) CheckModule(module string) error {
	if err := i.exec.RunSilent(i.bin, "-c", "import "+module); err != nil {
		return fmt.Errorf("module %s not importable in %s: %w", module, i.bin, err)
	}
	return nil
}

func (i *interpreter) Run(ctx context.Context, scriptPath, workDir string) (ExecResult, error) {
	res, err := i.exec.RunScript(ctx, i.bin, []string{scriptPath}, workDir)
	if err != nil {
		return res, fmt.Errorf("running %s %s: %w", i.bin, scriptPath, err)
	}
	return res, nil
}

var defaultExec executor = &osExecutor{}

// Detect returns the interpreter to use. A configured interpreter path is
// preferred (R2.1); python3 and then python on PATH are fallbacks. Returns
// an error when no candidate is available.
func Detect(interpreterPath string) (Interpreter, error) {
	return detect(defaultExec, interpreterPath)
}

func detect(exec executor, interpreterPath string) (Interpreter, error) {
	var candidates []string
	if interpreterPath != "" {
		candidates = append(candidates, interpreterPath)
	}
	candidates = append(candidates, binPython3, binPython)

	for _, bin := range candidates {
		it := &interpreter{bin: bin, exec: exec}
		if it.Available() {
			return it, nil
		}
	}

	return nil, fmt.Errorf(
		"no script interpreter available: tried %v; configure runtime.interpreter_path",
		candidates,
	)
}
