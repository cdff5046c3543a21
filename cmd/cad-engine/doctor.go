// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cad-engine/internal/runner"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the environment can run generations",
	Long: `Doctor verifies the pieces a generation needs: a Python interpreter,
the build123d module, and an AI API key. Each check prints ok or the
reason it failed.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().String("interpreter", "", "path to the Python interpreter with build123d installed")

	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := resolveConfig(cmd)
	failures := 0

	check := func(name string, err error) {
		if err != nil {
			failures++
			fmt.Fprintf(os.Stdout, "FAIL  %-22s %v\n", name, err)
			return
		}
		fmt.Fprintf(os.Stdout, "ok    %s\n", name)
	}

	interp, err := runner.Detect(cfg.Runtime.InterpreterPath)
	check("python interpreter", err)
	if err == nil {
		fmt.Fprintf(os.Stdout, "      using %s\n", interp.Name())
		check("build123d module", interp.CheckModule("build123d"))
	}

	if cfg.Generation.APIKey == "" {
		check("AI API key", fmt.Errorf("not configured: put it in .secrets/gemini-api-key or set generation.api_key"))
	} else {
		check("AI API key", nil)
	}

	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	return nil
}
