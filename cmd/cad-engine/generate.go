// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cad-engine/internal/session"
	"github.com/pdiddy/cad-engine/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate [request...]",
	Short: "Generate a 3D model from a natural-language description",
	Long: `Generate asks the AI model for a build123d script matching the request,
executes it, and retries with error feedback until a mesh is produced or
the attempt budget runs out. A new session is created unless --session
names an existing one.

The STL artifact stays in the session's scratch directory; use --output
to copy it elsewhere, or --json to print the base64 payload.`,
	RunE: runGenerate,
}

func init() {
	addGenerationFlags(generateCmd)
	generateCmd.Flags().String("session", "", "reuse an existing session instead of creating one")
	generateCmd.Flags().String("output", "", "write the STL artifact to this path")
	generateCmd.Flags().Bool("json", false, "print the mesh payload as JSON")
	generateCmd.Flags().Bool("thoughts", false, "print model reasoning to stderr while generating")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")
	if request == "" {
		return fmt.Errorf("provide a part description, e.g.: cad-engine generate \"a box 10x20x5 mm\"")
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg := resolveConfig(cmd)
	store, err := session.Open(cfg.Sessions)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	sess, err := resolveGenerateSession(ctx, cmd, store, request)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	mesh, err := eng.Generate(ctx, sess, request, thoughtPrinter(cmd))
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}

	return emitMesh(cmd, sess, mesh)
}

func resolveGenerateSession(ctx context.Context, cmd *cobra.Command, store *session.Store, request string) (*types.Session, error) {
	if id, _ := cmd.Flags().GetString("session"); id != "" {
		return store.Get(ctx, id)
	}
	return store.Create(ctx, request)
}

// thoughtPrinter returns a reasoning observer writing to stderr, or nil
// when --thoughts is off.
func thoughtPrinter(cmd *cobra.Command) func(string) {
	if on, _ := cmd.Flags().GetBool("thoughts"); !on {
		return nil
	}
	return func(text string) {
		fmt.Fprintln(os.Stderr, text)
	}
}

// emitMesh writes the generation result in the requested form: decoded STL
// to --output, JSON payload with --json, or a summary line by default.
func emitMesh(cmd *cobra.Command, sess *types.Session, mesh *types.Mesh) error {
	if out, _ := cmd.Flags().GetString("output"); out != "" {
		raw, err := mesh.Bytes()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, raw, 0o644); err != nil {
			return fmt.Errorf("writing artifact: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s: wrote %s (%d bytes)\n", sess.ID, out, len(raw))
		return nil
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"session_id": sess.ID,
			"format":     mesh.Format,
			"data":       mesh.Data,
		})
	}

	fmt.Fprintf(os.Stdout, "Session %s: artifact at %s\n", sess.ID, session.ArtifactPath(sess))
	return nil
}
