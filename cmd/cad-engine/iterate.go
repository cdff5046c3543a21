// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cad-engine/internal/session"
	"github.com/pdiddy/cad-engine/pkg/types"
)

var iterateCmd = &cobra.Command{
	Use:   "iterate [request...]",
	Short: "Modify an existing model with a follow-up request",
	Long: `Iterate asks the AI model to rewrite a session's build123d script to
satisfy a change request, keeping everything the request does not mention.
Without --session the most recently updated session is continued. A session
with no script yet falls back to fresh generation.`,
	RunE: runIterate,
}

func init() {
	addGenerationFlags(iterateCmd)
	iterateCmd.Flags().String("session", "", "session to iterate on (default: most recent)")
	iterateCmd.Flags().String("output", "", "write the STL artifact to this path")
	iterateCmd.Flags().Bool("json", false, "print the mesh payload as JSON")
	iterateCmd.Flags().Bool("thoughts", false, "print model reasoning to stderr while generating")

	rootCmd.AddCommand(iterateCmd)
}

func runIterate(cmd *cobra.Command, args []string) error {
	request := strings.Join(args, " ")
	if request == "" {
		return fmt.Errorf("provide a change request, e.g.: cad-engine iterate \"make the walls 2mm thicker\"")
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
	sess, err := resolveIterateSession(ctx, cmd, store)
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg, store, logger)
	if err != nil {
		return err
	}

	mesh, err := eng.Iterate(ctx, sess, request, thoughtPrinter(cmd))
	if err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}

	return emitMesh(cmd, sess, mesh)
}

func resolveIterateSession(ctx context.Context, cmd *cobra.Command, store *session.Store) (*types.Session, error) {
	if id, _ := cmd.Flags().GetString("session"); id != "" {
		return store.Get(ctx, id)
	}
	latest, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fmt.Errorf("no sessions yet: run cad-engine generate first")
	}
	return latest, nil
}
