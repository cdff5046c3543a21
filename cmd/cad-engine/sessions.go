// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/cad-engine/internal/session"
	"github.com/pdiddy/cad-engine/pkg/types"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect generation sessions (list, show, export)",
	Long: `Sessions manages the local session registry. Every generate call opens a
session that records the request, each script execution attempt, and the
final outcome. Use subcommands to list sessions, inspect attempt history,
or export the registry.`,
}

// --- list subcommand ---

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recently updated first",
	RunE:  runSessionsList,
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.List(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-19s  %s\n", "ID", "Status", "Updated", "Request")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
	for _, s := range sessions {
		request := s.Request
		if len(request) > 40 {
			request = request[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-36s  %-10s  %-19s  %s\n",
			s.ID, s.Status, s.UpdatedAt.Format("2006-01-02 15:04:05"), request)
	}
	fmt.Fprintf(os.Stdout, "\n%d sessions\n", len(sessions))
	return nil
}

// --- show subcommand ---

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show a session's attempt history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	sess, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	attempts, err := store.Attempts(ctx, sess.ID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Session  *types.Session  `json:"session"`
			Attempts []types.Attempt `json:"attempts"`
		}{sess, attempts})
	}

	fmt.Fprintf(os.Stdout, "Session:  %s\n", sess.ID)
	fmt.Fprintf(os.Stdout, "Status:   %s\n", sess.Status)
	fmt.Fprintf(os.Stdout, "Request:  %s\n", sess.Request)
	fmt.Fprintf(os.Stdout, "Scratch:  %s\n", sess.ScratchDir)
	fmt.Fprintf(os.Stdout, "Created:  %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(attempts) == 0 {
		fmt.Println("\nNo attempts recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n%-4s  %-9s  %-17s  %-5s  %s\n", "Seq", "Op", "Status", "Exit", "Stderr")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, a := range attempts {
		stderr := a.Stderr
		if idx := strings.IndexByte(stderr, '\n'); idx >= 0 {
			stderr = stderr[:idx]
		}
		if len(stderr) > 40 {
			stderr = stderr[:37] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-9s  %-17s  %-5d  %s\n", a.Seq, a.Op, a.Status, a.ExitCode, stderr)
	}
	return nil
}

// --- export subcommand ---

var sessionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the session registry to YAML",
	Long: `Export writes all sessions and their attempt histories as YAML to stdout,
or to a file with --output.`,
	RunE: runSessionsExport,
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		return store.ExportYAML(cmd.Context(), os.Stdout)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := store.ExportYAML(cmd.Context(), f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Exported to %s\n", out)
	return nil
}

// --- shared helpers ---

func openSessionStore(cmd *cobra.Command) (*session.Store, error) {
	cfg := resolveConfig(cmd)
	return session.Open(cfg.Sessions)
}

func init() {
	sessionsListCmd.Flags().Bool("json", false, "output sessions as JSON")
	sessionsShowCmd.Flags().Bool("json", false, "output session and attempts as JSON")
	sessionsExportCmd.Flags().String("output", "", "write export to this file instead of stdout")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)

	rootCmd.AddCommand(sessionsCmd)
}
