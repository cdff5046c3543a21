// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"context"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cad-engine/pkg/types"
)

// ExportEntry holds one session with its attempt history for export (R4.1).
type ExportEntry struct {
	Session  types.Session   `yaml:"session"`
	Attempts []types.Attempt `yaml:"attempts,omitempty"`
}

// ExportYAML writes all sessions and their attempts to w as YAML (R4.1).
// Operators use the export to inspect failure histories offline.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	sessions, err := s.List(ctx)
	if err != nil {
		return err
	}

	entries := make([]ExportEntry, 0, len(sessions))
	for _, sess := range sessions {
		attempts, err := s.Attempts(ctx, sess.ID)
		if err != nil {
			return err
		}
		entries = append(entries, ExportEntry{Session: sess, Attempts: attempts})
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}
