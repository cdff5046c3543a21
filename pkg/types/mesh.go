// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data model for cad-engine: meshes,
// sessions, attempts, and configuration. See docs/ARCHITECTURE § Data Model.
package types

import (
	"encoding/base64"
	"fmt"
)

// MeshFormat identifies the encoding of a mesh payload.
type MeshFormat string

// FormatSTL is the only format the pipeline currently produces.
const FormatSTL MeshFormat = "stl"

// Mesh is the result of a successful generation: a format tag and the
// base64-encoded artifact bytes. Per prd001-generation R3.1.
type Mesh struct {
	Format MeshFormat `json:"format" yaml:"format"`
	Data   string     `json:"data" yaml:"data"`
}

// NewMesh encodes raw artifact bytes into a Mesh.
func NewMesh(format MeshFormat, raw []byte) *Mesh {
	return &Mesh{
		Format: format,
		Data:   base64.StdEncoding.EncodeToString(raw),
	}
}

// Bytes decodes the base64 payload back into raw artifact bytes.
func (m *Mesh) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding mesh payload: %w", err)
	}
	return raw, nil
}
