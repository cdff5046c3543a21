// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package script extracts executable CAD scripts from raw model responses
// and persists them. Implements: prd002-script (R1-R3);
//
//	docs/ARCHITECTURE § Script Extraction.
package script

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoCode reports that a model response carried neither a fenced code
// block nor a recognizable library import. Per prd002-script R1.3.
var ErrNoCode = errors.New("no extractable code in model response")

// fencedBlock matches a ```python fenced block (language tag optional) and
// captures the inner text. Only the first block is used; models that emit
// prose around the script keep the script inside one fence.
var fencedBlock = regexp.MustCompile("(?s)```(?:python)?\n?(.*?)```")

// importMarkers identify raw responses that are a bare script with no fence.
var importMarkers = []string{
	"import build123d",
	"from build123d import",
}

// Extract returns the script text from a raw model response. A fenced code
// block wins; failing that, the whole response is accepted verbatim when it
// contains a build123d import marker. Per prd002-script R1.1-R1.3.
func Extract(raw string) (string, error) {
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		code := strings.TrimSpace(m[1])
		if code != "" {
			return code, nil
		}
	}

	for _, marker := range importMarkers {
		if strings.Contains(raw, marker) {
			return strings.TrimSpace(raw), nil
		}
	}

	return "", ErrNoCode
}

// Save persists the script to path, replacing any prior script. Each
// session keeps exactly one script file; iterate calls build on whatever
// Save last wrote. Per prd002-script R2.1.
func Save(path, code string) error {
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing script %s: %w", path, err)
	}
	return nil
}

// Load reads a previously persisted script. Returns os.ErrNotExist (wrapped)
// when no script has been saved yet, which callers use for the iterate
// cold-start fallback. Per prd002-script R3.1.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script %s: %w", path, err)
	}
	return string(data), nil
}
