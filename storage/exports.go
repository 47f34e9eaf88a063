// Package storage writes explicit exports of the view state to disk
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"oscar/generation"
	"oscar/state"
)

const (
	manifestFile   = "manifest.json"
	transcriptFile = "transcript.json"
	toolCallsFile  = "tool_calls.json"
)

// Manifest describes one export directory
type Manifest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	CreatedAt    time.Time      `json:"created_at"`
	ViewMode     state.ViewMode `json:"view_mode"`
	Documents    []string       `json:"documents"`
	Titles       []string       `json:"titles,omitempty"`
	MessageCount int            `json:"message_count"`
	ToolCalls    int            `json:"tool_calls"`
}

// ExportStorage writes exports below <data_dir>/exports
type ExportStorage struct {
	exportsDir string
	now        func() time.Time
}

// NewExportStorage creates the exports directory if needed
func NewExportStorage(dataDir string) (*ExportStorage, error) {
	exportsDir := filepath.Join(dataDir, "exports")

	// 0700: exports hold the conversation
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	return &ExportStorage{exportsDir: exportsDir, now: time.Now}, nil
}

// Dir returns the directory exports are written to
func (s *ExportStorage) Dir() string {
	return s.exportsDir
}

// Export writes the snapshot to a new timestamped directory and returns it
func (s *ExportStorage) Export(snap state.Snapshot) (string, error) {
	return Export(s.exportsDir, snap, s.now())
}

// Export writes canvas-<i>.html for each document plus transcript.json,
// tool_calls.json and manifest.json into a new directory under dir.
func Export(dir string, snap state.Snapshot, at time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create exports directory: %w", err)
	}
	name, target, err := createExportDir(dir, exportName(snap, at))
	if err != nil {
		return "", err
	}

	manifest := Manifest{
		ID:           uuid.New().String(),
		Name:         name,
		CreatedAt:    at,
		ViewMode:     snap.ViewMode,
		MessageCount: len(snap.Transcript),
		ToolCalls:    len(snap.ToolCalls),
	}

	for i, doc := range snap.Canvas {
		file := fmt.Sprintf("canvas-%d.html", i+1)
		if err := writeFile(filepath.Join(target, file), []byte(doc)); err != nil {
			return "", err
		}
		manifest.Documents = append(manifest.Documents, file)
		manifest.Titles = append(manifest.Titles, generation.Title(doc))
	}

	transcript := snap.Transcript
	if transcript == nil {
		transcript = []state.TranscriptMessage{}
	}
	if err := writeJSON(filepath.Join(target, transcriptFile), transcript); err != nil {
		return "", err
	}

	toolCalls := snap.ToolCalls
	if toolCalls == nil {
		toolCalls = []state.ToolCall{}
	}
	if err := writeJSON(filepath.Join(target, toolCallsFile), toolCalls); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(target, manifestFile), manifest); err != nil {
		return "", err
	}
	return target, nil
}

// List returns the manifests of all exports, newest first
func (s *ExportStorage) List() ([]Manifest, error) {
	entries, err := os.ReadDir(s.exportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read exports directory: %w", err)
	}

	var manifests []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.exportsDir, entry.Name(), manifestFile))
		if err != nil {
			continue // not an export
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
	return manifests, nil
}

// createExportDir makes a fresh directory, suffixing the name when an
// export from the same second already exists
func createExportDir(dir, name string) (string, string, error) {
	candidate := name
	for i := 2; ; i++ {
		target := filepath.Join(dir, candidate)
		err := os.Mkdir(target, 0700)
		if err == nil {
			return candidate, target, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > 100 {
			return "", "", fmt.Errorf("failed to create export directory: %w", err)
		}
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	// 0600: generated HTML and transcripts may be private
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// exportName is the timestamp plus the first document's title, if any
func exportName(snap state.Snapshot, at time.Time) string {
	name := "oscar-" + at.Format("20060102-150405")
	if first, ok := snap.Canvas.First(); ok {
		if title := SanitizeFilename(generation.Title(first)); title != "" {
			name += "-" + title
		}
	}
	return name
}

// SanitizeFilename replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)

	name = strings.Trim(name, "-.")
	if len(name) > 50 {
		name = strings.Trim(name[:50], "-.")
	}
	return strings.ToLower(name)
}
