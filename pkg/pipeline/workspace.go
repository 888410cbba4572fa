package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspaceFor derives the workspace directory for an episode. Given
// <dir>/<series>/<stem>.<ext> the workspace is <dir>/<series>/dub/<stem>.
// outputDir, when non-empty, replaces the series directory as the parent.
func WorkspaceFor(videoPath, outputDir string) string {
	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	parent := filepath.Dir(videoPath)
	if outputDir != "" {
		parent = outputDir
	}
	return filepath.Join(parent, "dub", stem)
}

// EnsureWorkspace creates the workspace directory and returns the manifest
// path inside it.
func EnsureWorkspace(workspace string) (string, error) {
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return filepath.Join(workspace, "manifest.json"), nil
}

// EpisodeStem returns the workspace's episode stem.
func EpisodeStem(workspace string) string {
	return filepath.Base(workspace)
}
