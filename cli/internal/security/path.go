// Package security guards the CLI against file references that escape the
// project directory.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary returns an error when targetPath, once made
// absolute, lies outside boundaryPath.
//
//	boundary := "/srv/automations"
//	"/srv/automations/blueprints/welcome.yaml"  // valid
//	"/srv/automations/../../etc/passwd"         // rejected
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}
	return nil
}

// Resolve interprets path relative to boundaryPath (absolute paths are
// kept) and validates the result.
func Resolve(boundaryPath, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(boundaryPath, path)
	}
	if err := ValidatePathWithinBoundary(boundaryPath, path); err != nil {
		return "", err
	}
	return path, nil
}
