package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathValidator confines path parameters to a configured root directory.
//
// Checking the raw string for ".." is insufficient: "data/../../etc"
// contains no leading traversal but still escapes, and "data/..x" is
// safe despite containing "..". The validator therefore resolves
// relative segments lexically (filepath.Clean) and compares the result
// against the root.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at root. The root is
// cleaned and made absolute so comparisons are stable regardless of
// the process working directory.
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("path validator root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root %q: %w", root, err)
	}
	return &PathValidator{root: abs}, nil
}

// Root returns the absolute root the validator confines paths to.
func (v *PathValidator) Root() string {
	return v.root
}

// Validate returns nil if the path stays within the root after
// resolving relative segments, or a *ValidationError naming the rule
// that fired. Absolute inputs are rejected unless they are already
// inside the root.
func (v *PathValidator) Validate(path string) error {
	if path == "" {
		return NewValidationError(KindPathTraversal, "empty-path", "path is required")
	}
	if strings.ContainsRune(path, '\x00') {
		return NewValidationError(KindPathTraversal, "null-byte", "path contains null byte")
	}

	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Join(v.root, path)
	}

	rel, err := filepath.Rel(v.root, resolved)
	if err != nil {
		return NewValidationError(KindPathTraversal, "unresolvable", "path cannot be resolved")
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		if filepath.IsAbs(path) {
			return NewValidationError(KindPathTraversal, "absolute-escape", "path is outside the allowed directory")
		}
		return NewValidationError(KindPathTraversal, "parent-traversal", "path is outside the allowed directory")
	}

	return nil
}
