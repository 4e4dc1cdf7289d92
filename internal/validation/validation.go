// Package validation provides file admissibility rules shared by the
// upload, zip ingestion and pipeline paths.
package validation

import (
	"fmt"
	"path"
	"strings"

	"github.com/docforge/docforge/internal/models"
)

// Validator checks names, sizes and extensions against the configured
// rules. The zero value rejects every extension; build one with New.
type Validator struct {
	supported map[string]bool
}

// New creates a Validator over the given supported-extension set
// (lower-case, no dots).
func New(supported map[string]bool) *Validator {
	return &Validator{supported: supported}
}

// Validate checks the basic admissibility of a file: non-zero size, a
// non-blank basename, and not a hidden (dot-prefixed) file. The returned
// error carries the validation kind.
func (v *Validator) Validate(name string, size int64) error {
	if size == 0 {
		return fmt.Errorf("file %q is empty: %w", name, models.ErrValidation)
	}
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == ".." || base == "/" {
		return fmt.Errorf("file name %q is blank: %w", name, models.ErrValidation)
	}
	if strings.HasPrefix(base, ".") {
		return fmt.Errorf("hidden file %q is not allowed: %w", name, models.ErrValidation)
	}
	return nil
}

// IsSupported reports whether the extension (with or without dot, any
// case) is in the configured set.
func (v *Validator) IsSupported(extension string) bool {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	return v.supported[ext]
}

// ValidateFully is the conjunction of Validate and IsSupported.
func (v *Validator) ValidateFully(name string, size int64) error {
	if err := v.Validate(name, size); err != nil {
		return err
	}
	if ext := Extension(name); !v.IsSupported(ext) {
		return fmt.Errorf("unsupported file type %q: %w", ext, models.ErrValidation)
	}
	return nil
}

// Extension returns the lower-case extension of name without the dot, or
// "" when there is none.
func Extension(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, "\\", "/"))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
