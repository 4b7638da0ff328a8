package services

import (
	"fmt"
	"path"
	"strings"
)

const (
	// MetadataFile is the per-package document name.
	MetadataFile = "package.json"

	// DefaultPackagesDir is the key prefix used when none is configured.
	DefaultPackagesDir = "packages"

	contentTypeJSON    = "application/json"
	contentTypeTarball = "application/x-compressed"
)

// CacheControl renders the header value for a max-age in seconds.
// Zero or negative means no header.
func CacheControl(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("public, max-age=%d", seconds)
}

// ValidatePackageName accepts plain and scoped (@scope/name) package names.
func ValidatePackageName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty package name", ErrInvalidName)
	}
	segments := strings.Split(name, "/")
	if len(segments) > 2 || (len(segments) == 2 && !strings.HasPrefix(name, "@")) {
		return fmt.Errorf("%w: package %q", ErrInvalidName, name)
	}
	for _, s := range segments {
		if err := validateSegment(s); err != nil {
			return fmt.Errorf("%w: package %q", ErrInvalidName, name)
		}
	}
	return nil
}

// ValidateFileName accepts a single path segment.
func ValidateFileName(name string) error {
	if err := validateSegment(name); err != nil {
		return fmt.Errorf("%w: file %q", ErrInvalidName, name)
	}
	return nil
}

func validateSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
		return ErrInvalidName
	}
	return nil
}

// objectKey joins key parts with forward slashes regardless of platform.
func objectKey(parts ...string) string {
	return path.Join(parts...)
}
