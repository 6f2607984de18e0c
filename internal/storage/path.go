package storage

import (
	"fmt"
	"regexp"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9. _-]{0,127}$`)

// ValidateComponent rejects names that could escape the upload root or
// collide with shell-hostile characters. Uploaded file names pass
// through here before they touch the filesystem.
func ValidateComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// SafeFileName reduces an arbitrary client-supplied name to something
// ValidateComponent accepts, preserving the extension.
func SafeFileName(name string) string {
	cleaned := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			cleaned = append(cleaned, r)
		case r == '.', r == '-', r == '_':
			cleaned = append(cleaned, r)
		case r == ' ':
			cleaned = append(cleaned, '_')
		}
	}
	out := string(cleaned)
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	for len(out) > 0 && (out[0] == '.' || out[0] == '-' || out[0] == '_') {
		out = out[1:]
	}
	if out == "" {
		out = "upload.db"
	}
	return out
}
