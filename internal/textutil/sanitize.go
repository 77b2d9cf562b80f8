package textutil

import (
	"path/filepath"
	"strings"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// SanitizeSegment makes a single directory name safe. Empty results and the
// relative names "." and ".." become "unknown".
func SanitizeSegment(segment string) string {
	out := SanitizeFileName(segment)
	out = strings.TrimRight(out, ". ")
	if out == "" || out == "." || out == ".." {
		return "unknown"
	}
	return out
}

// SanitizeRelPath sanitizes each slash-separated segment of a category path
// and joins them with the host separator. The result never escapes its parent.
func SanitizeRelPath(category string) string {
	parts := strings.Split(strings.ReplaceAll(category, "\\", "/"), "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		clean = append(clean, SanitizeSegment(part))
	}
	if len(clean) == 0 {
		return "unknown"
	}
	return filepath.Join(clean...)
}
