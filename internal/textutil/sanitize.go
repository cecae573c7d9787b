package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"\x00", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, and asterisks become dashes, colons become " -", and
// other unsafe characters are removed. Runs of whitespace collapse and
// leading/trailing dots are trimmed so the result is never hidden or empty.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	cleaned := strings.Join(strings.Fields(fileNameReplacer.Replace(name)), " ")
	cleaned = strings.Trim(cleaned, ". ")
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}
