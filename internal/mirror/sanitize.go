package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/joshsymonds/drivemirror/internal/drive"
)

const maxNameLength = 50

// SanitizeName strips reserved filesystem characters from a remote name
// and caps it at 50 characters, marking truncation with an ellipsis.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if utf8.RuneCountInString(clean) > maxNameLength {
		clean = string([]rune(clean)[:maxNameLength]) + "..."
	}
	return clean
}

// disambiguate returns sanitized local names for the entries, suffixing
// repeats within one listing (name_2.txt, name_3.txt) so later files do
// not silently overwrite earlier ones.
func disambiguate(entries []drive.RemoteFile) []string {
	names := make([]string, len(entries))
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		name := SanitizeName(e.Name)
		seen[name]++
		if n := seen[name]; n > 1 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
		}
		names[i] = name
	}
	return names
}
