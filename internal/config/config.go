package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/afero"
)

// FolderMapping pairs a remote folder ID with the local directory its
// contents mirror into. Mappings are processed in file order.
type FolderMapping struct {
	ID   string `json:"id"`
	Dest string `json:"dest"`
}

// Load reads the mapping file: a JSON array of {"id", "dest"} objects.
// A missing file, malformed JSON, an entry without id or dest, or two
// entries sharing a dest all fail the load with a NotValid error. No
// remote checks happen here; unknown folder IDs surface at listing time.
func Load(fs afero.Fs, path string) ([]FolderMapping, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.NewNotValid(err, fmt.Sprintf("open folder config at %s", path))
	}
	defer func() { _ = f.Close() }()

	var mappings []FolderMapping
	if err := json.NewDecoder(f).Decode(&mappings); err != nil {
		return nil, errors.NewNotValid(err, fmt.Sprintf("parse folder config at %s", path))
	}
	if err := validate(mappings); err != nil {
		return nil, errors.Trace(err)
	}
	return mappings, nil
}

// ResolveDests returns a copy of mappings with every relative dest
// joined onto base. Destinations that collide after resolution are
// rejected, matching the duplicate check at load time.
func ResolveDests(mappings []FolderMapping, base string) ([]FolderMapping, error) {
	out := make([]FolderMapping, len(mappings))
	for i, m := range mappings {
		dest := m.Dest
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(base, dest)
		}
		out[i] = FolderMapping{ID: m.ID, Dest: filepath.Clean(dest)}
	}
	if err := rejectDuplicateDests(out); err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

func validate(mappings []FolderMapping) error {
	for i, m := range mappings {
		if strings.TrimSpace(m.ID) == "" {
			return errors.NotValidf("mapping %d: missing id", i)
		}
		if strings.TrimSpace(m.Dest) == "" {
			return errors.NotValidf("mapping %d: missing dest", i)
		}
	}
	return rejectDuplicateDests(mappings)
}

func rejectDuplicateDests(mappings []FolderMapping) error {
	seen := make(map[string]int, len(mappings))
	for i, m := range mappings {
		key := filepath.Clean(m.Dest)
		if prev, ok := seen[key]; ok {
			return errors.NotValidf("mappings %d and %d: duplicate dest %q", prev, i, m.Dest)
		}
		seen[key] = i
	}
	return nil
}
