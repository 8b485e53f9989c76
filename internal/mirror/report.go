package mirror

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/afero"

	"github.com/joshsymonds/drivemirror/internal/config"
	"github.com/joshsymonds/drivemirror/internal/drive"
)

// Outcome classifies what happened to one remote file.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Report summarizes one mirror run.
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	DryRun      bool            `json:"dry_run,omitempty"`
	Downloaded  int             `json:"downloaded"`
	Skipped     int             `json:"skipped"`
	Failed      int             `json:"failed"`
	Mappings    []MappingResult `json:"mappings"`
}

// MappingResult holds the outcome of one configured folder mapping.
// Err is set when the mapping was aborted at folder scope; file results
// collected before the abort are kept.
type MappingResult struct {
	Mapping config.FolderMapping `json:"mapping"`
	Reason  string               `json:"reason,omitempty"`
	Files   []FileResult         `json:"files,omitempty"`
	Err     error                `json:"-"`
}

// FileResult records what happened to a single remote file.
type FileResult struct {
	ID        drive.FileID `json:"id"`
	Name      string       `json:"name"`
	Size      int64        `json:"size,omitempty"`
	LocalPath string       `json:"local_path,omitempty"`
	Outcome   Outcome      `json:"outcome"`
	Reason    string       `json:"reason,omitempty"`
	Err       error        `json:"-"`
}

func (r *Report) tally() {
	r.Downloaded, r.Skipped, r.Failed = 0, 0, 0
	for _, m := range r.Mappings {
		for _, f := range m.Files {
			switch f.Outcome {
			case OutcomeDownloaded:
				r.Downloaded++
			case OutcomeSkipped:
				r.Skipped++
			case OutcomeFailed:
				r.Failed++
			}
		}
	}
}

// PrintHuman writes a readable run summary to the provided writer.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var builder strings.Builder
	fmt.Fprintf(
		&builder,
		"drivemirror — %d downloaded, %d skipped, %d failed across %d mappings\n",
		rep.Downloaded,
		rep.Skipped,
		rep.Failed,
		len(rep.Mappings),
	)
	for _, m := range rep.Mappings {
		if m.Err != nil {
			fmt.Fprintf(&builder, "  mapping %s -> %s aborted: %s\n", m.Mapping.ID, m.Mapping.Dest, m.Reason)
		}
		for _, f := range m.Files {
			if f.Outcome != OutcomeFailed {
				continue
			}
			fmt.Fprintf(&builder, "  failed %s (%s): %s\n", f.Name, f.ID, f.Reason)
		}
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// WriteJSON serializes the report to disk.
func WriteJSON(fs afero.Fs, rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return errors.NotValidf("empty report path")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return errors.NotValidf("report path %s: must be relative", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return errors.NotValidf("report path %s: escapes working directory", clean)
	}
	f, err := fs.OpenFile(clean, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Annotatef(err, "create %s", clean)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encodeErr := enc.Encode(rep); encodeErr != nil {
		return errors.Annotate(encodeErr, "encode report")
	}
	return nil
}
