package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/afero"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/joshsymonds/drivemirror/internal/config"
	"github.com/joshsymonds/drivemirror/internal/drive"
	"github.com/joshsymonds/drivemirror/internal/rate"
)

// Spec controls one mirror run.
type Spec struct {
	Mappings []config.FolderMapping
	Workers  int
	DryRun   bool
}

// SessionFactory builds an extra client with its own transport for one
// concurrent worker. Sharing a transport across workers is not safe.
type SessionFactory func(ctx context.Context) (drive.Client, error)

// ProgressFunc starts a byte progress bar for one download. Only used
// for sequential runs; concurrent workers would interleave bars.
type ProgressFunc func(name string, size int64) *pb.ProgressBar

// Service mirrors configured remote folders into local directories.
type Service struct {
	Client     drive.Client
	Fs         afero.Fs
	Log        *slog.Logger
	Rate       rate.Limiter
	Clock      func() time.Time
	NewSession SessionFactory
	Progress   ProgressFunc
}

// NewService constructs a Service with sane defaults.
func NewService(client drive.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client: client,
		Fs:     afero.NewOsFs(),
		Log:    logger,
		Rate:   limiter,
		Clock:  time.Now,
	}
}

// Run processes every mapping in configuration order and reports
// per-file outcomes. Failures are contained at the smallest scope: a bad
// file is recorded and its siblings continue, a bad folder listing
// aborts only its mapping. Run itself fails only when the context does.
func (s *Service) Run(ctx context.Context, spec Spec) (Report, error) {
	workers := spec.Workers
	if workers < 1 {
		workers = 1
	}
	clients := s.buildSessions(ctx, workers)

	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	rep := Report{GeneratedAt: now(), DryRun: spec.DryRun}
	for _, m := range spec.Mappings {
		if err := ctx.Err(); err != nil {
			rep.tally()
			return rep, errors.Annotate(err, "mirror interrupted")
		}
		s.Log.InfoContext(ctx, "mirroring folder", "id", m.ID, "dest", m.Dest, "dry_run", spec.DryRun)
		mr := s.runMapping(ctx, clients, m, spec.DryRun)
		if mr.Err != nil {
			s.Log.WarnContext(ctx, "mapping aborted", "id", m.ID, "error", mr.Err)
		}
		rep.Mappings = append(rep.Mappings, mr)
	}
	rep.tally()

	aborted := 0
	for _, m := range rep.Mappings {
		if m.Err != nil {
			aborted++
		}
	}
	if rep.Failed > 0 || aborted > 0 {
		s.Log.WarnContext(ctx, "mirror finished with failures",
			"downloaded", rep.Downloaded, "skipped", rep.Skipped,
			"failed", rep.Failed, "aborted_mappings", aborted)
	} else {
		s.Log.InfoContext(ctx, "mirror finished",
			"downloaded", rep.Downloaded, "skipped", rep.Skipped)
	}
	return rep, nil
}

func (s *Service) buildSessions(ctx context.Context, workers int) []drive.Client {
	clients := []drive.Client{s.Client}
	for len(clients) < workers {
		if s.NewSession == nil {
			s.Log.WarnContext(ctx, "no session factory; downloading sequentially", "workers", workers)
			break
		}
		extra, err := s.NewSession(ctx)
		if err != nil {
			s.Log.WarnContext(ctx, "session factory failed; continuing with fewer workers",
				"have", len(clients), "want", workers, "error", err)
			break
		}
		clients = append(clients, extra)
	}
	return clients
}

func (s *Service) runMapping(ctx context.Context, clients []drive.Client, m config.FolderMapping, dryRun bool) MappingResult {
	mr := MappingResult{Mapping: m}
	if !dryRun {
		if err := s.Fs.MkdirAll(m.Dest, 0o755); err != nil {
			fail := errors.NewNotValid(err, fmt.Sprintf("create dest %s", m.Dest))
			mr.Err, mr.Reason = fail, fail.Error()
			return mr
		}
	}
	files, err := s.mirrorFolder(ctx, clients, drive.FileID(m.ID), m.Dest, dryRun)
	mr.Files = files
	if err != nil {
		mr.Err, mr.Reason = err, err.Error()
	}
	return mr
}

// mirrorFolder lists one folder and processes its entries depth-first in
// listing order. File results keep listing order even when downloads ran
// concurrently. The returned error is folder-scoped: collected results
// stay valid and the caller abandons the rest of the mapping.
func (s *Service) mirrorFolder(ctx context.Context, clients []drive.Client, folderID drive.FileID, dest string, dryRun bool) ([]FileResult, error) {
	if err := s.wait(ctx, "rate limit list"); err != nil {
		return nil, err
	}
	entries, err := clients[0].List(ctx, folderID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	names := disambiguate(entries)

	outcomes := make([]*FileResult, len(entries))
	var fileIdx []int
	for i, e := range entries {
		if !e.IsFolder() {
			fileIdx = append(fileIdx, i)
		}
	}

	if len(clients) > 1 && len(fileIdx) > 1 && !dryRun {
		s.downloadPool(ctx, clients, entries, names, fileIdx, dest, outcomes)
	} else {
		for _, i := range fileIdx {
			if ctx.Err() != nil {
				break
			}
			res := s.downloadOne(ctx, clients[0], entries[i], names[i], dest, dryRun)
			outcomes[i] = &res
		}
	}

	var results []FileResult
	var folderErr error
	for i, e := range entries {
		if folderErr != nil {
			// flush downloads that finished before the folder failure
			if !e.IsFolder() && outcomes[i] != nil {
				results = append(results, *outcomes[i])
			}
			continue
		}
		if e.IsFolder() {
			sub := filepath.Join(dest, names[i])
			if !dryRun {
				if err := s.Fs.MkdirAll(sub, 0o755); err != nil {
					folderErr = errors.Annotatef(err, "create subfolder %s", sub)
					continue
				}
			}
			nested, nerr := s.mirrorFolder(ctx, clients, e.ID, sub, dryRun)
			results = append(results, nested...)
			folderErr = nerr
			continue
		}
		if outcomes[i] != nil {
			results = append(results, *outcomes[i])
		}
	}
	if folderErr == nil && ctx.Err() != nil {
		folderErr = errors.Annotate(ctx.Err(), "folder walk interrupted")
	}
	return results, folderErr
}

// downloadPool fans the folder's files out to one goroutine per session.
// Each worker owns its client; outcome slots are disjoint by index.
func (s *Service) downloadPool(ctx context.Context, clients []drive.Client, entries []drive.RemoteFile, names []string, fileIdx []int, dest string, outcomes []*FileResult) {
	workers := len(clients)
	if workers > len(fileIdx) {
		workers = len(fileIdx)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(client drive.Client) {
			defer wg.Done()
			for i := range jobs {
				res := s.downloadOne(ctx, client, entries[i], names[i], dest, false)
				outcomes[i] = &res
			}
		}(clients[w])
	}
	for _, i := range fileIdx {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (s *Service) downloadOne(ctx context.Context, client drive.Client, f drive.RemoteFile, name, dest string, dryRun bool) FileResult {
	res := FileResult{ID: f.ID, Name: f.Name, Size: f.Size}

	var (
		export   drive.Export
		doExport bool
	)
	if f.IsEditorDoc() {
		exp, ok := drive.ExportFor(f.MimeType)
		if !ok {
			res.Outcome = OutcomeSkipped
			res.Reason = fmt.Sprintf("unsupported editor type %s", f.MimeType)
			s.Log.DebugContext(ctx, "skipping file", "name", f.Name, "reason", res.Reason)
			return res
		}
		export, doExport = exp, true
		if !strings.HasSuffix(strings.ToLower(name), export.Ext) {
			name += export.Ext
		}
	}
	res.LocalPath = filepath.Join(dest, name)

	if dryRun {
		res.Outcome = OutcomeSkipped
		res.Reason = "dry-run"
		return res
	}

	if err := s.wait(ctx, "rate limit fetch"); err != nil {
		return s.failed(ctx, res, err)
	}
	var (
		rc  io.ReadCloser
		err error
	)
	if doExport {
		rc, err = client.Export(ctx, f.ID, export.MimeType)
	} else {
		rc, err = client.Fetch(ctx, f.ID, f.Size)
	}
	if err != nil {
		return s.failed(ctx, res, err)
	}
	if err := s.writeFile(res.LocalPath, rc, f.Size); err != nil {
		return s.failed(ctx, res, err)
	}
	res.Outcome = OutcomeDownloaded
	s.Log.InfoContext(ctx, "downloaded", "name", f.Name, "path", res.LocalPath, "bytes", f.Size)
	return res
}

func (s *Service) failed(ctx context.Context, res FileResult, err error) FileResult {
	res.Outcome = OutcomeFailed
	res.Err = err
	res.Reason = err.Error()
	s.Log.WarnContext(ctx, "download failed", "name", res.Name, "error", err)
	return res
}

// writeFile stages the stream into a temp file next to the target and
// renames it over, so an interrupted download never leaves a partial
// file under the target name.
func (s *Service) writeFile(local string, rc io.ReadCloser, size int64) error {
	defer func() { _ = rc.Close() }()
	tmp, err := afero.TempFile(s.Fs, filepath.Dir(local), ".mirror-*")
	if err != nil {
		return errors.Annotate(err, "create temp file")
	}
	tmpName := tmp.Name()

	src := io.Reader(rc)
	var bar *pb.ProgressBar
	if s.Progress != nil && size > 0 {
		bar = s.Progress(filepath.Base(local), size)
		src = bar.NewProxyReader(src)
	}
	_, err = io.Copy(tmp, src)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		_ = tmp.Close()
		_ = s.Fs.Remove(tmpName)
		return errors.Trace(err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.Fs.Remove(tmpName)
		return errors.Annotate(err, "close temp file")
	}
	if err := s.Fs.Rename(tmpName, local); err != nil {
		_ = s.Fs.Remove(tmpName)
		return errors.Annotatef(err, "replace %s", local)
	}
	return nil
}

func (s *Service) wait(ctx context.Context, operation string) error {
	if s.Rate == nil {
		return nil
	}
	if err := s.Rate.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
