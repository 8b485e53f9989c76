package drive

import (
	"context"
	"io"

	"github.com/juju/errors"
)

// ErrCorrupt marks a download whose byte count disagrees with the size
// the listing reported.
const ErrCorrupt = errors.ConstError("content does not match reported size")

// Client is the narrow Drive surface required by drivemirror.
type Client interface {
	// List returns the immediate, non-trashed children of a folder in
	// provider order, fully paginated.
	List(ctx context.Context, folderID FileID) ([]RemoteFile, error)
	// Fetch opens the binary content of a file. Reads from the returned
	// stream fail with ErrCorrupt if it does not deliver exactly size
	// bytes.
	Fetch(ctx context.Context, id FileID, size int64) (io.ReadCloser, error)
	// Export opens a converted stream of an editor document. Drive does
	// not report export sizes, so the stream is not size-checked.
	Export(ctx context.Context, id FileID, mimeType string) (io.ReadCloser, error)
}

// SizeChecked wraps rc so reads fail with ErrCorrupt unless the stream
// delivers exactly want bytes. A negative want disables the check.
func SizeChecked(rc io.ReadCloser, want int64) io.ReadCloser {
	if want < 0 {
		return rc
	}
	return &sizeReader{rc: rc, want: want}
}

type sizeReader struct {
	rc   io.ReadCloser
	want int64
	got  int64
}

func (r *sizeReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.got += int64(n)
	if r.got > r.want {
		return n, errors.Annotatef(ErrCorrupt, "stream exceeded %d bytes", r.want)
	}
	if err == io.EOF && r.got != r.want {
		return n, errors.Annotatef(ErrCorrupt, "stream ended at %d of %d bytes", r.got, r.want)
	}
	return n, err
}

func (r *sizeReader) Close() error { return r.rc.Close() }
