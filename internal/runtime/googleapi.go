// internal/runtime/googleapi.go — adapts *drive.Service to our small interface
package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/juju/errors"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	dc "github.com/joshsymonds/drivemirror/internal/drive"
)

const listPageSize = 1000

type googleClient struct{ svc *drive.Service }

func NewGoogleAPIClient(svc *drive.Service) *googleClient { return &googleClient{svc} }

// List pages through the immediate children of a folder, excluding
// trashed entries, in provider order.
func (g *googleClient) List(ctx context.Context, folderID dc.FileID) ([]dc.RemoteFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	var files []dc.RemoteFile
	pageToken := ""
	for {
		call := g.svc.Files.List().
			Q(q).
			PageSize(listPageSize).
			Fields("nextPageToken, files(id, name, mimeType, size)")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, classify(fmt.Sprintf("list folder %s", folderID), err)
		}
		for _, f := range res.Files {
			files = append(files, dc.RemoteFile{
				ID:       dc.FileID(f.Id),
				Name:     f.Name,
				Size:     f.Size,
				MimeType: f.MimeType,
			})
		}
		if res.NextPageToken == "" {
			return files, nil
		}
		pageToken = res.NextPageToken
	}
}

// Fetch opens the binary content of a file. The stream is size-checked
// against the byte count the listing reported.
func (g *googleClient) Fetch(ctx context.Context, id dc.FileID, size int64) (io.ReadCloser, error) {
	res, err := g.svc.Files.Get(string(id)).Context(ctx).Download()
	if err != nil {
		return nil, classify(fmt.Sprintf("fetch file %s", id), err)
	}
	return dc.SizeChecked(res.Body, size), nil
}

// Export opens a converted stream of an editor document.
func (g *googleClient) Export(ctx context.Context, id dc.FileID, mimeType string) (io.ReadCloser, error) {
	res, err := g.svc.Files.Export(string(id), mimeType).Context(ctx).Download()
	if err != nil {
		return nil, classify(fmt.Sprintf("export file %s", id), err)
	}
	return res.Body, nil
}

// classify maps provider errors onto the taxonomy the mirror service
// scopes its failures by: NotFound and Forbidden skip a mapping,
// QuotaLimitExceeded carries the provider's retry hint, Timeout and
// plain transport errors stay file- or folder-scoped.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if stderrors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return errors.NewNotFound(err, op)
		case gerr.Code == http.StatusTooManyRequests,
			gerr.Code == http.StatusForbidden && quotaReason(gerr):
			return errors.NewQuotaLimitExceeded(err, op+retryHint(gerr))
		case gerr.Code == http.StatusForbidden:
			return errors.NewForbidden(err, op)
		}
		return errors.Annotate(err, op)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeout(err, op)
	}
	var nerr net.Error
	if stderrors.As(err, &nerr) && nerr.Timeout() {
		return errors.NewTimeout(err, op)
	}
	return errors.Annotate(err, op)
}

func quotaReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded",
			"downloadQuotaExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}

func retryHint(gerr *googleapi.Error) string {
	if after := gerr.Header.Get("Retry-After"); after != "" {
		return fmt.Sprintf(" (retry after %s)", after)
	}
	return ""
}

var _ dc.Client = (*googleClient)(nil)
