package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/juju/errors"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	dc "github.com/joshsymonds/drivemirror/internal/drive"
)

const listPageOne = `{
	"nextPageToken": "token-2",
	"files": [
		{"id": "file-1", "name": "a.txt", "mimeType": "text/plain", "size": "4"},
		{"id": "sub-1", "name": "nested", "mimeType": "application/vnd.google-apps.folder"}
	]
}`

const listPageTwo = `{
	"files": [
		{"id": "doc-1", "name": "Report", "mimeType": "application/vnd.google-apps.document"}
	]
}`

const notFoundBody = `{
	"error": {
		"errors": [{"domain": "global", "reason": "notFound", "message": "File not found"}],
		"code": 404,
		"message": "File not found"
	}
}`

type driveStub struct{}

func (driveStub) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	query := req.URL.Query()
	switch {
	case strings.HasSuffix(path, "/files") && strings.Contains(query.Get("q"), "'missing'"):
		return stubResponse(http.StatusNotFound, notFoundBody), nil
	case strings.HasSuffix(path, "/files") && query.Get("pageToken") == "":
		return stubResponse(http.StatusOK, listPageOne), nil
	case strings.HasSuffix(path, "/files") && query.Get("pageToken") == "token-2":
		return stubResponse(http.StatusOK, listPageTwo), nil
	case strings.HasSuffix(path, "/files/doc-1/export"):
		return stubResponse(http.StatusOK, "%PDF-fake"), nil
	case strings.HasSuffix(path, "/files/file-1") && query.Get("alt") == "media":
		return stubResponse(http.StatusOK, "data"), nil
	}
	return stubResponse(http.StatusNotFound, notFoundBody), nil
}

func stubResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newStubClient(t *testing.T) *googleClient {
	t.Helper()
	svc, err := drive.NewService(
		context.Background(),
		option.WithHTTPClient(&http.Client{Transport: driveStub{}}),
	)
	if err != nil {
		t.Fatalf("create drive service: %v", err)
	}
	return NewGoogleAPIClient(svc)
}

func TestListPagesThroughFolder(t *testing.T) {
	client := newStubClient(t)

	files, err := client.List(context.Background(), "folder-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 entries across pages, got %d", len(files))
	}
	if files[0].Name != "a.txt" || files[0].Size != 4 || files[0].MimeType != "text/plain" {
		t.Fatalf("unexpected first entry: %+v", files[0])
	}
	if !files[1].IsFolder() {
		t.Fatalf("expected second entry to be a folder: %+v", files[1])
	}
	if files[2].ID != "doc-1" || !files[2].IsEditorDoc() {
		t.Fatalf("unexpected last entry: %+v", files[2])
	}
}

func TestListMissingFolderIsNotFound(t *testing.T) {
	client := newStubClient(t)

	_, err := client.List(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFetchChecksSize(t *testing.T) {
	client := newStubClient(t)

	rc, err := client.Fetch(context.Background(), "file-1", 4)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("unexpected content %q", got)
	}

	rc, err = client.Fetch(context.Background(), "file-1", 9)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	if _, err := io.ReadAll(rc); !stderrors.Is(err, dc.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestExportStreamsConversion(t *testing.T) {
	client := newStubClient(t)

	rc, err := client.Export(context.Background(), "doc-1", "application/pdf")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	defer func() { _ = rc.Close() }()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "%PDF-fake" {
		t.Fatalf("unexpected content %q", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want func(error) bool
		kind string
	}{
		{
			name: "not-found",
			err:  &googleapi.Error{Code: http.StatusNotFound},
			want: errors.IsNotFound,
			kind: "NotFound",
		},
		{
			name: "forbidden",
			err:  &googleapi.Error{Code: http.StatusForbidden},
			want: errors.IsForbidden,
			kind: "Forbidden",
		},
		{
			name: "rate-limited-reason",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
			},
			want: errors.IsQuotaLimitExceeded,
			kind: "QuotaLimitExceeded",
		},
		{
			name: "download-quota",
			err: &googleapi.Error{
				Code:   http.StatusForbidden,
				Errors: []googleapi.ErrorItem{{Reason: "downloadQuotaExceeded"}},
			},
			want: errors.IsQuotaLimitExceeded,
			kind: "QuotaLimitExceeded",
		},
		{
			name: "too-many-requests",
			err:  &googleapi.Error{Code: http.StatusTooManyRequests},
			want: errors.IsQuotaLimitExceeded,
			kind: "QuotaLimitExceeded",
		},
		{
			name: "deadline",
			err:  fmt.Errorf("call: %w", context.DeadlineExceeded),
			want: errors.IsTimeout,
			kind: "Timeout",
		},
		{
			name: "net-timeout",
			err:  timeoutErr{},
			want: errors.IsTimeout,
			kind: "Timeout",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			got := classify("list folder x", tc.err)
			if !tc.want(got) {
				t.Fatalf("expected %s, got %v", tc.kind, got)
			}
		})
	}
}

func TestClassifyRetryHint(t *testing.T) {
	gerr := &googleapi.Error{
		Code:   http.StatusTooManyRequests,
		Header: http.Header{"Retry-After": []string{"93"}},
	}

	got := classify("fetch file f", gerr)
	if !errors.IsQuotaLimitExceeded(got) {
		t.Fatalf("expected QuotaLimitExceeded, got %v", got)
	}
	if !strings.Contains(got.Error(), "retry after 93") {
		t.Fatalf("missing retry hint: %v", got)
	}
}

func TestClassifyPassesPlainErrors(t *testing.T) {
	got := classify("fetch file f", stderrors.New("connection reset"))
	if got == nil {
		t.Fatalf("expected error")
	}
	for name, check := range map[string]func(error) bool{
		"NotFound":           errors.IsNotFound,
		"Forbidden":          errors.IsForbidden,
		"QuotaLimitExceeded": errors.IsQuotaLimitExceeded,
		"Timeout":            errors.IsTimeout,
	} {
		if check(got) {
			t.Fatalf("plain error classified as %s: %v", name, got)
		}
	}
	if classify("op", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
