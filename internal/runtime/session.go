package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/juju/errors"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewSession builds a Drive service over its own private HTTP transport.
// Concurrent workers must not share a session: mixing downloads on one
// transport trips connection-level failures mid-stream.
func NewSession(ctx context.Context, ts oauth2.TokenSource, timeout time.Duration) (*drive.Service, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("default transport is not an *http.Transport")
	}
	client := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base.Clone()},
		Timeout:   timeout,
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Annotate(err, "create drive service")
	}
	return svc, nil
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
