package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/juju/errors"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
)

// Completer finishes the interactive consent flow when no cached token
// can be reused. Implementations return the freshly granted token.
type Completer interface {
	Complete(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)
}

// Provider acquires Drive credentials: a cached token when possible, a
// silent refresh when the cache is stale, interactive consent as the
// last resort. No other component reads or writes OAuth secrets.
type Provider struct {
	Fs        afero.Fs
	Log       *slog.Logger
	Completer Completer
	Scopes    []string
}

// NewProvider constructs a Provider with sane defaults.
func NewProvider(fs afero.Fs, completer Completer, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Provider{
		Fs:        fs,
		Log:       logger,
		Completer: completer,
		Scopes:    []string{drive.DriveReadonlyScope},
	}
}

// Authenticate produces a token source backed by the cache at tokenPath.
// A cached unexpired token is used without any network call. An expired
// cache holding a refresh token is refreshed silently, exactly once, and
// persisted. Otherwise the consent completer runs and the granted bundle
// is persisted. Later refreshes by the returned source are persisted as
// they happen, so long runs survive token expiry.
func (p *Provider) Authenticate(ctx context.Context, credentialsPath, tokenPath string) (oauth2.TokenSource, error) {
	data, err := afero.ReadFile(p.Fs, credentialsPath)
	if err != nil {
		return nil, errors.NewUnauthorized(err, fmt.Sprintf("read oauth client credentials at %s", credentialsPath))
	}
	cfg, err := google.ConfigFromJSON(data, p.Scopes...)
	if err != nil {
		return nil, errors.NewUnauthorized(err, fmt.Sprintf("parse oauth client credentials at %s", credentialsPath))
	}

	tok, err := p.readCache(tokenPath)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			p.Log.WarnContext(ctx, "ignoring unreadable token cache", "path", tokenPath, "error", err)
		}
		tok = nil
	}

	switch {
	case tok != nil && tok.Valid():
		p.Log.DebugContext(ctx, "using cached token", "cache", tokenPath)
		return p.source(ctx, cfg, tokenPath, tok), nil

	case tok != nil && tok.RefreshToken != "":
		p.Log.InfoContext(ctx, "refreshing expired token", "cache", tokenPath)
		fresh, rerr := cfg.TokenSource(ctx, tok).Token()
		if rerr != nil {
			return nil, errors.NewUnauthorized(rerr, "refresh cached token")
		}
		if werr := writeToken(p.Fs, tokenPath, fresh); werr != nil {
			return nil, errors.Trace(werr)
		}
		return p.source(ctx, cfg, tokenPath, fresh), nil

	default:
		if p.Completer == nil {
			return nil, errors.NewUnauthorized(nil, "consent required but no interactive channel is available")
		}
		p.Log.InfoContext(ctx, "requesting interactive consent", "credentials", credentialsPath)
		fresh, cerr := p.Completer.Complete(ctx, cfg)
		if cerr != nil {
			return nil, errors.NewUnauthorized(cerr, "complete consent flow")
		}
		if werr := writeToken(p.Fs, tokenPath, fresh); werr != nil {
			return nil, errors.Trace(werr)
		}
		return p.source(ctx, cfg, tokenPath, fresh), nil
	}
}

func (p *Provider) source(ctx context.Context, cfg *oauth2.Config, tokenPath string, tok *oauth2.Token) oauth2.TokenSource {
	return &savingSource{
		fs:   p.Fs,
		path: tokenPath,
		log:  p.Log,
		src:  oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		last: tok.AccessToken,
	}
}

func (p *Provider) readCache(path string) (*oauth2.Token, error) {
	data, err := afero.ReadFile(p.Fs, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, errors.Annotatef(err, "parse token cache %s", path)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.NotValidf("token cache %s", path)
	}
	return &tok, nil
}

// savingSource persists tokens whenever the wrapped source hands out a
// new one, so a refresh mid-run is not lost for the next run.
type savingSource struct {
	fs   afero.Fs
	path string
	log  *slog.Logger
	src  oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, errors.Annotate(err, "obtain access token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if werr := writeToken(s.fs, s.path, tok); werr != nil {
			s.log.Warn("persist refreshed token", "path", s.path, "error", werr)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// writeToken replaces the token cache atomically so a killed process
// never leaves a half-written cache behind.
func writeToken(fs afero.Fs, path string, tok *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return errors.Annotatef(err, "create token cache dir %s", dir)
	}
	tmp, err := afero.TempFile(fs, dir, ".token-*")
	if err != nil {
		return errors.Annotate(err, "create token cache temp file")
	}
	tmpName := tmp.Name()
	if err := json.NewEncoder(tmp).Encode(tok); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return errors.Annotate(err, "encode token cache")
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return errors.Annotate(err, "close token cache temp file")
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return errors.Annotatef(err, "replace token cache %s", path)
	}
	return nil
}
