package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/term"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/joshsymonds/drivemirror/internal/auth"
	"github.com/joshsymonds/drivemirror/internal/config"
	"github.com/joshsymonds/drivemirror/internal/drive"
	"github.com/joshsymonds/drivemirror/internal/mirror"
	"github.com/joshsymonds/drivemirror/internal/rate"
	"github.com/joshsymonds/drivemirror/internal/runtime"
)

type mirrorConfig struct {
	configPath      string
	credentialsPath string
	tokenPath       string
	base            string
	workers         int
	rps             int
	timeout         time.Duration
	dryRun          bool
	noProgress      bool
	jsonOut         string
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("drivemirror failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() mirrorConfig {
	configPath := flag.String("config", "config.json", "folder mapping file")
	credentialsPath := flag.String("credentials", "credentials.json", "OAuth client credentials file")
	tokenPath := flag.String("token", "token.json", "cached OAuth token file")
	base := flag.String("base", ".", "base directory for relative dests")
	workers := flag.Int("workers", 1, "concurrent downloads, each with its own session")
	rps := flag.Int("rps", 4, "max requests per second")
	timeout := flag.Duration("timeout", 10*time.Minute, "per-request HTTP timeout")
	dryRun := flag.Bool("dry-run", false, "list only; skip downloads and writes")
	noProgress := flag.Bool("no-progress", false, "disable per-file progress bars")
	jsonOut := flag.String("json", "", "write JSON report to path")
	flag.Parse()

	return mirrorConfig{
		configPath:      *configPath,
		credentialsPath: *credentialsPath,
		tokenPath:       *tokenPath,
		base:            *base,
		workers:         *workers,
		rps:             *rps,
		timeout:         *timeout,
		dryRun:          *dryRun,
		noProgress:      *noProgress,
		jsonOut:         *jsonOut,
	}
}

func run(cfg mirrorConfig) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := runtime.DefaultLogger()
	fs := afero.NewOsFs()

	mappings, err := config.Load(fs, cfg.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mappings, err = config.ResolveDests(mappings, cfg.base)
	if err != nil {
		return fmt.Errorf("resolve dests: %w", err)
	}

	provider := auth.NewProvider(fs, auth.NewTerminalCompleter(), logger)
	source, err := provider.Authenticate(ctx, cfg.credentialsPath, cfg.tokenPath)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	session, err := runtime.NewSession(ctx, source, cfg.timeout)
	if err != nil {
		return fmt.Errorf("create drive session: %w", err)
	}

	var limiter rate.Limiter
	if cfg.rps > 0 {
		limiter = rate.NewTokenBucket(cfg.rps)
	}

	svc := mirror.NewService(runtime.NewGoogleAPIClient(session), limiter, logger)
	svc.Fs = fs
	svc.Clock = time.Now
	svc.NewSession = func(ctx context.Context) (drive.Client, error) {
		extra, err := runtime.NewSession(ctx, source, cfg.timeout)
		if err != nil {
			return nil, err
		}
		return runtime.NewGoogleAPIClient(extra), nil
	}
	if cfg.workers <= 1 && !cfg.noProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		svc.Progress = progressBar
	}

	rep, err := svc.Run(ctx, mirror.Spec{
		Mappings: mappings,
		Workers:  cfg.workers,
		DryRun:   cfg.dryRun,
	})
	if err != nil {
		return fmt.Errorf("run mirror: %w", err)
	}

	if printErr := mirror.PrintHuman(rep, os.Stdout); printErr != nil {
		return fmt.Errorf("print report: %w", printErr)
	}
	if cfg.jsonOut == "" {
		return nil
	}
	if writeErr := mirror.WriteJSON(fs, rep, cfg.jsonOut); writeErr != nil {
		return fmt.Errorf("write json: %w", writeErr)
	}
	return nil
}

// progressBar renders one download on stderr so report output on stdout
// stays machine-readable.
func progressBar(name string, size int64) *pb.ProgressBar {
	bar := pb.New64(size).SetUnits(pb.U_BYTES)
	bar.Output = os.Stderr
	bar.Prefix(name)
	bar.Start()
	return bar
}
