package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/export"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/ingest"
	"github.com/joseph-ayodele/certificate-verifier/internal/ocr"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	repo "github.com/joseph-ayodele/certificate-verifier/internal/repository"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir      = flag.String("dir", "", "directory to verify certificates from (required)")
		out      = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		parallel = flag.Int("parallel", 2, "documents verified concurrently")
		watch    = flag.Bool("watch", false, "keep watching the directory for new files until interrupted")
		hidden   = flag.Bool("hidden", false, "include hidden files and directories")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "certificates.xlsx")
	}
	if *parallel < 1 {
		*parallel = 1
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()

	sess, err := auth.LocalSession(os.Getenv("CERTVERIFY_TOKEN"), cfg.Auth.SigningKey, cfg.Auth.Issuer,
		cfg.Auth.DevSessions, cfg.Auth.AccessTTL, clock.WallClock.Now())
	if err != nil {
		printError("Error: %s\n", pipeline.Notice(err))
		os.Exit(1)
	}
	sessions := session.NewStore(clock.WallClock)
	sessions.Set(sess)

	var opts []pipeline.Option
	if cfg.JournalEnabled() {
		db, err := repo.Open(ctx, repo.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns, MinConns: cfg.Database.MinConns, DialTimeout: cfg.Database.DialTimeout}, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		opts = append(opts, pipeline.WithJournal(repo.NewAttemptRepository(db, clock.WallClock, logger)))
	}

	extractor := pipeline.NewOCRExtractor(ocr.ConfigFromSettings(cfg.OCR), nil, logger)
	verifier := pipeline.NewVerifier(sessions, extractor, logger, opts...)
	b := &batch{verifier: verifier, timeout: cfg.Queue.ProcessTimeout, logger: logger}

	var verr error
	if *watch {
		verr = b.watch(ctx, *dir, !*hidden, *parallel)
	} else {
		verr = b.scan(ctx, *dir, !*hidden, *parallel)
	}

	rows := b.sortedRows()
	xlsxBytes, err := export.WriteResultsXLSX(rows)
	if err != nil {
		logger.Error("failed to export results", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsxBytes, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	failures := 0
	for _, r := range rows {
		if r.Result == nil {
			failures++
		}
	}
	if verr != nil {
		logger.Warn("some certificates could not be verified", "error", verr)
	}
	logger.Info("batch verification complete",
		"files", len(rows),
		"failures", failures,
		"output_file", *out)

	fmt.Printf("Batch verification complete!\n")
	fmt.Printf("- Files verified: %d\n", len(rows)-failures)
	fmt.Printf("- Failures: %d\n", failures)
	fmt.Printf("- Output: %s\n", *out)
	if verr != nil {
		os.Exit(1)
	}
}

type batch struct {
	verifier *pipeline.Verifier
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	rows map[string]export.ResultRow
	errs *multierror.Error
}

// scan verifies every file under dir. Documents run concurrently up to
// parallel; pages within a document stay in order.
func (b *batch) scan(ctx context.Context, dir string, skipHidden bool, parallel int) error {
	found, stats, err := ingest.ScanDirectory(dir, skipHidden)
	if err != nil {
		b.logger.Error("failed to scan directory", "dir", dir, "error", err)
		return multierror.Append(nil, err)
	}
	b.logger.Info("scan complete", "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)

	var g errgroup.Group
	g.SetLimit(parallel)
	for _, f := range found {
		if f.Err != "" {
			b.record(f.Path, export.ResultRow{File: f.Path, Error: f.Err}, fmt.Errorf("%s: %s", f.Path, f.Err))
			continue
		}
		path := f.Path
		g.Go(func() error {
			b.verify(ctx, path)
			return nil
		})
	}
	_ = g.Wait()
	return b.errs.ErrorOrNil()
}

// watch verifies existing files and then new arrivals until ctx is done.
func (b *batch) watch(ctx context.Context, dir string, skipHidden bool, parallel int) error {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{dir},
		InitialScan: true,
		SkipHidden:  skipHidden,
		Debounce:    500 * time.Millisecond,
	}, b.logger)
	if err != nil {
		return multierror.Append(nil, err)
	}
	b.logger.Info("watching for certificates", "dir", dir)

	var g errgroup.Group
	g.SetLimit(parallel)
	for events != nil || errs != nil {
		select {
		case path, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			g.Go(func() error {
				b.verify(ctx, path)
				return nil
			})
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.logger.Warn("watch error", "error", err)
		}
	}
	_ = g.Wait()
	return b.errs.ErrorOrNil()
}

func (b *batch) verify(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		b.record(path, export.ResultRow{File: path, Error: err.Error()}, err)
		return
	}
	attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	res, err := b.verifier.Verify(attemptCtx, extract.SniffDocument(filepath.Base(path), "", data))
	if err != nil {
		b.record(path, export.ResultRow{File: path, Error: pipeline.Notice(err)}, fmt.Errorf("%s: %w", path, err))
		return
	}
	b.record(path, export.ResultRow{File: path, Result: &res}, nil)
}

// record keeps the latest outcome per file; a rewritten file replaces its row.
func (b *batch) record(key string, row export.ResultRow, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rows == nil {
		b.rows = map[string]export.ResultRow{}
	}
	b.rows[key] = row
	if err != nil {
		b.errs = multierror.Append(b.errs, err)
	}
}

func (b *batch) sortedRows() []export.ResultRow {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.rows))
	for k := range b.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]export.ResultRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.rows[k])
	}
	return out
}
