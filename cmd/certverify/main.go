package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/clock"

	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/ocr"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

func main() {
	var (
		mediaType = flag.String("type", "", "media type override (default: from extension / content)")
		timeout   = flag.Duration("timeout", 0, "attempt timeout (default PROCESS_TIMEOUT)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage", "cmd", "certverify [-type media/type] <certificate-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	if *timeout <= 0 {
		*timeout = cfg.Queue.ProcessTimeout
	}

	sess, err := auth.LocalSession(os.Getenv("CERTVERIFY_TOKEN"), cfg.Auth.SigningKey, cfg.Auth.Issuer,
		cfg.Auth.DevSessions, cfg.Auth.AccessTTL, clock.WallClock.Now())
	if err != nil {
		fail(logger, err)
	}
	sessions := session.NewStore(clock.WallClock)
	sessions.Set(sess)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	doc := extract.SniffDocument(filepath.Base(path), *mediaType, data)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	extractor := pipeline.NewOCRExtractor(ocr.ConfigFromSettings(cfg.OCR), nil, logger)
	verifier := pipeline.NewVerifier(sessions, extractor, logger)
	res, err := verifier.Verify(ctx, doc)
	if err != nil {
		fail(logger, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
	logger.Info(res.Message(), "status", res.Status, "confidence", res.Confidence)
}

func fail(logger *slog.Logger, err error) {
	logger.Error("verification failed", "error", err)
	fmt.Fprintln(os.Stderr, pipeline.Notice(err))
	os.Exit(1)
}
