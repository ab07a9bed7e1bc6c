// Package pipeline runs one verification attempt end to end: session gate,
// text extraction, field parsing, scoring and verdict.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/fields"
	"github.com/joseph-ayodele/certificate-verifier/internal/metrics"
	"github.com/joseph-ayodele/certificate-verifier/internal/repository"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock"
)

// TextExtractor turns a document into page-ordered text.
type TextExtractor interface {
	Extract(ctx context.Context, doc extract.Document) (extract.DocumentText, error)
}

// Verifier is the attempt boundary. It is the only layer that reports a
// failed attempt; lower layers return their errors unchanged.
type Verifier struct {
	sessions  session.Provider
	extractor TextExtractor
	results   *verdict.Builder
	journal   repository.AttemptRepository
	metrics   *metrics.Metrics
	clock     clock.Clock
	logger    *slog.Logger
}

type Option func(*Verifier)

// WithJournal records every attempt in repo.
func WithJournal(repo repository.AttemptRepository) Option {
	return func(v *Verifier) { v.journal = repo }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock sets the clock used for result timestamps and latencies.
func WithClock(clk clock.Clock) Option {
	return func(v *Verifier) {
		if clk != nil {
			v.clock = clk
		}
	}
}

func NewVerifier(sessions session.Provider, extractor TextExtractor, logger *slog.Logger, opts ...Option) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Verifier{
		sessions:  sessions,
		extractor: extractor,
		clock:     clock.WallClock,
		logger:    logger,
	}
	for _, o := range opts {
		o(v)
	}
	v.results = verdict.NewBuilder(v.clock)
	return v
}

// Verify runs one attempt over doc. Either a complete result is returned or
// the attempt fails with no partial result.
func (v *Verifier) Verify(ctx context.Context, doc extract.Document) (verdict.Result, error) {
	start := v.clock.Now()

	sess, ok := v.sessions.Current(ctx)
	if !ok {
		err := common.UnauthenticatedError()
		v.logger.Warn("verification refused", "reason", "no session")
		v.metrics.ObserveFailure(err, v.clock.Now().Sub(start))
		return verdict.Result{}, err
	}
	if len(doc.Data) == 0 {
		err := common.MissingDocumentError()
		v.logger.Warn("verification refused", "reason", "no document", "subject", sess.Subject)
		return verdict.Result{}, err
	}

	id := attemptID(ctx)
	log := v.logger.With("attempt_id", id, "subject", sess.Subject, "name", doc.Name, "media_kind", doc.Kind)
	v.journalStart(ctx, log, id, doc)

	text, err := v.extractor.Extract(ctx, doc)
	if err != nil {
		v.fail(ctx, log, id, err, start)
		return verdict.Result{}, err
	}

	rec := fields.Parse(text.Text())
	res := v.results.Build(rec)

	elapsed := v.clock.Now().Sub(start)
	log.Info("certificate verified",
		"status", res.Status,
		"confidence", res.Confidence,
		"resolved_fields", rec.Resolved(),
		"pages", len(text.Pages),
		"duration_ms", elapsed.Milliseconds(),
	)
	v.metrics.ObserveSuccess(string(res.Status), elapsed)
	if v.journal != nil {
		if jerr := v.journal.FinishSuccess(ctx, id, string(res.Status), res.Confidence, len(text.Pages)); jerr != nil {
			log.Warn("journal finish failed", "error", jerr)
		}
	}
	return res, nil
}

func (v *Verifier) fail(ctx context.Context, log *slog.Logger, id uuid.UUID, err error, start time.Time) {
	elapsed := v.clock.Now().Sub(start)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn("verification abandoned", "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		log.Error("verification failed", "reason", metrics.Reason(err), "error", err, "duration_ms", elapsed.Milliseconds())
	}
	v.metrics.ObserveFailure(err, elapsed)
	if v.journal != nil {
		// the attempt context may already be done
		jctx := context.WithoutCancel(ctx)
		if jerr := v.journal.FinishFailure(jctx, id, err.Error()); jerr != nil {
			log.Warn("journal finish failed", "error", jerr)
		}
	}
}

func (v *Verifier) journalStart(ctx context.Context, log *slog.Logger, id uuid.UUID, doc extract.Document) {
	if v.journal == nil {
		return
	}
	sum := sha256.Sum256(doc.Data)
	_, err := v.journal.Start(ctx, repository.NewAttempt{
		ID:          id,
		Filename:    doc.Name,
		MediaKind:   doc.Kind,
		ContentHash: hex.EncodeToString(sum[:]),
	})
	if err != nil {
		log.Warn("journal start failed", "error", err)
	}
}

func attemptID(ctx context.Context) uuid.UUID {
	if s := common.AttemptIDFromContext(ctx); s != "" {
		if id, err := uuid.Parse(s); err == nil {
			return id
		}
	}
	return uuid.New()
}

// Notice is the user-facing message for a failed attempt.
func Notice(err error) string {
	var appErr *common.AppError
	switch {
	case errors.Is(err, common.ErrUnauthenticated), errors.Is(err, common.ErrInvalidInput):
		if errors.As(err, &appErr) {
			return appErr.Message
		}
	}
	return verdict.FailureMessage
}
