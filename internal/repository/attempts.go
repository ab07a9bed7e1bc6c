package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/constants"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/juju/clock"
)

const attemptsTable = "verification_attempts"

var attemptColumns = []string{
	"id", "filename", "media_kind", "content_hash", "status", "verdict",
	"confidence", "error_message", "pages", "started_at", "finished_at",
}

// Attempt is one journaled verification attempt. It records the lifecycle
// and verdict tier only; recognized text and extracted fields are never stored.
type Attempt struct {
	ID           uuid.UUID
	Filename     string
	MediaKind    constants.MediaKind
	ContentHash  string
	Status       constants.AttemptStatus
	Verdict      string
	Confidence   *int
	ErrorMessage string
	Pages        int
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// NewAttempt is the input to AttemptRepository.Start.
type NewAttempt struct {
	ID          uuid.UUID
	Filename    string
	MediaKind   constants.MediaKind
	ContentHash string
}

type AttemptRepository interface {
	Start(ctx context.Context, in NewAttempt) (*Attempt, error)
	FinishSuccess(ctx context.Context, id uuid.UUID, verdict string, confidence, pages int) error
	FinishFailure(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*Attempt, error)
	List(ctx context.Context, from, to time.Time) ([]Attempt, error)
}

type attemptRepo struct {
	db    *DB
	clock clock.Clock
	log   *slog.Logger
}

func NewAttemptRepository(db *DB, clk clock.Clock, log *slog.Logger) AttemptRepository {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = slog.Default()
	}
	return &attemptRepo{db: db, clock: clk, log: log}
}

func (r *attemptRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.dialect)
}

func (r *attemptRepo) now() time.Time {
	return r.clock.Now().UTC()
}

func (r *attemptRepo) Start(ctx context.Context, in NewAttempt) (*Attempt, error) {
	a := &Attempt{
		ID:          in.ID,
		Filename:    in.Filename,
		MediaKind:   in.MediaKind,
		ContentHash: in.ContentHash,
		Status:      constants.AttemptStatusRunning,
		StartedAt:   r.now(),
	}
	q, args := r.builder().Insert(attemptsTable).
		Columns("id", "filename", "media_kind", "content_hash", "status", "started_at").
		Values(a.ID.String(), a.Filename, string(a.MediaKind), a.ContentHash, string(a.Status), a.StartedAt).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("attempt start failed", "attempt_id", a.ID, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("attempt started", "attempt_id", a.ID, "media_kind", a.MediaKind)
	return a, nil
}

func (r *attemptRepo) FinishSuccess(ctx context.Context, id uuid.UUID, verdict string, confidence, pages int) error {
	q, args := r.builder().Update(attemptsTable).
		Set("status", string(constants.AttemptStatusOK)).
		Set("verdict", verdict).
		Set("confidence", confidence).
		Set("pages", pages).
		Set("finished_at", r.now()).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.exec1(ctx, q, args); err != nil {
		r.log.Error("attempt finish(OK) failed", "attempt_id", id, "err", err)
		return err
	}
	r.log.Info("attempt finished (OK)", "attempt_id", id, "verdict", verdict, "confidence", confidence)
	return nil
}

func (r *attemptRepo) FinishFailure(ctx context.Context, id uuid.UUID, message string) error {
	q, args := r.builder().Update(attemptsTable).
		Set("status", string(constants.AttemptStatusFailed)).
		Set("error_message", message).
		Set("finished_at", r.now()).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.exec1(ctx, q, args); err != nil {
		r.log.Error("attempt finish(FAILED) failed", "attempt_id", id, "err", err)
		return err
	}
	r.log.Warn("attempt finished (FAILED)", "attempt_id", id, "error", message)
	return nil
}

// exec1 runs an update that must touch exactly one row.
func (r *attemptRepo) exec1(ctx context.Context, q string, args []any) error {
	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *attemptRepo) Get(ctx context.Context, id uuid.UUID) (*Attempt, error) {
	b := r.builder()
	q, args := b.Select(attemptColumns...).
		From(b.Table(attemptsTable)).
		Where(entsql.EQ("id", id.String())).
		Query()
	out, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.ErrNotFound
	}
	return &out[0], nil
}

// List returns attempts started in [from, to), oldest first.
func (r *attemptRepo) List(ctx context.Context, from, to time.Time) ([]Attempt, error) {
	b := r.builder()
	q, args := b.Select(attemptColumns...).
		From(b.Table(attemptsTable)).
		Where(entsql.And(
			entsql.GTE("started_at", from.UTC()),
			entsql.LT("started_at", to.UTC()),
		)).
		OrderBy("started_at", "id").
		Query()
	out, err := r.query(ctx, q, args)
	if err != nil {
		r.log.Error("attempt list failed", "from", from, "to", to, "err", err)
		return nil, err
	}
	return out, nil
}

func (r *attemptRepo) query(ctx context.Context, q string, args []any) ([]Attempt, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			id, mediaKind, status string
			a                     Attempt
			verdict, errMsg       sql.NullString
			confidence, pages     sql.NullInt64
			finished              sql.NullTime
		)
		if err := rows.Scan(&id, &a.Filename, &mediaKind, &a.ContentHash, &status, &verdict,
			&confidence, &errMsg, &pages, &a.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("%w: bad attempt id %q", common.ErrDatabase, id)
		}
		a.ID = parsed
		a.MediaKind = constants.MediaKind(mediaKind)
		a.Status = constants.AttemptStatus(status)
		a.Verdict = verdict.String
		a.ErrorMessage = errMsg.String
		a.Pages = int(pages.Int64)
		a.StartedAt = a.StartedAt.UTC()
		if confidence.Valid {
			c := int(confidence.Int64)
			a.Confidence = &c
		}
		if finished.Valid {
			t := finished.Time.UTC()
			a.FinishedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}
