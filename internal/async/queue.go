package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock"
)

var (
	ErrQueueClosed = errors.New("queue is shutting down")
	ErrQueueFull   = errors.New("queue is full")
)

// Verifier runs a single attempt.
type Verifier interface {
	Verify(ctx context.Context, doc extract.Document) (verdict.Result, error)
}

// Job is one submitted attempt.
type Job struct {
	AttemptID   uuid.UUID
	Owner       string
	Session     session.Session
	Document    extract.Document
	SubmittedAt time.Time
}

// Queue runs attempts on a worker pool. Each owner has at most one current
// attempt; a newer submission or a Clear supersedes it, and the superseded
// attempt's result is discarded when it lands.
type Queue struct {
	verifier Verifier
	store    ResultStore
	logger   *slog.Logger
	clock    clock.Clock
	workers  int
	timeout  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	closed  bool
	current map[string]attemptRef
}

type attemptRef struct {
	id          uuid.UUID
	submittedAt time.Time
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(q *Queue) {
		if clk != nil {
			q.clock = clk
		}
	}
}

func NewQueue(v Verifier, store ResultStore, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		verifier: v,
		store:    store,
		logger:   logger,
		clock:    clock.WallClock,
		workers:  4,
		timeout:  2 * time.Minute,
		ch:       make(chan Job, 128),
		current:  make(map[string]attemptRef),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) process(workerID int, job Job) {
	if !q.isCurrent(job) {
		q.logger.Info("skipping superseded attempt", "worker_id", workerID, "attempt_id", job.AttemptID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	ctx = session.WithSession(ctx, job.Session)
	ctx = common.WithAttemptID(ctx, job.AttemptID.String())
	res, err := q.verifier.Verify(ctx, job.Document)
	cancel()

	done := q.clock.Now().UTC()
	out := Outcome{AttemptID: job.AttemptID, SubmittedAt: job.SubmittedAt, CompletedAt: &done}
	if err != nil {
		out.State = Failed
		out.Error = err.Error()
		out.Message = pipeline.Notice(err)
	} else {
		out.State = Done
		out.Result = &res
		out.Message = res.Message()
	}

	if q.isCurrent(job) {
		q.put(out)
		// a supersede racing the write above may have landed first
		if q.isCurrent(job) {
			return
		}
	}
	q.logger.Info("discarding superseded result", "worker_id", workerID, "attempt_id", job.AttemptID)
	q.put(discarded(job.AttemptID, job.SubmittedAt))
}

func (q *Queue) isCurrent(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current[job.Owner].id == job.AttemptID
}

func discarded(id uuid.UUID, submitted time.Time) Outcome {
	return Outcome{AttemptID: id, State: Discarded, SubmittedAt: submitted}
}

// put writes to the store. It must not be called with q.mu held.
func (q *Queue) put(o Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.Put(ctx, o); err != nil {
		q.logger.Error("failed to store attempt outcome", "attempt_id", o.AttemptID, "state", o.State, "error", err)
	}
}

// Submit queues doc as owner's current attempt and returns its ID.
func (q *Queue) Submit(_ context.Context, owner string, sess session.Session, doc extract.Document) (uuid.UUID, error) {
	job := Job{
		AttemptID:   uuid.New(),
		Owner:       owner,
		Session:     sess,
		Document:    doc,
		SubmittedAt: q.clock.Now().UTC(),
	}
	// pending is stored before a worker can see the job
	q.put(Outcome{AttemptID: job.AttemptID, State: Pending, SubmittedAt: job.SubmittedAt})

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "owner", owner)
		q.put(discarded(job.AttemptID, job.SubmittedAt))
		return uuid.Nil, ErrQueueClosed
	}
	select {
	case q.ch <- job:
	default:
		q.mu.Unlock()
		q.logger.Warn("queue full, rejecting attempt", "owner", owner)
		q.put(discarded(job.AttemptID, job.SubmittedAt))
		return uuid.Nil, ErrQueueFull
	}
	prev, hadPrev := q.supersedeLocked(owner)
	q.current[owner] = attemptRef{id: job.AttemptID, submittedAt: job.SubmittedAt}
	q.mu.Unlock()

	if hadPrev {
		q.discard(owner, prev)
	}
	q.logger.Info("queued attempt", "attempt_id", job.AttemptID, "owner", owner, "name", doc.Name)
	return job.AttemptID, nil
}

// Clear abandons owner's current attempt, if any.
func (q *Queue) Clear(owner string) {
	q.mu.Lock()
	prev, ok := q.supersedeLocked(owner)
	q.mu.Unlock()
	if ok {
		q.discard(owner, prev)
	}
}

// supersedeLocked drops owner's current attempt; callers hold q.mu and
// record the discard with q.discard once it is released.
func (q *Queue) supersedeLocked(owner string) (attemptRef, bool) {
	prev, ok := q.current[owner]
	if ok {
		delete(q.current, owner)
	}
	return prev, ok
}

func (q *Queue) discard(owner string, prev attemptRef) {
	q.put(discarded(prev.id, prev.submittedAt))
	q.logger.Info("attempt superseded", "attempt_id", prev.id, "owner", owner)
}

// Current returns owner's current attempt.
func (q *Queue) Current(owner string) (uuid.UUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ref, ok := q.current[owner]
	return ref.id, ok
}

// Get returns the outcome of an attempt.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (Outcome, error) {
	return q.store.Get(ctx, id)
}

// BindSessions clears a subject's attempt when its session ends or changes
// to another subject. Release the subscription on shutdown.
func (q *Queue) BindSessions(store *session.Store) *session.Subscription {
	return store.Subscribe(func(ch session.Change) {
		if ch.Previous == nil {
			return
		}
		if ch.Current != nil && ch.Current.Subject == ch.Previous.Subject {
			return
		}
		q.Clear(ch.Previous.Subject)
	})
}

func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
