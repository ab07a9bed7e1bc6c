package async

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock"
)

type State string

const (
	Pending   State = "pending"
	Done      State = "done"
	Failed    State = "failed"
	Discarded State = "discarded"
)

// Outcome is the observable state of a submitted attempt.
type Outcome struct {
	AttemptID   uuid.UUID       `json:"attemptId"`
	State       State           `json:"state"`
	Result      *verdict.Result `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Message     string          `json:"message,omitempty"`
	SubmittedAt time.Time       `json:"submittedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// ResultStore keeps attempt outcomes for later retrieval.
type ResultStore interface {
	Put(ctx context.Context, o Outcome) error
	Get(ctx context.Context, id uuid.UUID) (Outcome, error)
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps outcomes in process, serialized the same way the redis
// store does so both go through the result schema on read.
type MemoryStore struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[uuid.UUID]memoryEntry
}

func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	if clk == nil {
		clk = clock.WallClock
	}
	return &MemoryStore{clock: clk, ttl: ttl, entries: make(map[uuid.UUID]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	e := memoryEntry{data: data}
	if s.ttl > 0 {
		e.expires = s.clock.Now().Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[o.AttemptID] = e
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (Outcome, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expired(e) {
		delete(s.entries, id)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return Outcome{}, common.ErrNotFound
	}
	return decodeOutcome(e.data)
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !s.clock.Now().Before(e.expires)
}

func (s *MemoryStore) evictLocked() {
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
		}
	}
}

type outcomeWire struct {
	Outcome
	Result json.RawMessage `json:"result,omitempty"`
}

// decodeOutcome reads a stored outcome, validating any embedded result
// against the result schema.
func decodeOutcome(data []byte) (Outcome, error) {
	var w outcomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Outcome{}, err
	}
	o := w.Outcome
	o.Result = nil
	if len(w.Result) > 0 && string(w.Result) != "null" {
		res, err := verdict.DecodeResult(w.Result)
		if err != nil {
			return Outcome{}, err
		}
		o.Result = &res
	}
	return o, nil
}
