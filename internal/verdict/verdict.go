// Package verdict turns a parsed certificate record into a confidence score,
// a status tier and the four derived checks.
package verdict

import (
	"encoding/json"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/internal/fields"
	"github.com/juju/clock"
)

type Status string

const (
	Verified   Status = "verified"
	Suspicious Status = "suspicious"
	Invalid    Status = "invalid"
)

// Statuses lists every status tier.
var Statuses = []Status{Verified, Suspicious, Invalid}

// Message is the user-facing notification for a finished verification.
func (s Status) Message() string {
	switch s {
	case Verified:
		return "Certificate verified successfully"
	case Suspicious:
		return "Certificate verification raised concerns"
	default:
		return "Certificate seems invalid"
	}
}

// FailureMessage is shown when an attempt fails before producing a result.
const FailureMessage = "OCR or verification failed. Please try again."

// PointsPerField is the confidence each resolved field contributes.
const PointsPerField = 15

// Checks are threshold flags derived from confidence alone.
type Checks struct {
	FormatValidation bool `json:"formatValidation"`
	SealAuthenticity bool `json:"sealAuthenticity"`
	DatabaseMatch    bool `json:"databaseMatch"`
	Tampering        bool `json:"tampering"`
}

// Score returns min(resolved*15, 100).
func Score(rec fields.Record) int {
	n := rec.Resolved() * PointsPerField
	if n > 100 {
		return 100
	}
	return n
}

// Derive maps a confidence to its status tier and checks. Thresholds are
// strict: 60 is suspicious and 40 is invalid.
func Derive(confidence int) (Status, Checks) {
	var st Status
	switch {
	case confidence > 60:
		st = Verified
	case confidence > 40:
		st = Suspicious
	default:
		st = Invalid
	}
	return st, Checks{
		FormatValidation: confidence > 50,
		SealAuthenticity: confidence > 60,
		DatabaseMatch:    confidence > 70,
		Tampering:        confidence > 80,
	}
}

// Result is the outcome of one verification attempt.
type Result struct {
	Status        Status
	Confidence    int
	ExtractedData fields.Record
	Checks        Checks
	Timestamp     time.Time
}

// Message is the notification text for r.
func (r Result) Message() string { return r.Status.Message() }

// Builder stamps results with the time of its clock.
type Builder struct {
	clock clock.Clock
}

func NewBuilder(clk clock.Clock) *Builder {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Builder{clock: clk}
}

// Build scores rec and derives the final result.
func (b *Builder) Build(rec fields.Record) Result {
	conf := Score(rec)
	st, checks := Derive(conf)
	return Result{
		Status:        st,
		Confidence:    conf,
		ExtractedData: rec,
		Checks:        checks,
		Timestamp:     b.clock.Now().UTC(),
	}
}

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

type resultJSON struct {
	Status        Status        `json:"status"`
	Confidence    int           `json:"confidence"`
	ExtractedData fields.Record `json:"extractedData"`
	Checks        Checks        `json:"checks"`
	Timestamp     string        `json:"timestamp"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Status:        r.Status,
		Confidence:    r.Confidence,
		ExtractedData: r.ExtractedData,
		Checks:        r.Checks,
		Timestamp:     r.Timestamp.UTC().Format(TimestampLayout),
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w resultJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return err
	}
	*r = Result{
		Status:        w.Status,
		Confidence:    w.Confidence,
		ExtractedData: w.ExtractedData,
		Checks:        w.Checks,
		Timestamp:     ts.UTC(),
	}
	return nil
}
