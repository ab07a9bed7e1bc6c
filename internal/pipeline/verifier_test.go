package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/constants"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/metrics"
	"github.com/joseph-ayodele/certificate-verifier/internal/repository"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(VerifierTestSuite))

func Test(t *testing.T) {
	gc.TestingT(t)
}

const scenarioA = "Student Name: Amit Shah Roll No: JH2022CS0099 Course: B.Tech Program Name: CSE " +
	"University: XYZ University Year: 2022 Grade: A+ Certificate No: XYZ-2022-0099"

// textRecognizer treats image bytes as already-recognized text.
type textRecognizer struct{ calls int }

func (r *textRecognizer) Recognize(_ context.Context, img []byte) (string, error) {
	r.calls++
	if string(img) == "corrupt" {
		return "", common.RecognitionError(errors.New("cannot decode"))
	}
	return string(img), nil
}

type noRasterizer struct{}

func (noRasterizer) Open(context.Context, []byte) (extract.PageSource, error) {
	return nil, common.DecodeError(errors.New("not a pdf"))
}

type VerifierTestSuite struct {
	clock    *testclock.Clock
	sessions *session.Store
	rec      *textRecognizer
	db       *repository.DB
	journal  repository.AttemptRepository
	verifier *Verifier
}

func (s *VerifierTestSuite) SetUpTest(c *gc.C) {
	s.clock = testclock.NewClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s.sessions = session.NewStore(s.clock)
	s.sessions.Set(session.Session{Subject: "alice"})
	s.rec = &textRecognizer{}

	db, err := repository.Open(context.Background(), repository.Config{Driver: "sqlite", DSN: ":memory:"}, nil)
	c.Assert(err, gc.IsNil)
	c.Assert(db.Migrate(context.Background()), gc.IsNil)
	s.db = db
	s.journal = repository.NewAttemptRepository(db, s.clock, nil)

	orch := extract.NewOrchestrator(noRasterizer{}, s.rec, nil)
	s.verifier = NewVerifier(s.sessions, orch, nil,
		WithClock(s.clock),
		WithJournal(s.journal),
		WithMetrics(metrics.New(nil)),
	)
}

func (s *VerifierTestSuite) TearDownTest(c *gc.C) {
	c.Assert(s.db.Close(), gc.IsNil)
}

func (s *VerifierTestSuite) journaled(c *gc.C) []repository.Attempt {
	from := s.clock.Now().Add(-time.Hour)
	out, err := s.journal.List(context.Background(), from, from.Add(2*time.Hour))
	c.Assert(err, gc.IsNil)
	return out
}

func (s *VerifierTestSuite) TestFullCertificateIsVerified(c *gc.C) {
	doc := extract.NewDocument("cert.png", "image/png", []byte(scenarioA))

	res, err := s.verifier.Verify(context.Background(), doc)
	c.Assert(err, gc.IsNil)
	c.Assert(res.Confidence, gc.Equals, 100)
	c.Assert(res.Status, gc.Equals, verdict.Verified)
	c.Assert(res.Checks, gc.Equals, verdict.Checks{FormatValidation: true, SealAuthenticity: true, DatabaseMatch: true, Tampering: true})
	c.Assert(res.ExtractedData.CertificateNumber, gc.Equals, "XYZ-2022-0099")
	c.Assert(res.Timestamp.Equal(s.clock.Now()), gc.Equals, true)

	rows := s.journaled(c)
	c.Assert(rows, gc.HasLen, 1)
	c.Assert(rows[0].Status, gc.Equals, constants.AttemptStatusOK)
	c.Assert(rows[0].Verdict, gc.Equals, "verified")
	c.Assert(*rows[0].Confidence, gc.Equals, 100)
	c.Assert(rows[0].Pages, gc.Equals, 1)
	c.Assert(rows[0].ContentHash, gc.HasLen, 64)
}

func (s *VerifierTestSuite) TestSingleFieldIsInvalid(c *gc.C) {
	res, err := s.verifier.Verify(context.Background(), extract.NewDocument("n.jpg", "image/jpeg", []byte("Name: John Doe")))
	c.Assert(err, gc.IsNil)
	c.Assert(res.Confidence, gc.Equals, 15)
	c.Assert(res.Status, gc.Equals, verdict.Invalid)
	c.Assert(res.Checks, gc.Equals, verdict.Checks{})
	c.Assert(res.ExtractedData.StudentName, gc.Equals, "John Doe")
}

func (s *VerifierTestSuite) TestUnsupportedMediaProducesNoResult(c *gc.C) {
	res, err := s.verifier.Verify(context.Background(), extract.NewDocument("notes.txt", "text/plain", []byte("Name: John Doe")))
	c.Assert(errors.Is(err, common.ErrUnsupportedMedia), gc.Equals, true)
	c.Assert(res, gc.DeepEquals, verdict.Result{})
	c.Assert(s.rec.calls, gc.Equals, 0)

	rows := s.journaled(c)
	c.Assert(rows, gc.HasLen, 1)
	c.Assert(rows[0].Status, gc.Equals, constants.AttemptStatusFailed)
	c.Assert(rows[0].Confidence, gc.IsNil)
}

func (s *VerifierTestSuite) TestErrorsReachTheBoundaryUnchanged(c *gc.C) {
	_, err := s.verifier.Verify(context.Background(), extract.NewDocument("c.png", "image/png", []byte("corrupt")))
	c.Assert(errors.Is(err, common.ErrRecognition), gc.Equals, true)

	_, err = s.verifier.Verify(context.Background(), extract.NewDocument("c.pdf", "application/pdf", []byte("%PDF")))
	c.Assert(errors.Is(err, common.ErrDecode), gc.Equals, true)
}

func (s *VerifierTestSuite) TestNoSessionRefusesBeforeOCR(c *gc.C) {
	s.sessions.Clear()

	_, err := s.verifier.Verify(context.Background(), extract.NewDocument("cert.png", "image/png", []byte(scenarioA)))
	c.Assert(errors.Is(err, common.ErrUnauthenticated), gc.Equals, true)
	c.Assert(err, gc.ErrorMatches, ".*Please login to verify certificates.*")
	c.Assert(s.rec.calls, gc.Equals, 0)
	c.Assert(s.journaled(c), gc.HasLen, 0)
}

func (s *VerifierTestSuite) TestMissingDocument(c *gc.C) {
	_, err := s.verifier.Verify(context.Background(), extract.NewDocument("", "", nil))
	c.Assert(errors.Is(err, common.ErrInvalidInput), gc.Equals, true)
	c.Assert(err, gc.ErrorMatches, ".*Please upload a certificate first.*")
}

func (s *VerifierTestSuite) TestAttemptIDFromContextIsJournaled(c *gc.C) {
	id := "7b0d5f0e-7c3e-4a55-9d32-1f1c1b0d6a11"
	ctx := common.WithAttemptID(context.Background(), id)

	_, err := s.verifier.Verify(ctx, extract.NewDocument("cert.png", "image/png", []byte(scenarioA)))
	c.Assert(err, gc.IsNil)

	rows := s.journaled(c)
	c.Assert(rows, gc.HasLen, 1)
	c.Assert(rows[0].ID.String(), gc.Equals, id)
}

func (s *VerifierTestSuite) TestRequestScopedSessions(c *gc.C) {
	v := NewVerifier(session.RequestProvider{Clock: s.clock}, extract.NewOrchestrator(noRasterizer{}, s.rec, nil), nil, WithClock(s.clock))

	_, err := v.Verify(context.Background(), extract.NewDocument("cert.png", "image/png", []byte(scenarioA)))
	c.Assert(errors.Is(err, common.ErrUnauthenticated), gc.Equals, true)

	ctx := session.WithSession(context.Background(), session.Session{Subject: "bob"})
	res, err := v.Verify(ctx, extract.NewDocument("cert.png", "image/png", []byte(scenarioA)))
	c.Assert(err, gc.IsNil)
	c.Assert(res.Status, gc.Equals, verdict.Verified)
}

func (s *VerifierTestSuite) TestNotice(c *gc.C) {
	c.Assert(Notice(common.UnauthenticatedError()), gc.Equals, "Please login to verify certificates")
	c.Assert(Notice(common.MissingDocumentError()), gc.Equals, "Please upload a certificate first")
	c.Assert(Notice(common.DecodeError(errors.New("x"))), gc.Equals, "OCR or verification failed. Please try again.")
	c.Assert(Notice(context.DeadlineExceeded), gc.Equals, "OCR or verification failed. Please try again.")
}
