package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/constants"
	"github.com/joseph-ayodele/certificate-verifier/internal/async"
	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/fields"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock/testclock"
	"github.com/prometheus/client_golang/prometheus"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(APITestSuite))

func Test(t *testing.T) {
	gc.TestingT(t)
}

const (
	testKey    = "test-signing-key"
	testIssuer = "certverify"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeVerifier struct {
	mu   sync.Mutex
	docs []extract.Document
	res  verdict.Result
	err  error
}

func (f *fakeVerifier) Verify(_ context.Context, doc extract.Document) (verdict.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return f.res, f.err
}

type fakeAttempts struct {
	mu       sync.Mutex
	current  map[string]uuid.UUID
	outcomes map[uuid.UUID]async.Outcome
	err      error
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{current: map[string]uuid.UUID{}, outcomes: map[uuid.UUID]async.Outcome{}}
}

func (f *fakeAttempts) Submit(_ context.Context, owner string, _ session.Session, _ extract.Document) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.New()
	f.current[owner] = id
	f.outcomes[id] = async.Outcome{AttemptID: id, State: async.Pending}
	return id, nil
}

func (f *fakeAttempts) Clear(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.current, owner)
}

func (f *fakeAttempts) Current(owner string) (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.current[owner]
	return id, ok
}

func (f *fakeAttempts) Get(_ context.Context, id uuid.UUID) (async.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.outcomes[id]
	if !ok {
		return async.Outcome{}, common.ErrNotFound
	}
	return o, nil
}

type fakeExporter struct {
	from, to *time.Time
}

func (f *fakeExporter) ExportAttemptsXLSX(_ context.Context, from, to *time.Time) ([]byte, error) {
	f.from, f.to = from, to
	return []byte("PK-xlsx"), nil
}

type APITestSuite struct {
	clock    *testclock.Clock
	verifier *fakeVerifier
	attempts *fakeAttempts
	exporter *fakeExporter
	cfg      Config
	deps     Deps
}

func (s *APITestSuite) SetUpSuite(c *gc.C) {
	gin.SetMode(gin.TestMode)
}

func (s *APITestSuite) SetUpTest(c *gc.C) {
	s.clock = testclock.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	rec := fields.NewRecord()
	rec.StudentName = "Jane Doe"
	s.verifier = &fakeVerifier{res: verdict.NewBuilder(s.clock).Build(rec)}
	s.attempts = newFakeAttempts()
	s.exporter = &fakeExporter{}
	s.cfg = Config{
		Issuer:         testIssuer,
		SigningKey:     testKey,
		AccessTTL:      time.Hour,
		MaxUploadBytes: constants.MaxUploadBytes,
	}
	s.deps = Deps{
		Verifier: s.verifier,
		Attempts: s.attempts,
		Exporter: s.exporter,
		Gatherer: prometheus.NewRegistry(),
		Clock:    s.clock,
	}
}

func (s *APITestSuite) router() *gin.Engine {
	return New(s.cfg, s.deps, nil).Router()
}

func bearer(c *gc.C, subject string) string {
	tok, err := auth.Issue(subject, "verifier", testIssuer, testKey, time.Hour)
	c.Assert(err, gc.IsNil)
	return "Bearer " + tok.AccessToken
}

func upload(c *gc.C, name string, data []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if name != "" {
		fw, err := w.CreateFormFile("file", name)
		c.Assert(err, gc.IsNil)
		_, err = fw.Write(data)
		c.Assert(err, gc.IsNil)
	} else {
		c.Assert(w.WriteField("note", "nothing attached"), gc.IsNil)
	}
	c.Assert(w.Close(), gc.IsNil)
	return &buf, w.FormDataContentType()
}

func (s *APITestSuite) do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) postFile(c *gc.C, r http.Handler, path, authz, name string, data []byte) *httptest.ResponseRecorder {
	body, ct := upload(c, name, data)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return s.do(r, req)
}

func decode(c *gc.C, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	c.Assert(json.Unmarshal(w.Body.Bytes(), &out), gc.IsNil)
	return out
}

func (s *APITestSuite) TestHealthz(c *gc.C) {
	w := s.do(s.router(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	c.Assert(w.Code, gc.Equals, http.StatusOK)

	s.deps.Health = map[string]HealthCheck{
		"redis": func(context.Context) bool { return false },
	}
	w = s.do(s.router(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	c.Assert(w.Code, gc.Equals, http.StatusServiceUnavailable)
	c.Assert(decode(c, w)["redis"], gc.Equals, false)
}

func (s *APITestSuite) TestMetricsEndpoint(c *gc.C) {
	w := s.do(s.router(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	c.Assert(w.Code, gc.Equals, http.StatusOK)
}

func (s *APITestSuite) TestVerifyRequiresSession(c *gc.C) {
	w := s.postFile(c, s.router(), "/v1/verify", "", "cert.png", pngMagic)
	c.Assert(w.Code, gc.Equals, http.StatusUnauthorized)
	c.Assert(decode(c, w)["error"], gc.Equals, "Please login to verify certificates")
	c.Assert(s.verifier.docs, gc.HasLen, 0)
}

func (s *APITestSuite) TestVerifyImage(c *gc.C) {
	w := s.postFile(c, s.router(), "/v1/verify", bearer(c, "alice"), "cert.png", pngMagic)
	c.Assert(w.Code, gc.Equals, http.StatusOK)

	body := decode(c, w)
	c.Assert(body["message"], gc.Equals, "Certificate seems invalid")
	result := body["result"].(map[string]any)
	c.Assert(result["status"], gc.Equals, "invalid")
	c.Assert(result["confidence"], gc.Equals, float64(15))
	c.Assert(result["timestamp"], gc.Equals, "2024-05-01T09:00:00.000Z")

	c.Assert(s.verifier.docs, gc.HasLen, 1)
	doc := s.verifier.docs[0]
	c.Assert(doc.Name, gc.Equals, "cert.png")
	c.Assert(doc.MediaType, gc.Equals, "image/png")
	c.Assert(doc.Kind, gc.Equals, constants.IMAGE)
}

func (s *APITestSuite) TestVerifyWithoutFile(c *gc.C) {
	w := s.postFile(c, s.router(), "/v1/verify", bearer(c, "alice"), "", nil)
	c.Assert(w.Code, gc.Equals, http.StatusBadRequest)
	c.Assert(decode(c, w)["error"], gc.Equals, "Please upload a certificate first")
	c.Assert(s.verifier.docs, gc.HasLen, 0)
}

func (s *APITestSuite) TestVerifyFailureMapsStatus(c *gc.C) {
	s.verifier.err = common.UnsupportedMediaError("text/plain")
	w := s.postFile(c, s.router(), "/v1/verify", bearer(c, "alice"), "notes.txt", []byte("hello"))
	c.Assert(w.Code, gc.Equals, http.StatusUnsupportedMediaType)
	body := decode(c, w)
	c.Assert(body["error"], gc.Equals, verdict.FailureMessage)
	c.Assert(body["code"], gc.Equals, common.CodeUnsupportedMedia)

	s.verifier.err = common.DecodeError(nil)
	w = s.postFile(c, s.router(), "/v1/verify", bearer(c, "alice"), "cert.pdf", []byte("%PDF-broken"))
	c.Assert(w.Code, gc.Equals, http.StatusUnprocessableEntity)
}

func (s *APITestSuite) TestVerifyRejectsOversizedUpload(c *gc.C) {
	s.cfg.MaxUploadBytes = 16
	w := s.postFile(c, s.router(), "/v1/verify", bearer(c, "alice"), "cert.png", bytes.Repeat([]byte{1}, 64))
	c.Assert(w.Code, gc.Equals, http.StatusRequestEntityTooLarge)
	c.Assert(s.verifier.docs, gc.HasLen, 0)
}

func (s *APITestSuite) TestDevSessions(c *gc.C) {
	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"subject":"bob"}`))
		r.Header.Set("Content-Type", "application/json")
		return r
	}
	w := s.do(s.router(), req())
	c.Assert(w.Code, gc.Equals, http.StatusNotFound)

	s.cfg.DevSessions = true
	r := s.router()
	w = s.do(r, req())
	c.Assert(w.Code, gc.Equals, http.StatusCreated)
	tok, _ := decode(c, w)["access_token"].(string)
	c.Assert(tok, gc.Not(gc.Equals), "")

	w = s.postFile(c, r, "/v1/verify", "Bearer "+tok, "cert.png", pngMagic)
	c.Assert(w.Code, gc.Equals, http.StatusOK)
}

func (s *APITestSuite) TestAttemptLifecycle(c *gc.C) {
	r := s.router()
	authz := bearer(c, "alice")

	w := s.postFile(c, r, "/v1/attempts", authz, "cert.png", pngMagic)
	c.Assert(w.Code, gc.Equals, http.StatusAccepted)
	id, err := uuid.Parse(decode(c, w)["attemptId"].(string))
	c.Assert(err, gc.IsNil)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", authz)
		return s.do(r, req)
	}

	w = get("/v1/attempts/" + id.String())
	c.Assert(w.Code, gc.Equals, http.StatusOK)
	c.Assert(decode(c, w)["state"], gc.Equals, string(async.Pending))

	w = get("/v1/attempts/current")
	c.Assert(w.Code, gc.Equals, http.StatusOK)
	c.Assert(decode(c, w)["attemptId"], gc.Equals, id.String())

	w = get("/v1/attempts/not-a-uuid")
	c.Assert(w.Code, gc.Equals, http.StatusBadRequest)

	w = get("/v1/attempts/" + uuid.NewString())
	c.Assert(w.Code, gc.Equals, http.StatusNotFound)

	del := httptest.NewRequest(http.MethodDelete, "/v1/attempts/current", nil)
	del.Header.Set("Authorization", authz)
	w = s.do(r, del)
	c.Assert(w.Code, gc.Equals, http.StatusNoContent)
	_, ok := s.attempts.Current("alice")
	c.Assert(ok, gc.Equals, false)

	w = get("/v1/attempts/current")
	c.Assert(w.Code, gc.Equals, http.StatusNotFound)
}

func (s *APITestSuite) TestSubmitWhenQueueFull(c *gc.C) {
	s.attempts.err = async.ErrQueueFull
	w := s.postFile(c, s.router(), "/v1/attempts", bearer(c, "alice"), "cert.png", pngMagic)
	c.Assert(w.Code, gc.Equals, http.StatusServiceUnavailable)
}

func (s *APITestSuite) TestExport(c *gc.C) {
	authz := bearer(c, "alice")
	req := httptest.NewRequest(http.MethodGet, "/v1/attempts/export?from=2024-04-01&to=2024-04-30", nil)
	req.Header.Set("Authorization", authz)
	w := s.do(s.router(), req)
	c.Assert(w.Code, gc.Equals, http.StatusOK)
	c.Assert(w.Header().Get("Content-Type"), gc.Equals, xlsxContentType)
	c.Assert(w.Body.String(), gc.Equals, "PK-xlsx")
	c.Assert(s.exporter.from.Format("2006-01-02"), gc.Equals, "2024-04-01")
	c.Assert(s.exporter.to.Format("2006-01-02"), gc.Equals, "2024-04-30")

	req = httptest.NewRequest(http.MethodGet, "/v1/attempts/export?from=yesterday", nil)
	req.Header.Set("Authorization", authz)
	w = s.do(s.router(), req)
	c.Assert(w.Code, gc.Equals, http.StatusBadRequest)

	s.deps.Exporter = nil
	req = httptest.NewRequest(http.MethodGet, "/v1/attempts/export", nil)
	req.Header.Set("Authorization", authz)
	w = s.do(s.router(), req)
	c.Assert(w.Code, gc.Equals, http.StatusServiceUnavailable)
}

func (s *APITestSuite) TestRateLimit(c *gc.C) {
	s.cfg.RateLimitPerMin = 2
	r := s.router()
	healthz := func() int {
		return s.do(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code
	}
	c.Assert(healthz(), gc.Equals, http.StatusOK)
	c.Assert(healthz(), gc.Equals, http.StatusOK)
	c.Assert(healthz(), gc.Equals, http.StatusTooManyRequests)

	s.clock.Advance(time.Minute)
	c.Assert(healthz(), gc.Equals, http.StatusOK)
}
