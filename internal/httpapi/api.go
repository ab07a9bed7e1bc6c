package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/async"
	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verifier runs one synchronous attempt.
type Verifier interface {
	Verify(ctx context.Context, doc extract.Document) (verdict.Result, error)
}

// Attempts is the async attempt queue.
type Attempts interface {
	Submit(ctx context.Context, owner string, sess session.Session, doc extract.Document) (uuid.UUID, error)
	Clear(owner string)
	Current(owner string) (uuid.UUID, bool)
	Get(ctx context.Context, id uuid.UUID) (async.Outcome, error)
}

// Exporter renders journaled attempts as XLSX.
type Exporter interface {
	ExportAttemptsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) bool

type Config struct {
	Issuer          string
	SigningKey      string
	AccessTTL       time.Duration
	DevSessions     bool
	MaxUploadBytes  int64
	RateLimitPerMin int
}

// Deps are the collaborators behind the routes. Attempts and Exporter may be
// nil; their routes then answer 503.
type Deps struct {
	Verifier Verifier
	Attempts Attempts
	Exporter Exporter
	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
	Clock    clock.Clock
}

type API struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	return &API{cfg: cfg, deps: deps, logger: logger}
}

// Router builds the gin engine serving every route.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.requestLogger())
	r.Use(securityHeaders())
	if a.cfg.RateLimitPerMin > 0 {
		r.Use(NewTokenBucket(a.cfg.RateLimitPerMin, a.cfg.RateLimitPerMin, a.deps.Clock).Middleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.deps.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", a.health)
	r.POST("/v1/sessions", a.createSession)

	v1 := r.Group("/v1", auth.RequireSession(a.cfg.SigningKey, a.cfg.Issuer))
	v1.POST("/verify", a.verify)
	v1.POST("/attempts", a.submitAttempt)
	v1.GET("/attempts/export", a.exportAttempts)
	v1.GET("/attempts/current", a.currentAttempt)
	v1.DELETE("/attempts/current", a.clearAttempt)
	v1.GET("/attempts/:id", a.getAttempt)
	return r
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := a.deps.Clock.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))
		c.Next()

		path := c.FullPath()
		if path == "/healthz" || path == "/metrics" {
			return
		}
		a.logger.Info("http request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", a.deps.Clock.Now().Sub(start).Milliseconds(),
		)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func (a *API) health(c *gin.Context) {
	code := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range a.deps.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			code = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(code, body)
}
