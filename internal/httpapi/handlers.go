package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/certificate-verifier/internal/async"
	"github.com/joseph-ayodele/certificate-verifier/internal/auth"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/extract"
	"github.com/joseph-ayodele/certificate-verifier/internal/pipeline"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipart envelope allowance on top of the file limit
const multipartSlack = 1 << 20

var errUploadTooLarge = errors.New("upload too large")

func (a *API) verify(c *gin.Context) {
	doc, err := a.readDocument(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	res, err := a.deps.Verifier.Verify(c.Request.Context(), doc)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "message": res.Message()})
}

func (a *API) submitAttempt(c *gin.Context) {
	if a.deps.Attempts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async attempts are not enabled"})
		return
	}
	sess, _ := session.FromContext(c.Request.Context())
	doc, err := a.readDocument(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	id, err := a.deps.Attempts.Submit(c.Request.Context(), sess.Subject, sess, doc)
	if err != nil {
		if errors.Is(err, async.ErrQueueFull) || errors.Is(err, async.ErrQueueClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"attemptId": id, "state": async.Pending})
}

func (a *API) getAttempt(c *gin.Context) {
	if a.deps.Attempts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async attempts are not enabled"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attempt id must be a UUID"})
		return
	}
	a.writeOutcome(c, id)
}

func (a *API) currentAttempt(c *gin.Context) {
	if a.deps.Attempts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async attempts are not enabled"})
		return
	}
	sess, _ := session.FromContext(c.Request.Context())
	id, ok := a.deps.Attempts.Current(sess.Subject)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no current attempt"})
		return
	}
	a.writeOutcome(c, id)
}

func (a *API) writeOutcome(c *gin.Context, id uuid.UUID) {
	out, err := a.deps.Attempts.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
			return
		}
		a.logger.Error("attempt lookup failed", "attempt_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "attempt lookup failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) clearAttempt(c *gin.Context) {
	if a.deps.Attempts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async attempts are not enabled"})
		return
	}
	sess, _ := session.FromContext(c.Request.Context())
	a.deps.Attempts.Clear(sess.Subject)
	c.Status(http.StatusNoContent)
}

// exportAttempts serves the journal as XLSX. from/to are optional
// YYYY-MM-DD days, to inclusive.
func (a *API) exportAttempts(c *gin.Context) {
	if a.deps.Exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attempt journal is not configured"})
		return
	}
	from, err := parseDay(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}
	data, err := a.deps.Exporter.ExportAttemptsXLSX(c.Request.Context(), from, to)
	if err != nil {
		a.logger.Error("attempt export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	name := fmt.Sprintf("attempts_%s.xlsx", a.deps.Clock.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func parseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// createSession issues a development token. Disabled unless DevSessions is set.
func (a *API) createSession(c *gin.Context) {
	if !a.cfg.DevSessions {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req struct {
		Subject string `json:"subject" binding:"required"`
		Role    string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject is required"})
		return
	}
	if req.Role == "" {
		req.Role = "verifier"
	}
	tok, err := auth.Issue(req.Subject, req.Role, a.cfg.Issuer, a.cfg.SigningKey, a.cfg.AccessTTL)
	if err != nil {
		a.logger.Error("token issue failed", "subject", req.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token": tok.AccessToken,
		"expires_at":   tok.ExpiresAt.Unix(),
	})
}

// readDocument reads the multipart "file" field into a Document.
func (a *API) readDocument(c *gin.Context) (extract.Document, error) {
	limit := a.cfg.MaxUploadBytes
	if c.Request.ContentLength > limit+multipartSlack {
		return extract.Document{}, errUploadTooLarge
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartSlack)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return extract.Document{}, errUploadTooLarge
		}
		return extract.Document{}, common.MissingDocumentError()
	}
	if fh.Size > limit {
		return extract.Document{}, errUploadTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return extract.Document{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return extract.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return extract.Document{}, common.MissingDocumentError()
	}
	return extract.SniffDocument(fh.Filename, fh.Header.Get("Content-Type"), data), nil
}

func (a *API) fail(c *gin.Context, err error) {
	if errors.Is(err, errUploadTooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("file exceeds %d MB", a.cfg.MaxUploadBytes>>20),
		})
		return
	}
	body := gin.H{"error": pipeline.Notice(err)}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		body["code"] = appErr.Code
	}
	c.AbortWithStatusJSON(common.HTTPStatus(err), body)
}
