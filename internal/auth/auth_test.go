package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(AuthTestSuite))

func Test(t *testing.T) {
	gc.TestingT(t)
}

type AuthTestSuite struct{}

const (
	testKey    = "test-signing-key"
	testIssuer = "certverify"
)

func (s *AuthTestSuite) TestIssueAndParse(c *gc.C) {
	tok, err := Issue("alice", "verifier", testIssuer, testKey, time.Hour)
	c.Assert(err, gc.IsNil)

	claims, err := Parse(tok.AccessToken, testKey, testIssuer)
	c.Assert(err, gc.IsNil)
	c.Assert(claims.Subject, gc.Equals, "alice")
	c.Assert(claims.Role, gc.Equals, "verifier")

	sess := claims.Session()
	c.Assert(sess.Subject, gc.Equals, "alice")
	c.Assert(sess.ExpiresAt.Unix(), gc.Equals, tok.ExpiresAt.Unix())
}

func (s *AuthTestSuite) TestParseRejectsBadTokens(c *gc.C) {
	tok, err := Issue("alice", "verifier", testIssuer, testKey, time.Hour)
	c.Assert(err, gc.IsNil)

	_, err = Parse(tok.AccessToken, "other-key", testIssuer)
	c.Assert(err, gc.NotNil)

	_, err = Parse(tok.AccessToken, testKey, "someone-else")
	c.Assert(err, gc.ErrorMatches, "issuer mismatch")

	expired, err := Issue("alice", "verifier", testIssuer, testKey, -time.Minute)
	c.Assert(err, gc.IsNil)
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	c.Assert(err, gc.NotNil)
}

func (s *AuthTestSuite) TestSessionFromBearer(c *gc.C) {
	_, err := SessionFromBearer("", testKey, testIssuer)
	c.Assert(err, gc.Equals, errMissingBearer)
	_, err = SessionFromBearer("Basic abc", testKey, testIssuer)
	c.Assert(err, gc.Equals, errMissingBearer)

	tok, err := Issue("bob", "verifier", testIssuer, testKey, time.Hour)
	c.Assert(err, gc.IsNil)
	sess, err := SessionFromBearer("Bearer "+tok.AccessToken, testKey, testIssuer)
	c.Assert(err, gc.IsNil)
	c.Assert(sess.Subject, gc.Equals, "bob")
}

func (s *AuthTestSuite) TestRequireSessionMiddleware(c *gc.C) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireSession(testKey, testIssuer), func(ctx *gin.Context) {
		sess, ok := session.FromContext(ctx.Request.Context())
		if !ok {
			ctx.Status(http.StatusInternalServerError)
			return
		}
		ctx.String(http.StatusOK, sess.Subject)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	c.Assert(rec.Code, gc.Equals, http.StatusUnauthorized)
	c.Assert(rec.Body.String(), gc.Matches, `.*Please login to verify certificates.*`)

	tok, err := Issue("carol", "verifier", testIssuer, testKey, time.Hour)
	c.Assert(err, gc.IsNil)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	c.Assert(rec.Code, gc.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), gc.Equals, "carol")
}

func (s *AuthTestSuite) TestLocalSession(c *gc.C) {
	now := time.Now()
	tok, err := Issue("carol", "verifier", "certverify", "k", time.Hour)
	c.Assert(err, gc.IsNil)

	sess, err := LocalSession(tok.AccessToken, "k", "certverify", false, time.Hour, now)
	c.Assert(err, gc.IsNil)
	c.Assert(sess.Subject, gc.Equals, "carol")

	_, err = LocalSession("garbage", "k", "certverify", true, time.Hour, now)
	c.Assert(errors.Is(err, common.ErrUnauthenticated), gc.Equals, true)

	_, err = LocalSession("", "k", "certverify", false, time.Hour, now)
	c.Assert(errors.Is(err, common.ErrUnauthenticated), gc.Equals, true)

	sess, err = LocalSession("", "k", "certverify", true, time.Hour, now)
	c.Assert(err, gc.IsNil)
	c.Assert(sess.Subject, gc.Not(gc.Equals), "")
	c.Assert(sess.Expired(now), gc.Equals, false)
}
