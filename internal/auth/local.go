package auth

import (
	"os/user"
	"time"

	"github.com/joseph-ayodele/certificate-verifier/internal/common"
	"github.com/joseph-ayodele/certificate-verifier/internal/session"
)

// LocalSession resolves the session for a command line run. A token wins;
// without one a dev session for the OS user is minted when allowed.
func LocalSession(token, key, issuer string, dev bool, ttl time.Duration, now time.Time) (session.Session, error) {
	if token != "" {
		claims, err := Parse(token, key, issuer)
		if err != nil {
			return session.Session{}, common.UnauthenticatedError()
		}
		return claims.Session(), nil
	}
	if !dev {
		return session.Session{}, common.UnauthenticatedError()
	}
	subject := "local"
	if u, err := user.Current(); err == nil && u.Username != "" {
		subject = u.Username
	}
	return session.Session{Subject: subject, Role: "verifier", ExpiresAt: now.Add(ttl)}, nil
}
