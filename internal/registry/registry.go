// Package registry describes the institutional registry a certificate could
// be checked against. There is no implementation; verdicts never consult it.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the registry holds no matching record.
var ErrNotFound = errors.New("certificate not found in registry")

// MatchResult is a registry hit.
type MatchResult struct {
	CertificateNumber string
	Institution       string
	StudentName       string
	Year              string
}

type Registry interface {
	Lookup(ctx context.Context, certificateNumber, institution string) (MatchResult, error)
}
