package verifier

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// InvalidTokenError covers every way a token can fail verification other
// than audience: malformed, expired, bad signature, unknown signing key,
// wrong issuer. It maps to a 401 at the transport layer.
type InvalidTokenError struct {
	// Reason is a short operator-facing summary. It never contains token
	// material.
	Reason string

	// Err is the underlying parse or key lookup failure, if any.
	Err error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token: %s: %v", e.Reason, e.Err)
	}
	return "invalid token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// AudienceMismatchError reports a token that verified correctly but was
// issued for a different recipient. Also a 401, but distinguished so
// operators can spot misconfigured agents quickly.
type AudienceMismatchError struct {
	Expected []string
	Got      jwt.ClaimStrings
}

func (e *AudienceMismatchError) Error() string {
	return fmt.Sprintf("token audience %v does not include any accepted audience %v", []string(e.Got), e.Expected)
}

// IsInvalidToken reports whether err is an InvalidTokenError.
func IsInvalidToken(err error) bool {
	var invalidErr *InvalidTokenError
	return errors.As(err, &invalidErr)
}

// IsAudienceMismatch reports whether err is an AudienceMismatchError.
func IsAudienceMismatch(err error) bool {
	var mismatchErr *AudienceMismatchError
	return errors.As(err, &mismatchErr)
}
