package broker

import (
	"errors"
	"fmt"
)

// AuthBrokerError reports that the outbound token exchange for an identity
// failed and the retry budget is spent. The cached entry for the identity has
// been evicted; callers receive this error rather than a stale token.
type AuthBrokerError struct {
	// Identity is the credential identity name the exchange ran for.
	Identity string

	// Attempts is how many times the issuer was asked.
	Attempts int

	// Err is the final attempt's failure.
	Err error
}

func (e *AuthBrokerError) Error() string {
	return fmt.Sprintf("token exchange for identity %q failed after %d attempt(s): %v",
		e.Identity, e.Attempts, e.Err)
}

func (e *AuthBrokerError) Unwrap() error {
	return e.Err
}

// IsAuthBroker reports whether err is an AuthBrokerError.
func IsAuthBroker(err error) bool {
	var brokerErr *AuthBrokerError
	return errors.As(err, &brokerErr)
}
