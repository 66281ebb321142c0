package imagery

import (
	"errors"
	"fmt"
)

// The acquisition error taxonomy. All three provider-level failures are
// non-fatal to an acquire call: the client records them and advances to the
// next provider in the chain.

// NetworkError covers timeouts and non-2xx responses from a provider.
type NetworkError struct {
	Provider string
	Status   int
	Err      error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: network failure: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError indicates the provider rejected our credentials. The client
// invalidates any cached token and skips the provider for the current call.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// DecodeError indicates the provider returned bytes that are not a valid
// image. Treated identically to a provider failure.
type DecodeError struct {
	Provider string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: payload is not a decodable image: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrAllProvidersFailed is returned only when every provider in the chain,
// including any synthetic fallback, has been exhausted. With the synthetic
// generator enabled this never happens for a valid request.
var ErrAllProvidersFailed = errors.New("imagery: all providers failed")

// ErrInvalidRequest is returned for requests that fail validation before any
// provider is contacted.
var ErrInvalidRequest = errors.New("imagery: invalid request")
