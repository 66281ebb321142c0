package imagery

import (
	"context"
)

// Provider fetches raw image bytes for one request. Implementations must be
// safe for concurrent use; any shared authentication state is guarded
// internally.
type Provider interface {
	// Name identifies the provider in logs, metrics and priority lists.
	Name() string
	// Fetch returns raw encoded image bytes covering the request's bbox at
	// roughly the requested pixel dimensions. Failures are reported through
	// the taxonomy in errors.go.
	Fetch(ctx context.Context, req ImageRequest) ([]byte, error)
	// Available reports whether the provider has the credentials it needs.
	// Unavailable providers are skipped without counting as failures.
	Available() bool
}
