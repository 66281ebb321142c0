package imagery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenSafetyMargin is subtracted from the reported expiry so a token is never
// presented to the API in its final seconds of validity.
const tokenSafetyMargin = 60 * time.Second

// tokenManager caches one OAuth2 client-credentials token and refreshes it
// lazily. The refresh happens under a lock so concurrent acquisitions never
// issue redundant token requests.
type tokenManager struct {
	cfg   clientcredentials.Config
	clock clockwork.Clock

	mu    sync.Mutex
	token *oauth2.Token
}

func newTokenManager(clientID, clientSecret, tokenURL string, clock clockwork.Clock) *tokenManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &tokenManager{
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		},
		clock: clock,
	}
}

// AccessToken returns a valid bearer token, refreshing it when the cached one
// is inside the safety margin of its expiry.
func (tm *tokenManager) AccessToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != nil && tm.token.AccessToken != "" {
		if tm.token.Expiry.IsZero() || tm.clock.Now().Before(tm.token.Expiry.Add(-tokenSafetyMargin)) {
			return tm.token.AccessToken, nil
		}
	}

	token, err := tm.cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	tm.token = token
	return token.AccessToken, nil
}

// Invalidate discards the cached token. Called after an authentication
// rejection so the next call fetches a fresh one.
func (tm *tokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = nil
	tm.mu.Unlock()
}
