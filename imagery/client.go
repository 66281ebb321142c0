package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	_ "image/jpeg" // payload validation
	_ "image/png"  // payload validation

	"github.com/jonboulle/clockwork"

	"github.com/AlfonsoCifuentes/riskmap-vision/observability"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Client acquires one image per request from a prioritized provider chain with
// response caching. All state (providers, token caches, metrics) lives on the
// client instance; independent clients never interfere with each other.
type Client struct {
	providers []Provider
	cache     *DiskCache
	timeout   time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClock injects a clock, used by tests to control timestamps.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithPerProviderTimeout bounds each individual provider call.
func WithPerProviderTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient builds an acquisition client over an ordered provider list. The
// first provider is tried first; the chain advances on any failure.
func NewClient(providers []Provider, cache *DiskCache, opts ...ClientOption) *Client {
	c := &Client{
		providers: providers,
		cache:     cache,
		timeout:   30 * time.Second,
		clock:     clockwork.NewRealClock(),
		logger:    utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire resolves a request to an image. Repeat requests with identical
// parameters are served from the cache without any network call. With the
// synthetic provider in the chain the call is total: it succeeds for every
// syntactically valid request.
func (c *Client) Acquire(ctx context.Context, req ImageRequest) (CachedImage, error) {
	if err := req.Validate(); err != nil {
		return CachedImage{}, err
	}
	req = req.normalized()
	key := req.CacheKey()

	if c.cache != nil {
		cached, ok, err := c.cache.Get(key)
		if err != nil {
			c.logger.Warn("cache read failed, falling through to providers",
				slog.String("key", key), slog.Any("error", err))
		} else if ok {
			c.countCache("hit")
			return cached, nil
		}
		c.countCache("miss")
	}

	var chainErrs []error
	for _, provider := range c.selectChain(req) {
		if !provider.Available() {
			continue
		}

		img, err := c.fetchOne(ctx, provider, req)
		if err != nil {
			chainErrs = append(chainErrs, err)
			c.logger.Warn("provider failed, advancing chain",
				slog.String("provider", provider.Name()),
				slog.Any("error", err))
			continue
		}

		if c.cache != nil {
			if err := c.cache.Put(key, img); err != nil {
				c.logger.Warn("failed to cache acquired image",
					slog.String("key", key), slog.Any("error", err))
			}
		}
		return img, nil
	}

	return CachedImage{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(chainErrs...))
}

// selectChain honors the request's explicit provider priority list, falling
// back to the client's configured order.
func (c *Client) selectChain(req ImageRequest) []Provider {
	if len(req.Providers) == 0 {
		return c.providers
	}
	byName := make(map[string]Provider, len(c.providers))
	for _, p := range c.providers {
		byName[p.Name()] = p
	}
	chain := make([]Provider, 0, len(req.Providers))
	for _, name := range req.Providers {
		if p, ok := byName[name]; ok {
			chain = append(chain, p)
		}
	}
	return chain
}

func (c *Client) fetchOne(ctx context.Context, provider Provider, req ImageRequest) (CachedImage, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := c.clock.Now()
	data, err := provider.Fetch(callCtx, req)
	c.observeProvider(provider.Name(), c.clock.Since(started), err)
	if err != nil {
		return CachedImage{}, err
	}

	cfg, _, decodeErr := image.DecodeConfig(bytes.NewReader(data))
	if decodeErr != nil {
		err := &DecodeError{Provider: provider.Name(), Err: decodeErr}
		c.countProvider(provider.Name(), "decode_error")
		return CachedImage{}, err
	}

	return CachedImage{
		Data:          data,
		ContentHash:   utils.HashBytes(data),
		Source:        provider.Name(),
		ResolutionMPx: estimateResolution(provider.Name(), len(data)),
		Width:         cfg.Width,
		Height:        cfg.Height,
		AcquiredAt:    c.clock.Now(),
	}, nil
}

func (c *Client) observeProvider(name string, elapsed time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	outcome := "success"
	var authErr *AuthError
	var netErr *NetworkError
	switch {
	case err == nil:
		outcome = "success"
	case errors.As(err, &authErr):
		outcome = "auth_error"
	case errors.As(err, &netErr):
		outcome = "network_error"
	default:
		outcome = "network_error"
	}
	c.metrics.ProviderRequests.WithLabelValues(name, outcome).Inc()
}

func (c *Client) countProvider(name, outcome string) {
	if c.metrics != nil {
		c.metrics.ProviderRequests.WithLabelValues(name, outcome).Inc()
	}
}

func (c *Client) countCache(result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
