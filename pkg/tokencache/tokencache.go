// Package tokencache keeps signature-derived auth tokens per wallet address so
// a returning wallet is not asked to sign again inside the validity window.
package tokencache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/cache"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// MaxAge is how long a cached token may be reused.
const MaxAge = 24 * time.Hour

// ErrNotFound is returned by a Store when no record exists for the key.
var ErrNotFound = errors.New("tokencache: no cached token")

// Record is the persisted cache entry.
type Record struct {
	Timestamp     int64  `json:"timestamp"` // unix milliseconds
	WalletAddress string `json:"walletAddress"`
	AuthToken     string `json:"authToken"`
}

func (r Record) IssuedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Store persists records by key. Keys are lower-cased addresses.
type Store interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Lookup outcomes reported to the lookup hook.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultExpired  = "expired"
	ResultMismatch = "mismatch"
	ResultError    = "error"
)

// Cache applies the validity rules on top of a Store.
type Cache struct {
	store    Store
	hot      *cache.Cache[Record]
	now      func() time.Time
	logger   logging.Logger
	onLookup func(result string)
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.logger = logging.OrDiscard(l) }
}

// WithLookupHook reports every Lookup outcome (hit, miss, expired, mismatch, error).
func WithLookupHook(fn func(result string)) Option {
	return func(c *Cache) { c.onLookup = fn }
}

// WithHotCacheHooks instruments the in-process layer in front of the store.
func WithHotCacheHooks(h cache.MetricsHooks) Option {
	return func(c *Cache) {
		c.hot = cache.New[Record]("auth_tokens", hotOptions, h)
	}
}

var hotOptions = cache.Options{TTL: 5 * time.Minute, MaxEntries: 256}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		hot:    cache.New[Record]("auth_tokens", hotOptions, cache.MetricsHooks{}),
		now:    time.Now,
		logger: logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Lookup returns the cached token for address if it is younger than MaxAge
// and was issued to that same address. Invalid entries are deleted.
func (c *Cache) Lookup(ctx context.Context, address string) (string, bool) {
	k := key(address)
	if k == "" {
		return "", false
	}
	rec, ok, err := c.hot.Get(ctx, k, func(ctx context.Context, k string) (Record, bool, error) {
		rec, err := c.store.Load(ctx, k)
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		if err != nil {
			return Record{}, false, err
		}
		return rec, true, nil
	})
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read auth token cache")
		c.report(ResultError)
		return "", false
	}
	if !ok {
		c.report(ResultMiss)
		return "", false
	}

	age := c.now().Sub(rec.IssuedAt())
	switch {
	case !auth.SameAddress(rec.WalletAddress, address):
		c.report(ResultMismatch)
	case age < 0 || age >= MaxAge || rec.AuthToken == "":
		c.report(ResultExpired)
	default:
		c.report(ResultHit)
		return rec.AuthToken, true
	}

	if err := c.Forget(ctx, address); err != nil {
		c.logger.WithError(err).Warn("Failed to discard invalid cached auth token")
	}
	return "", false
}

// Remember stores token for address, stamped with the current time.
func (c *Cache) Remember(ctx context.Context, address, token string) error {
	k := key(address)
	if k == "" {
		return errors.New("tokencache: address is required")
	}
	rec := Record{
		Timestamp:     c.now().UnixMilli(),
		WalletAddress: address,
		AuthToken:     token,
	}
	if err := c.store.Save(ctx, k, rec); err != nil {
		return err
	}
	c.hot.Set(k, rec, 0)
	return nil
}

// Forget drops any cached token for address.
func (c *Cache) Forget(ctx context.Context, address string) error {
	k := key(address)
	c.hot.Delete(k)
	if k == "" {
		return nil
	}
	err := c.store.Delete(ctx, k)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) report(result string) {
	if c.onLookup != nil {
		c.onLookup(result)
	}
}
