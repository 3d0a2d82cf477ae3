package tokencache

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ucpi/webapp-sub000/pkg/database"
)

const (
	addrA = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
	addrB = "0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(store Store) (*Cache, *clock, *[]string) {
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	var results []string
	c := New(store, WithClock(clk.now), WithLookupHook(func(r string) { results = append(results, r) }))
	return c, clk, &results
}

func TestCacheRememberAndLookup(t *testing.T) {
	ctx := context.Background()
	c, _, results := newTestCache(NewMemoryStore())

	_, ok := c.Lookup(ctx, addrA)
	require.False(t, ok)

	require.NoError(t, c.Remember(ctx, addrA, "token-a"))

	tok, ok := c.Lookup(ctx, addrA)
	require.True(t, ok)
	require.Equal(t, "token-a", tok)

	// address case does not matter
	tok, ok = c.Lookup(ctx, "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
	require.True(t, ok)
	require.Equal(t, "token-a", tok)

	_, ok = c.Lookup(ctx, addrB)
	require.False(t, ok)

	require.Equal(t, []string{ResultMiss, ResultHit, ResultHit, ResultMiss}, *results)
}

func TestCacheExpiresAtMaxAge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clk, results := newTestCache(store)
	require.NoError(t, c.Remember(ctx, addrA, "token-a"))

	clk.t = clk.t.Add(MaxAge - time.Millisecond)
	_, ok := c.Lookup(ctx, addrA)
	require.True(t, ok, "token must be valid just inside the window")

	clk.t = clk.t.Add(time.Millisecond)
	_, ok = c.Lookup(ctx, addrA)
	require.False(t, ok, "token must not be used at 24h")
	require.Equal(t, ResultExpired, (*results)[len(*results)-1])

	_, err := store.Load(ctx, key(addrA))
	require.ErrorIs(t, err, ErrNotFound, "stale entry must be deleted")
}

func TestCacheRejectsFutureTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clk, _ := newTestCache(store)

	require.NoError(t, store.Save(ctx, key(addrA), Record{
		Timestamp:     clk.t.Add(time.Hour).UnixMilli(),
		WalletAddress: addrA,
		AuthToken:     "from-the-future",
	}))
	_, ok := c.Lookup(ctx, addrA)
	require.False(t, ok)
}

func TestCacheDiscardsAddressMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, clk, results := newTestCache(store)

	require.NoError(t, store.Save(ctx, key(addrA), Record{
		Timestamp:     clk.t.UnixMilli(),
		WalletAddress: addrB,
		AuthToken:     "token-b",
	}))

	_, ok := c.Lookup(ctx, addrA)
	require.False(t, ok)
	require.Equal(t, []string{ResultMismatch}, *results)

	_, err := store.Load(ctx, key(addrA))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCacheForget(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCache(NewMemoryStore())
	require.NoError(t, c.Remember(ctx, addrA, "token-a"))
	require.NoError(t, c.Forget(ctx, addrA))

	_, ok := c.Lookup(ctx, addrA)
	require.False(t, ok)
	require.NoError(t, c.Forget(ctx, addrA), "forgetting twice is fine")
}

type failingStore struct{ MemoryStore }

func (failingStore) Load(context.Context, string) (Record, error) {
	return Record{}, errors.New("disk on fire")
}

func TestCacheStoreErrorIsAMiss(t *testing.T) {
	c, _, results := newTestCache(&failingStore{})
	_, ok := c.Lookup(context.Background(), addrA)
	require.False(t, ok)
	require.Equal(t, []string{ResultError}, *results)
}

func TestRememberRequiresAddress(t *testing.T) {
	c, _, _ := newTestCache(NewMemoryStore())
	require.Error(t, c.Remember(context.Background(), " ", "tok"))
}

func TestSQLStoreQueries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_token_cache").
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLStore(ctx, db, database.Postgres)
	require.NoError(t, err)

	k := key(addrA)
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_token_cache WHERE cache_key = $1")).
		WithArgs(k).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address", "auth_token", "issued_at_ms"}))
	_, err = store.Load(ctx, k)
	require.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (cache_key) DO UPDATE")).
		WithArgs(k, addrA, "token-a", int64(1700000000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Save(ctx, k, Record{Timestamp: 1700000000000, WalletAddress: addrA, AuthToken: "token-a"}))

	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_token_cache WHERE cache_key = $1")).
		WithArgs(k).
		WillReturnRows(sqlmock.NewRows([]string{"wallet_address", "auth_token", "issued_at_ms"}).
			AddRow(addrA, "token-a", int64(1700000000000)))
	rec, err := store.Load(ctx, k)
	require.NoError(t, err)
	require.Equal(t, Record{Timestamp: 1700000000000, WalletAddress: addrA, AuthToken: "token-a"}, rec)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_token_cache WHERE cache_key = $1")).
		WithArgs(k).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(ctx, k))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewSQLStore(context.Background(), db, database.Postgres)
	require.NoError(t, err)

	mock.ExpectQuery("FROM auth_token_cache").WillReturnError(errors.New("connection reset"))
	_, err = store.Load(context.Background(), "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	spec := "sqlite://" + filepath.Join(t.TempDir(), "tokens.db")

	store, err := OpenStore(ctx, spec, nil)
	require.NoError(t, err)
	defer store.Close()
	require.IsType(t, &SQLStore{}, store)

	c, _, _ := newTestCache(store)
	require.NoError(t, c.Remember(ctx, addrA, "token-1"))
	require.NoError(t, c.Remember(ctx, addrA, "token-2"), "upsert replaces the row")

	// a fresh cache over the same store sees the persisted row
	fresh, _, _ := newTestCache(store)
	tok, ok := fresh.Lookup(ctx, addrA)
	require.True(t, ok)
	require.Equal(t, "token-2", tok)

	require.NoError(t, fresh.Forget(ctx, addrA))
	_, err = store.Load(ctx, key(addrA))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	defer store.Close()

	k := key(addrA)
	_, err := store.Load(ctx, k)
	require.ErrorIs(t, err, ErrNotFound)

	rec := Record{Timestamp: time.Now().UnixMilli(), WalletAddress: addrA, AuthToken: "token-a"}
	require.NoError(t, store.Save(ctx, k, rec))

	got, err := store.Load(ctx, k)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	ttl := mr.TTL(redisKeyPrefix + k)
	require.Greater(t, ttl, MaxAge-time.Minute)
	require.LessOrEqual(t, ttl, MaxAge)

	mr.FastForward(MaxAge)
	_, err = store.Load(ctx, k)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, k, rec))
	require.NoError(t, store.Delete(ctx, k))
	require.False(t, mr.Exists(redisKeyPrefix+k))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, "memory", nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = OpenStore(ctx, "", nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = OpenStore(ctx, "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	require.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = OpenStore(ctx, "mysql://nope", nil)
	require.Error(t, err)
}
