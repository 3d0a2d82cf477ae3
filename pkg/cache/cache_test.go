package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCacheSetPeekDeleteSnapshot(t *testing.T) {
	c := New[string]("test", Options{TTL: 50 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	c.Set("alpha", "value", 0)
	if val, ok := c.Peek("alpha"); !ok || val != "value" {
		t.Fatalf("expected peeked value")
	}

	snapshot := c.Snapshot()
	if len(snapshot) != 1 || snapshot[0].Key != "alpha" {
		t.Fatalf("expected snapshot to include alpha")
	}

	c.Delete("alpha")
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[int]("test", Options{TTL: time.Hour}, MetricsHooks{})
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", 1, time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok := c.Peek("k"); !ok {
		t.Fatal("expected entry before expiry")
	}
	now = now.Add(time.Second)
	if _, ok := c.Peek("k"); ok {
		t.Fatal("entry must expire exactly at its deadline")
	}
}

func TestCacheGetLoadsOnceAndCountsHits(t *testing.T) {
	var hits, misses int32
	c := New[int]("tokens", Options{TTL: time.Minute}, MetricsHooks{
		OnHit:  func(name string) { atomic.AddInt32(&hits, 1) },
		OnMiss: func(name string) { atomic.AddInt32(&misses, 1) },
	})

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context, string) (int, bool, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok, err := c.Get(context.Background(), "k", loader)
			if err != nil || !ok || v != 42 {
				t.Errorf("unexpected result %d %v %v", v, ok, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one loader call, got %d", calls)
	}
	if _, _, err := c.Get(context.Background(), "k", loader); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) < 1 || atomic.LoadInt32(&misses) < 1 {
		t.Fatalf("expected hit and miss hooks, got hits=%d misses=%d", hits, misses)
	}
}

func TestCacheDoesNotStoreMissesOrErrors(t *testing.T) {
	c := New[string]("test", Options{TTL: time.Minute}, MetricsHooks{})
	errBoom := errors.New("boom")

	if _, ok, err := c.Get(context.Background(), "gone", func(context.Context, string) (string, bool, error) {
		return "", false, nil
	}); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if _, _, err := c.Get(context.Background(), "bad", func(context.Context, string) (string, bool, error) {
		return "", false, errBoom
	}); !errors.Is(err, errBoom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("misses and errors must not be cached, have %d entries", c.Len())
	}
}

func TestCacheEviction(t *testing.T) {
	var evictions int32
	c := New[string]("test", Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{
		OnEvict: func(string) { atomic.AddInt32(&evictions, 1) },
	})

	c.Set("first", "one", time.Minute)
	c.Set("second", "two", time.Minute)
	c.Set("third", "three", time.Minute)

	if _, ok := c.Peek("first"); ok {
		t.Fatalf("expected first entry to be evicted")
	}
	if _, ok := c.Peek("second"); !ok {
		t.Fatalf("expected second entry to remain")
	}
	if _, ok := c.Peek("third"); !ok {
		t.Fatalf("expected third entry to remain")
	}
	if evictions != 1 {
		t.Fatalf("expected one eviction, got %d", evictions)
	}
}
