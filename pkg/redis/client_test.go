package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := NewClientFromURL(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := client.Set(ctx, "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := client.Get(ctx, "missing").Result(); !errors.Is(err, Nil) {
		t.Fatalf("expected Nil for a missing key, got %v", err)
	}
}

func TestNewClientFromURLErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClientFromURL(ctx, ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClientFromURL(ctx, "http://localhost"); err == nil {
		t.Fatal("expected error for non-redis url")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewClientFromURL(ctx, "redis://"+addr); err == nil {
		t.Fatal("expected ping error once the server is gone")
	}
}
