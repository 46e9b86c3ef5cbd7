package cache

import (
	"context"
	"testing"
	"time"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

func TestKeyNormalization(t *testing.T) {
	a := Key("  My Title  ", "hello world")
	b := Key("my title", "hello world")
	if a != b {
		t.Fatalf("expected normalized keys to match: %q != %q", a, b)
	}
	c := Key("my title", "hello world!")
	if a == c {
		t.Fatalf("expected different content to produce different keys")
	}
}

func TestGetPutHitMiss(t *testing.T) {
	c := New(10, time.Hour)
	ctx := context.Background()
	key := Key("t", "content")

	if _, found := c.Get(ctx, key); found {
		t.Fatalf("expected miss on empty cache")
	}

	want := domain.SmartNoteResult{ContentID: 42}
	c.Put(key, want)

	got, found := c.Get(ctx, key)
	if !found {
		t.Fatalf("expected hit after put")
	}
	if got.ContentID != want.ContentID {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10, time.Millisecond)
	ctx := context.Background()
	key := Key("t", "content")
	c.Put(key, domain.SmartNoteResult{ContentID: 1})

	time.Sleep(5 * time.Millisecond)

	if _, found := c.Get(ctx, key); found {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("k1", domain.SmartNoteResult{ContentID: 1})
	c.Put("k2", domain.SmartNoteResult{ContentID: 2})
	c.Put("k3", domain.SmartNoteResult{ContentID: 3})

	if c.Len() != 2 {
		t.Fatalf("expected cache bounded to 2 entries, got %d", c.Len())
	}
	if _, found := c.Get(context.Background(), "k1"); found {
		t.Fatalf("expected oldest entry k1 to be evicted")
	}
}
