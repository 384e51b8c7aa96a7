package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss for unknown key")
	}

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("got (%d, %v)", v, ok)
	}

	// Overwriting keeps a single entry.
	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Fatalf("got %d after overwrite", v)
	}
	if c.Size() != 1 {
		t.Fatalf("size %d after overwrite", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a") // a becomes most recently used
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected least recently used key to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("recently used key must survive eviction")
	}
	if c.Size() != 2 {
		t.Fatalf("size %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}

	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("cleaned %d entries, want 1", removed)
	}
	if c.Size() != 1 {
		t.Fatalf("size %d after cleanup", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("u1:2025-01", 1)
	c.Set("u1:2025-02", 2)
	c.Set("u2:2025-01", 3)

	if removed := c.DeletePrefix("u1:"); removed != 2 {
		t.Fatalf("removed %d entries, want 2", removed)
	}
	if _, ok := c.Get("u1:2025-01"); ok {
		t.Fatalf("u1 entries must be gone")
	}
	if _, ok := c.Get("u2:2025-01"); !ok {
		t.Fatalf("other users' entries must survive")
	}
}

func TestManagerCleanup(t *testing.T) {
	c := NewLRUCache[int](10, 5*time.Millisecond)
	m := NewManager()
	m.Register(c)

	c.Set("a", 1)
	m.StartCleanup(10 * time.Millisecond)
	defer m.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Size() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expired entry was never cleaned")
}
