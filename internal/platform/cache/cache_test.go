package cache

import (
	"testing"
	"time"

	"github.com/medledger/medledger/internal/platform/clock"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory(clock.NewFixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	c.Set("report:a", []byte("hello"), time.Minute)

	got, ok := c.Get("report:a")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "hello" {
		t.Errorf("expected hello, got %s", got)
	}

	got[0] = 'j'
	again, _ := c.Get("report:a")
	if string(again) != "hello" {
		t.Error("cached value must not be mutated through a returned slice")
	}
}

func TestMemory_Expiry(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewMemory(clk)
	c.Set("k", []byte("v"), time.Minute)

	clk.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before ttl")
	}
	clk.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss at ttl")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be deleted, len=%d", c.Len())
	}
}

func TestMemory_InvalidateGroup(t *testing.T) {
	c := NewMemory(nil)
	c.Set("report:2024-01", []byte("1"), time.Hour)
	c.Set("report:2024-02", []byte("2"), time.Hour)
	c.Set("other:x", []byte("3"), time.Hour)

	n := c.InvalidateGroup("report:")
	if n != 2 {
		t.Errorf("expected 2 invalidated, got %d", n)
	}
	if _, ok := c.Get("report:2024-01"); ok {
		t.Error("expected report entry to be gone")
	}
	if _, ok := c.Get("other:x"); !ok {
		t.Error("expected unrelated entry to survive")
	}
}

func TestMemory_SetZeroTTL(t *testing.T) {
	c := NewMemory(nil)
	c.Set("k", []byte("v"), 0)
	if _, ok := c.Get("k"); ok {
		t.Error("zero ttl should not store")
	}
}

func TestMemory_Sweep(t *testing.T) {
	clk := clock.NewFixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewMemory(clk)
	c.Set("a", []byte("1"), time.Second)
	c.Set("b", []byte("2"), time.Hour)
	clk.Advance(time.Minute)
	c.sweep()
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after sweep, got %d", c.Len())
	}
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	s.Set("k", []byte("v"), time.Hour)
	if _, ok := s.Get("k"); ok {
		t.Error("nop cache should never hit")
	}
}

func TestMemory_SetIfGeneration(t *testing.T) {
	c := NewMemory(clock.NewFixed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	gen := c.Generation()

	// an invalidation with nothing cached still counts
	if n := c.InvalidateGroup(ReportGroup); n != 0 {
		t.Fatalf("expected nothing removed, got %d", n)
	}
	if c.SetIfGeneration("report:a", []byte("stale"), time.Minute, gen) {
		t.Fatal("write built before the invalidation must be refused")
	}
	if _, ok := c.Get("report:a"); ok {
		t.Fatal("stale value was stored")
	}

	gen = c.Generation()
	if !c.SetIfGeneration("report:a", []byte("fresh"), time.Minute, gen) {
		t.Fatal("expected write at the current generation to succeed")
	}
	if got, _ := c.Get("report:a"); string(got) != "fresh" {
		t.Errorf("expected fresh, got %s", got)
	}
}
