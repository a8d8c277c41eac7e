package ratelimit

import (
	"testing"
	"time"
)

func TestAdmitWithinCapacity(t *testing.T) {
	p := NewPool(Config{Capacity: 5, Refill: 1})
	b := p.get("c1")
	now := time.Now()

	for i := 0; i < 5; i++ {
		ok, _ := p.admitAt(b, now)
		if !ok {
			t.Fatalf("request %d within capacity denied", i)
		}
	}
	ok, retry := p.admitAt(b, now)
	if ok {
		t.Fatal("request beyond capacity admitted")
	}
	// empty bucket at refill 1/s: one token in ~1s
	if retry < 900*time.Millisecond || retry > 1100*time.Millisecond {
		t.Fatalf("retry-after = %v, want ~1s", retry)
	}
}

func TestRefillRestoresTokens(t *testing.T) {
	p := NewPool(Config{Capacity: 2, Refill: 1})
	b := p.get("c1")
	now := time.Now()

	p.admitAt(b, now)
	p.admitAt(b, now)
	if ok, _ := p.admitAt(b, now); ok {
		t.Fatal("empty bucket admitted")
	}
	// 1.5s later one token has refilled, but only one
	later := now.Add(1500 * time.Millisecond)
	if ok, _ := p.admitAt(b, later); !ok {
		t.Fatal("refilled token not granted")
	}
	if ok, _ := p.admitAt(b, later); ok {
		t.Fatal("second token granted before refill")
	}
}

func TestDeniedRequestCostsNothing(t *testing.T) {
	p := NewPool(Config{Capacity: 1, Refill: 1})
	b := p.get("c1")
	now := time.Now()

	p.admitAt(b, now)
	// repeated denials must not push the retry horizon further out
	_, first := p.admitAt(b, now)
	_, second := p.admitAt(b, now)
	if second > first+10*time.Millisecond {
		t.Fatalf("denied request consumed tokens: first=%v second=%v", first, second)
	}
}

func TestEvict(t *testing.T) {
	p := NewPool(Config{Capacity: 5, Refill: 1})
	p.Admit("a")
	p.Admit("b")
	if p.Size() != 2 {
		t.Fatalf("size = %d", p.Size())
	}

	// nothing is older than an hour
	if n := p.Evict(time.Hour); n != 0 {
		t.Fatalf("evicted %d fresh buckets", n)
	}
	// backdate one bucket past the idle cutoff
	p.mu.Lock()
	p.buckets["a"].lastSeen = time.Now().Add(-2 * time.Hour)
	p.mu.Unlock()
	if n := p.Evict(time.Hour); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if p.Size() != 1 {
		t.Fatalf("size after evict = %d", p.Size())
	}
	// the evicted identity starts over with a full bucket
	if ok, _ := p.Admit("a"); !ok {
		t.Fatal("re-created bucket not full")
	}
}

func TestDefaults(t *testing.T) {
	p := NewPool(Config{})
	if ok, _ := p.Admit("x"); !ok {
		t.Fatal("zero-value config produced an unusable pool")
	}
}
