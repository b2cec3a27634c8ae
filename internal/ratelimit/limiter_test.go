package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestLimiter_WindowBound(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 3, Enabled: true})
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.AllowAt("client", now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if l.AllowAt("client", now.Add(3*time.Second)) {
		t.Error("4th request inside the window should be denied")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 2, Enabled: true})
	now := time.Now()

	if !l.AllowAt("c", now) {
		t.Fatal("first request denied")
	}
	if !l.AllowAt("c", now.Add(time.Second)) {
		t.Fatal("second request denied")
	}
	if l.AllowAt("c", now.Add(2*time.Second)) {
		t.Fatal("third request inside window admitted")
	}

	// The first timestamp falls out of the window after 60s.
	if !l.AllowAt("c", now.Add(Window+time.Millisecond)) {
		t.Error("request after window slid should be admitted")
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Enabled: true})
	now := time.Now()

	if !l.AllowAt("a", now) {
		t.Fatal("key a denied")
	}
	if !l.AllowAt("b", now) {
		t.Error("key b should not share key a's budget")
	}
	if l.AllowAt("a", now) {
		t.Error("key a over budget should be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Enabled: false})
	now := time.Now()
	for i := 0; i < 10; i++ {
		if !l.AllowAt("c", now) {
			t.Fatal("disabled limiter should always admit")
		}
	}
}

func TestLimiter_SetLimit(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Enabled: true})
	now := time.Now()

	if !l.AllowAt("c", now) {
		t.Fatal("first request denied")
	}
	if l.AllowAt("c", now) {
		t.Fatal("second request admitted at limit 1")
	}

	l.SetLimit(5)
	if !l.AllowAt("c", now.Add(time.Second)) {
		t.Error("request should be admitted after limit raise")
	}
}

func TestLimiter_Counts(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 10, Enabled: true})
	now := time.Now()

	l.AllowAt("a", now)
	l.AllowAt("a", now)
	l.AllowAt("b", now)

	counts := l.Counts()
	if counts["a"] != 2 {
		t.Errorf("counts[a] = %d, want 2", counts["a"])
	}
	if counts["b"] != 1 {
		t.Errorf("counts[b] = %d, want 1", counts["b"])
	}

	if got := l.Status("a"); got != 2 {
		t.Errorf("Status(a) = %d, want 2", got)
	}
	if got := l.Status("missing"); got != 0 {
		t.Errorf("Status(missing) = %d, want 0", got)
	}
}

func TestLimiter_ConcurrentSameKey(t *testing.T) {
	const limit = 50
	l := NewLimiter(Config{RequestsPerMinute: limit, Enabled: true})
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.AllowAt("shared", now) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Errorf("admitted = %d, want exactly %d (no lost or double increments)", admitted, limit)
	}
}
