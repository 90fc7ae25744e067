package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	c := New()

	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClock_NowUTC(t *testing.T) {
	c := New()

	if got := c.NowUTC(); got.Location() != time.UTC {
		t.Errorf("NowUTC() location = %v, want UTC", got.Location())
	}
}

func TestRealClock_Since(t *testing.T) {
	c := New()

	start := time.Now().Add(-time.Second)
	if got := c.Since(start); got < time.Second {
		t.Errorf("Since() = %v, want >= 1s", got)
	}
}

func TestMock_NowIsFixed(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMock(base)

	if got := m.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
	// Unchanged across reads.
	if got := m.Now(); !got.Equal(base) {
		t.Errorf("second Now() = %v, want %v", got, base)
	}
}

func TestMock_Advance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMock(base)

	m.Advance(30 * time.Second)

	want := base.Add(30 * time.Second)
	if got := m.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestMock_Set(t *testing.T) {
	m := NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	target := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	m.Set(target)

	if got := m.Now(); !got.Equal(target) {
		t.Errorf("Now() after Set = %v, want %v", got, target)
	}
}

func TestMock_Since(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMock(base)

	earlier := base.Add(-45 * time.Second)
	if got := m.Since(earlier); got != 45*time.Second {
		t.Errorf("Since() = %v, want 45s", got)
	}

	m.Advance(15 * time.Second)
	if got := m.Since(earlier); got != time.Minute {
		t.Errorf("Since() after Advance = %v, want 1m", got)
	}
}

func TestMock_ConcurrentAccess(t *testing.T) {
	m := NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Advance(time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_ = m.Now()
		}()
	}
	wg.Wait()

	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(10 * time.Millisecond)
	if got := m.Now(); !got.Equal(want) {
		t.Errorf("Now() after concurrent advances = %v, want %v", got, want)
	}
}
