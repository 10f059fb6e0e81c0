package queue

import (
	"testing"
	"time"
)

func TestBackoff_Sequence(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i+1, got, w)
		}
	}
	if b.Attempt() != len(want) {
		t.Errorf("Attempt() = %d, want %d", b.Attempt(), len(want))
	}
}

func TestBackoff_ResetOnProgress(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempt() != 0 {
		t.Errorf("Attempt() after Reset = %d, want 0", b.Attempt())
	}
	if got := b.Next(); got != 2*time.Second {
		t.Errorf("Next() after Reset = %v, want 2s", got)
	}
}

func TestBackoff_NeverExceedsCap(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)
	for i := 0; i < 200; i++ {
		if d := b.Next(); d > 8*time.Second || d <= 0 {
			t.Fatalf("Next() #%d = %v, want (0, 8s]", i+1, d)
		}
	}
}

func TestBackoff_CapBelowFirstStep(t *testing.T) {
	b := NewBackoff(time.Second, 500*time.Millisecond)
	if got := b.Next(); got != 500*time.Millisecond {
		t.Errorf("Next() = %v, want 500ms", got)
	}
}
