package outbox

import (
	"math/rand"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	maxBackoff := 60 * time.Second

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 0, want: 0},
		{attempts: 1, want: 1 * time.Second},
		{attempts: 2, want: 2 * time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 6, want: 32 * time.Second},
		{attempts: 7, want: 60 * time.Second},
		{attempts: 25, want: 60 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff(tc.attempts, maxBackoff); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestJitter(t *testing.T) {
	r := rand.New(rand.NewSource(1)) //nolint:gosec
	maxJitter := 200 * time.Millisecond
	for i := 0; i < 100; i++ {
		j := jitter(r, maxJitter)
		if j < 0 || j > maxJitter {
			t.Fatalf("jitter out of range: %v", j)
		}
	}
	if jitter(r, 0) != 0 {
		t.Error("jitter with zero max should be 0")
	}
	if jitter(nil, maxJitter) != 0 {
		t.Error("jitter with nil rand should be 0")
	}
}
