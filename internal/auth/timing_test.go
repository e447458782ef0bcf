package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kdlacuna/kainan/internal/auth"
)

func timedCall(fn func()) time.Duration {
	start := time.Now()
	fn()
	return time.Since(start)
}

func TestTimingDelay_Wait(t *testing.T) {
	tests := []struct {
		name           string
		delayOnSuccess bool
		success        bool
		minElapsed     time.Duration
		maxElapsed     time.Duration
	}{
		{
			name:       "failure sleeps at least the base delay",
			success:    false,
			minElapsed: 100 * time.Millisecond,
			maxElapsed: 200 * time.Millisecond,
		},
		{
			name:       "success returns immediately by default",
			success:    true,
			maxElapsed: 10 * time.Millisecond,
		},
		{
			name:           "success sleeps when DelayOnSuccess is set",
			delayOnSuccess: true,
			success:        true,
			minElapsed:     100 * time.Millisecond,
			maxElapsed:     200 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timing := auth.NewTimingDelay(auth.TimingConfig{
				BaseDelayMs:    100,
				RandomDelayMs:  50,
				DelayOnSuccess: tt.delayOnSuccess,
			})

			elapsed := timedCall(func() { timing.Wait(tt.success) })

			if tt.minElapsed > 0 {
				assert.GreaterOrEqual(t, elapsed, tt.minElapsed)
			}
			assert.Less(t, elapsed, tt.maxElapsed)
		})
	}
}

func TestTimingDelay_WaitFrom(t *testing.T) {
	// RandomDelayMs stays zero here so the target is deterministic.
	timing := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100})

	t.Run("tops up a partially consumed budget", func(t *testing.T) {
		start := time.Now()
		time.Sleep(50 * time.Millisecond)

		timing.WaitFrom(start, false)

		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
		assert.Less(t, elapsed, 120*time.Millisecond)
	})

	t.Run("skips the sleep once the budget is spent", func(t *testing.T) {
		start := time.Now()
		time.Sleep(120 * time.Millisecond)

		extra := timedCall(func() { timing.WaitFrom(start, false) })
		assert.Less(t, extra, 10*time.Millisecond)
	})

	t.Run("skips the sleep on success", func(t *testing.T) {
		extra := timedCall(func() { timing.WaitFrom(time.Now(), true) })
		assert.Less(t, extra, 10*time.Millisecond)
	})
}
