package canopen

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerRegistryFiresInDeadlineOrder(t *testing.T) {
	tr := NewTimerRegistry()
	defer tr.Stop()

	var mu sync.Mutex
	fired := []int{}
	record := func(id int) func() {
		return func() {
			mu.Lock()
			fired = append(fired, id)
			mu.Unlock()
		}
	}
	tr.Schedule(30*time.Millisecond, false, record(3))
	tr.Schedule(10*time.Millisecond, false, record(1))
	tr.Schedule(20*time.Millisecond, false, record(2))

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, fired)
}

func TestTimerRegistryBreaksTiesByScheduleOrder(t *testing.T) {
	tr := NewTimerRegistry()
	defer tr.Stop()

	var mu sync.Mutex
	fired := []int{}
	// Same deadline for everyone : the registry must keep schedule order
	for i := 1; i <= 5; i++ {
		i := i
		tr.Schedule(20*time.Millisecond, false, func() {
			mu.Lock()
			fired = append(fired, i)
			mu.Unlock()
		})
	}
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, fired)
}

func TestTimerRegistryPeriodic(t *testing.T) {
	tr := NewTimerRegistry()
	defer tr.Stop()

	var mu sync.Mutex
	count := 0
	cancel := tr.Schedule(10*time.Millisecond, true, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	time.Sleep(55 * time.Millisecond)
	cancel()
	mu.Lock()
	firedBefore := count
	mu.Unlock()
	assert.GreaterOrEqual(t, firedBefore, 3)

	// Nothing more after cancel
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, firedBefore, count)
}

func TestTimerRegistryCancelFromOwnCallback(t *testing.T) {
	tr := NewTimerRegistry()
	defer tr.Stop()

	var mu sync.Mutex
	count := 0
	var cancel func()
	mu.Lock()
	cancel = tr.Schedule(10*time.Millisecond, true, func() {
		mu.Lock()
		count++
		self := cancel
		mu.Unlock()
		// Permitted and idempotent
		self()
		self()
	})
	mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestTimerRegistryCancelBeforeFire(t *testing.T) {
	tr := NewTimerRegistry()
	defer tr.Stop()

	fired := false
	cancel := tr.Schedule(30*time.Millisecond, false, func() { fired = true })
	cancel()
	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired)
}
