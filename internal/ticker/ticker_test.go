package ticker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_FiresThenUnregisterStops(t *testing.T) {
	p := New(20 * time.Millisecond)
	t.Cleanup(func() { _ = p.Close() })

	var count int32
	h := p.Register(func() { atomic.AddInt32(&count, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Unregister())
	after := atomic.LoadInt32(&count)

	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&count), after+1)
}

func TestClose_StopsTheTimerGoroutine(t *testing.T) {
	p := New(10 * time.Millisecond)

	var count int32
	p.Register(func() { atomic.AddInt32(&count, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close()) // idempotent

	after := atomic.LoadInt32(&count)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&count))
}

func TestClose_WithoutAnyRegistration_IsANoop(t *testing.T) {
	p := New(time.Second)
	assert.NoError(t, p.Close())
}

func TestFire_PanicInOneCallbackDoesNotStopOthers(t *testing.T) {
	var mu sync.Mutex
	var ran []string

	// Populate regs directly rather than via Register, so this test
	// exercises only fire's panic isolation and never spawns the
	// background timer goroutine.
	p := &Process{regs: map[int]Callback{
		0: func() {
			mu.Lock()
			ran = append(ran, "good")
			mu.Unlock()
		},
		1: func() { panic("boom") },
	}}

	require.NotPanics(t, p.fire)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, ran, "good")
}
