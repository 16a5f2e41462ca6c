package interrupt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterrupt_BeforeWait_LatchesImmediately(t *testing.T) {
	s := New(time.Second)
	s.Interrupt()
	assert.True(t, s.Wait())
}

func TestInterrupt_WakesParkedWait(t *testing.T) {
	s := New(5 * time.Second)

	done := make(chan bool, 1)
	go func() {
		done <- s.Wait()
	}()

	time.Sleep(20 * time.Millisecond) // give Wait time to park
	s.Interrupt()

	select {
	case got := <-done:
		assert.True(t, got)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Interrupt")
	}
}

func TestWait_TimesOutWithoutInterrupt(t *testing.T) {
	s := New(20 * time.Millisecond)
	start := time.Now()
	got := s.Wait()
	assert.False(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestInterruptionPoint_ConsumesLatchedInterrupt(t *testing.T) {
	s := New(time.Second)
	s.Interrupt()
	assert.True(t, s.InterruptionPoint())
	assert.False(t, s.InterruptionPoint())
}

func TestInterruptionPoint_PanicsWhileWaiting(t *testing.T) {
	s := New(5 * time.Second)

	started := make(chan struct{})
	go func() {
		close(started)
		s.Wait()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	require.Panics(t, func() { s.InterruptionPoint() })
	s.Interrupt() // unpark the goroutine so it doesn't leak past the test
}

func TestWait_ReentrantCallPanics(t *testing.T) {
	s := New(5 * time.Second)

	started := make(chan struct{})
	go func() {
		close(started)
		s.Wait()
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	require.Panics(t, func() { s.Wait() })
	s.Interrupt()
}
