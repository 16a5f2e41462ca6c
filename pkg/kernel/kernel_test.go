package kernel

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novakernel/internal/config"
)

func testConfig() *config.KernelConfig {
	cfg := config.Default()
	cfg.PagePool.PageBytes = 4096
	cfg.PagePool.HardCapMegaBytes = 8
	cfg.Worker.WaitTimeoutMS = 200
	return cfg
}

func TestRuntime_AllocateDeallocate(t *testing.T) {
	rt := New(testConfig())
	defer func() { require.NoError(t, rt.Close()) }()

	tok := rt.SlabToken()
	defer rt.RetireSlabToken(tok)

	p, err := rt.Allocate(tok, 128)
	require.NoError(t, err)

	buf := unsafe.Slice((*byte)(p), 128)
	buf[0] = 0xAB
	assert.Equal(t, byte(0xAB), buf[0])

	rt.Deallocate(p)
}

func TestRuntime_AllocateTooLarge(t *testing.T) {
	rt := New(testConfig())
	defer func() { require.NoError(t, rt.Close()) }()

	tok := rt.SlabToken()
	defer rt.RetireSlabToken(tok)

	_, err := rt.Allocate(tok, 1<<20)
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

func TestRuntime_NewThreadWorker_PollingAndException(t *testing.T) {
	rt := New(testConfig())
	defer func() { require.NoError(t, rt.Close()) }()

	polling := rt.NewThreadWorker(rt.NewWorker("polling"), PollingBased)
	polling.Start(nil, nil, nil)
	polling.Stop(true)

	exception := rt.NewThreadWorker(rt.NewWorker("exception"), ExceptionBased)
	exception.Start(nil, nil, nil)
	exception.Stop(true)
}

func TestRuntime_WorkerCallOrdering(t *testing.T) {
	rt := New(testConfig())
	defer func() { require.NoError(t, rt.Close()) }()

	w := rt.NewWorker("ordering")
	tw := rt.NewThreadWorker(w, PollingBased)
	tw.Start(nil, nil, nil)
	defer tw.Stop(true)

	results := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, w.Call(func() { results <- i }))
	}

	for i := 0; i < 3; i++ {
		select {
		case got := <-results:
			assert.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for queued call")
		}
	}
}
