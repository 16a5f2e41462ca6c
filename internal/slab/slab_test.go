package slab

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novakernel/internal/pagepool"
	"github.com/tuannm99/novakernel/internal/ticker"
)

// newTestPool constructs a PagePool against its own private ticker, torn
// down with the pool at test end.
func newTestPool(t *testing.T, pageBytes, hardCapMegaBytes int) *pagepool.PagePool {
	t.Helper()
	tk := ticker.New(time.Second)
	pool := pagepool.New(pageBytes, hardCapMegaBytes, tk)
	t.Cleanup(func() {
		_ = pool.Close()
		_ = tk.Close()
	})
	return pool
}

func TestAllocate_WriteAndReadBack(t *testing.T) {
	pool := newTestPool(t, 4096, 1)

	a := New(pool)
	tok := a.Token()
	defer a.Retire(tok)

	p, err := a.Allocate(tok, 64)
	require.NoError(t, err)

	buf := unsafe.Slice((*byte)(p), 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	for i := range buf {
		assert.Equal(t, byte(i), buf[i])
	}

	a.Deallocate(p)
}

func TestAllocate_RequestTooLarge(t *testing.T) {
	pool := newTestPool(t, 256, 1)

	a := New(pool)
	tok := a.Token()
	defer a.Retire(tok)

	_, err := a.Allocate(tok, 4096)
	assert.ErrorIs(t, err, ErrRequestTooLarge)
}

// TestAllocate_CrossGoroutineFree: one goroutine allocates, another frees,
// with no error and no corruption of subsequent allocations.
func TestAllocate_CrossGoroutineFree(t *testing.T) {
	pool := newTestPool(t, 4096, 1)

	a := New(pool)
	tokA := a.Token()
	defer a.Retire(tokA)

	p, err := a.Allocate(tokA, 64)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Deallocate(p)
	}()
	wg.Wait()

	tokC := a.Token()
	defer a.Retire(tokC)
	_, err = a.Allocate(tokC, 64)
	require.NoError(t, err)
}

// TestAllocate_PageRotation: pageBytes=4096, 1000 allocations of 256 B from
// one caller land on at most ceil(1000/perPage) + 1 distinct pages, where
// perPage = PageBytesAvailable / (aligned header + 256).
func TestAllocate_PageRotation(t *testing.T) {
	const pageBytes = 4096
	pool := newTestPool(t, pageBytes, 64)

	a := New(pool)
	tok := a.Token()

	avail := pool.PageBytesAvailable()
	need := alignUp(int(headerSize)) + 256

	perPage := avail / need
	require.Greater(t, perPage, 0)

	wantPages := (1000+perPage-1)/perPage + 1

	var ptrs []unsafe.Pointer
	for i := 0; i < 1000; i++ {
		p, err := a.Allocate(tok, 256)
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}

	// Count distinct active pages actually used by inspecting each
	// allocation's owning page through its header.
	seen := map[*activePage]bool{}
	for _, p := range ptrs {
		h := (*header)(unsafe.Pointer(uintptr(p) - uintptr(alignUp(int(headerSize)))))
		seen[h.page] = true
	}
	assert.LessOrEqual(t, len(seen), wantPages)

	for _, p := range ptrs {
		a.Deallocate(p)
	}
	a.Retire(tok)
}

func TestRetire_IsIdempotentAndReleasesActiveSlot(t *testing.T) {
	pool := newTestPool(t, 4096, 1)

	a := New(pool)
	tok := a.Token()

	p, err := a.Allocate(tok, 64)
	require.NoError(t, err)
	a.Deallocate(p)

	a.Retire(tok)
	// Retiring an already-retired token must be a no-op, not a panic.
	a.Retire(tok)
}
