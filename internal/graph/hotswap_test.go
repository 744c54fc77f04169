package graph

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeWith(value string) *Store {
	s := NewStore(time.Now())
	s.Put("snr", []byte(value), nil)
	return s
}

func TestHotSwapGraph_Swap(t *testing.T) {
	h := NewHotSwapGraph(storeWith("5\n"))

	n, err := h.GetNode("snr")
	require.NoError(t, err)
	assert.Equal(t, "5\n", string(n.Data))

	h.Swap(storeWith("7\n"))
	assert.Equal(t, 1, h.Swaps())

	buf := make([]byte, 8)
	got, err := h.ReadContent("snr", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "7\n", string(buf[:got]))

	roots, err := h.ListChildren("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snr"}, roots)
}

func TestHotSwapGraph_ConcurrentReads(t *testing.T) {
	h := NewHotSwapGraph(storeWith("5\n"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n, err := h.GetNode("snr")
				if assert.NoError(t, err) {
					assert.Contains(t, []string{"5\n", "7\n"}, string(n.Data))
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		h.Swap(storeWith("7\n"))
	}
	wg.Wait()
	assert.Equal(t, 10, h.Swaps())
}
