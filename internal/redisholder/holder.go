package redisholder

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// Holder hands out the current Redis client; the health loop may replace it.
// Close is idempotent, and a client offered after Close is closed instead of
// installed.
type Holder struct {
	mu     sync.RWMutex
	client redis.UniversalClient
	closed bool
}

func NewHolder(initial redis.UniversalClient) *Holder {
	return &Holder{client: initial}
}

func (h *Holder) Get() redis.UniversalClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// replace installs c and returns the client it displaced.
func (h *Holder) replace(c redis.UniversalClient) (old redis.UniversalClient, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	old, h.client = h.client, c
	return old, true
}

func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.client == nil {
		h.closed = true
		return nil
	}
	h.closed = true
	return h.client.Close()
}
