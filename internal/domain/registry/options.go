package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithEvictionInterval configures how often the janitor process runs to
// reclaim memory from cells with no attached viewer connections.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) {
		h.evictionInterval = d
	}
}

// WithIdleTimeout defines the quiet period after which a subscriber cell
// with no attached viewers is eligible for eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.idleTimeout = d
	}
}

// WithMailboxSize sets the buffer capacity for each subscriber cell's mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.mailboxSize = size
	}
}
