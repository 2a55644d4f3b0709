package inference

import "time"

// Config holds the coordinator tunables. The zero value is valid: unbounded
// queue, wait indefinitely, no generate timeout.
type Config struct {
	// MaxQueueDepth bounds how many requests may wait behind the one in
	// flight. Zero means unbounded.
	MaxQueueDepth int
	// QueueWait bounds how long a request waits for the slot. Zero waits
	// until the slot frees or the request is canceled.
	QueueWait time.Duration
	// GenerateTimeout bounds how long a caller waits for a dispatched
	// generation. Zero disables it.
	GenerateTimeout time.Duration
}

func (c Config) normalized() Config {
	if c.MaxQueueDepth < 0 {
		c.MaxQueueDepth = 0
	}
	if c.QueueWait < 0 {
		c.QueueWait = 0
	}
	if c.GenerateTimeout < 0 {
		c.GenerateTimeout = 0
	}
	return c
}
