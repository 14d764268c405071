package progress

import (
	"context"
	"sync"
)

type carryKey struct {
	kind       Kind
	collection string
}

// Carry is a Sink over a Channel that never loses counts. A message that
// does not fit is held and added to the next message of the same kind and
// collection; Flush delivers whatever is still held. Carry is safe for
// concurrent use.
type Carry struct {
	ch   Channel
	mu   sync.Mutex
	held map[carryKey]Message
}

// NewCarry creates a Carry sending to ch.
func NewCarry(ch Channel) *Carry {
	return &Carry{ch: ch, held: make(map[carryKey]Message)}
}

// Send implements Sink. It always accepts msg, so callers must not keep
// their own copy of the counts.
func (c *Carry) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := carryKey{kind: msg.Kind, collection: msg.Collection}
	if prior, ok := c.held[key]; ok {
		msg = merge(prior, msg)
	}
	if c.ch.Send(msg) {
		delete(c.held, key)
	} else {
		c.held[key] = msg
	}
	return true
}

// Held reports whether any counts are waiting for delivery.
func (c *Carry) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held) > 0
}

// Flush blocks until every held message is on the channel or ctx ends. The
// channel must still have a reader.
func (c *Carry) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, msg := range c.held {
		select {
		case c.ch <- msg:
			delete(c.held, key)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func merge(a, b Message) Message {
	a.Count += b.Count
	a.Hits += b.Hits
	a.Misses += b.Misses
	return a
}
