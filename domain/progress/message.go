// Package progress defines the primitive messages workers send to the
// progress aggregator. Messages never carry document content.
package progress

// Kind identifies a progress message.
type Kind string

// Kind values.
const (
	KindWritten    Kind = "written"
	KindDedupStats Kind = "dedup_stats"
	KindCacheStats Kind = "cache_stats"
	KindFileDone   Kind = "file_done"
)

// Message is one progress update.
type Message struct {
	Kind       Kind
	Collection string
	Count      int
	Hits       int
	Misses     int
}

// Written reports n documents written by one flush.
func Written(n int) Message {
	return Message{Kind: KindWritten, Count: n}
}

// DedupStats reports n dedup hits in a collection.
func DedupStats(collection string, n int) Message {
	return Message{Kind: KindDedupStats, Collection: collection, Count: n}
}

// CacheStats reports text cache hits and misses for one file.
func CacheStats(hits, misses int) Message {
	return Message{Kind: KindCacheStats, Hits: hits, Misses: misses}
}

// FileDone reports one processed file.
func FileDone() Message {
	return Message{Kind: KindFileDone, Count: 1}
}

// Sink accepts progress messages without blocking the caller.
type Sink interface {
	// Send delivers msg and reports whether it was accepted.
	Send(msg Message) bool
}

// Channel is a bounded Sink. Messages that do not fit are dropped.
type Channel chan Message

// NewChannel creates a Channel with the given capacity.
func NewChannel(capacity int) Channel {
	return make(Channel, capacity)
}

// Send implements Sink.
func (c Channel) Send(msg Message) bool {
	select {
	case c <- msg:
		return true
	default:
		return false
	}
}

// Discard is a Sink that drops every message.
type Discard struct{}

// Send implements Sink.
func (Discard) Send(Message) bool { return true }
