package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannel_DropsWhenFull(t *testing.T) {
	ch := NewChannel(1)

	assert.True(t, ch.Send(Written(3)))
	assert.False(t, ch.Send(Written(4)))

	msg := <-ch
	assert.Equal(t, KindWritten, msg.Kind)
	assert.Equal(t, 3, msg.Count)
}

func TestConstructors(t *testing.T) {
	d := DedupStats("wstfiles", 2)
	assert.Equal(t, KindDedupStats, d.Kind)
	assert.Equal(t, "wstfiles", d.Collection)
	assert.Equal(t, 2, d.Count)

	c := CacheStats(5, 1)
	assert.Equal(t, 5, c.Hits)
	assert.Equal(t, 1, c.Misses)
}
