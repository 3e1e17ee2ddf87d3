// ABOUTME: Tests for the sent-message id cache.

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_MarkAndSeen(t *testing.T) {
	c := New(time.Minute, 10)

	assert.False(t, c.Seen("m1"))
	c.Mark("m1")
	assert.True(t, c.Seen("m1"))
	assert.False(t, c.Seen("m2"))
}

func TestCache_EntriesExpire(t *testing.T) {
	c := New(time.Minute, 10)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Mark("m1")

	c.now = func() time.Time { return now.Add(61 * time.Second) }
	assert.False(t, c.Seen("m1"))
}

func TestCache_ExpiredEntriesArePrunedOnMark(t *testing.T) {
	c := New(time.Minute, 10)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Mark("m1")
	c.Mark("m2")

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	c.Mark("m3")

	assert.Len(t, c.seen, 1)
	assert.True(t, c.Seen("m3"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)

	for i := 0; i < 4; i++ {
		c.Mark(fmt.Sprintf("m%d", i))
	}

	assert.False(t, c.Seen("m0"))
	assert.True(t, c.Seen("m1"))
	assert.True(t, c.Seen("m3"))
}

func TestCache_RemarkRefreshesTimestamp(t *testing.T) {
	c := New(time.Minute, 10)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Mark("m1")

	c.now = func() time.Time { return now.Add(45 * time.Second) }
	c.Mark("m1")

	c.now = func() time.Time { return now.Add(90 * time.Second) }
	assert.True(t, c.Seen("m1"))
}
