package embedcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiter_AllowsUpToCap(t *testing.T) {
	l := newWindowLimiter(time.Minute, 3)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "fourth request in the window must be rejected")
}

func TestWindowLimiter_ResetsAfterWindow(t *testing.T) {
	l := newWindowLimiter(10*time.Millisecond, 1)

	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, l.Allow(), "new window should admit requests again")
}
