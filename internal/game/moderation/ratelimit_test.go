package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingLimiter_WindowSlides(t *testing.T) {
	l := newSlidingLimiter(10*time.Second, 3)
	base := time.Now()

	assert.True(t, l.allow("s1", base))
	assert.True(t, l.allow("s1", base.Add(time.Second)))
	assert.True(t, l.allow("s1", base.Add(2*time.Second)))
	assert.False(t, l.allow("s1", base.Add(3*time.Second)))

	// The first send ages out of the 10s window.
	assert.True(t, l.allow("s1", base.Add(11*time.Second)))
}

func TestSlidingLimiter_RejectionsNotCounted(t *testing.T) {
	l := newSlidingLimiter(10*time.Second, 1)
	base := time.Now()

	assert.True(t, l.allow("s1", base))
	for i := 1; i <= 20; i++ {
		assert.False(t, l.allow("s1", base.Add(time.Duration(i)*100*time.Millisecond)))
	}
	// Only the single accepted send occupies the window.
	assert.True(t, l.allow("s1", base.Add(10*time.Second+time.Millisecond)))
}

func TestSlidingLimiter_SessionsIndependent(t *testing.T) {
	l := newSlidingLimiter(10*time.Second, 1)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.True(t, l.allow("b", now))
	assert.False(t, l.allow("a", now))
}

func TestSlidingLimiter_Forget(t *testing.T) {
	l := newSlidingLimiter(10*time.Second, 1)
	now := time.Now()

	assert.True(t, l.allow("a", now))
	assert.False(t, l.allow("a", now))
	l.forget("a")
	assert.True(t, l.allow("a", now))
}
