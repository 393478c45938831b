package scrollback

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNotifierCoalescesBurst(t *testing.T) {
	var scheduled atomic.Int32
	n := NewNotifier(NewBuffer(DefaultLimit), func() { scheduled.Add(1) })

	assert.True(t, n.Append("first"))
	assert.Equal(t, int32(1), scheduled.Load())

	for range 1000 {
		assert.False(t, n.Append("x"))
	}
	assert.Equal(t, int32(1), scheduled.Load(), "burst while pending must not schedule again")
	assert.True(t, n.Pending())

	snap := n.Refresh()
	assert.Equal(t, "first"+strings.Repeat("x", 1000), snap)
	assert.False(t, n.Pending())

	assert.True(t, n.Append("after"))
	assert.Equal(t, int32(2), scheduled.Load())

	sched, coalesced := n.Stats()
	assert.Equal(t, int64(2), sched)
	assert.Equal(t, int64(1000), coalesced)
}

func TestNotifierEmptyAppendIsIgnored(t *testing.T) {
	var scheduled atomic.Int32
	n := NewNotifier(NewBuffer(8), func() { scheduled.Add(1) })
	assert.False(t, n.Append(""))
	assert.Equal(t, int32(0), scheduled.Load())
}

// Runs writers against a render loop fed by a channel, the way the UI hands
// refreshes to its own goroutine, and checks the last refresh sees it all.
func TestNotifierNoLostUpdatesUnderRace(t *testing.T) {
	const writers, perWriter = 4, 500
	refreshCh := make(chan struct{}, 1)
	var scheduled atomic.Int32

	n := NewNotifier(NewBufferWithRetention(writers*perWriter, 0), func() {
		scheduled.Add(1)
		refreshCh <- struct{}{}
	})

	var last atomic.Value
	last.Store("")
	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		for range refreshCh {
			last.Store(n.Refresh())
		}
	}()

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				n.Append("z")
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(last.Load().(string)) == writers*perWriter
	}, 2*time.Second, 5*time.Millisecond)

	close(refreshCh)
	<-renderDone

	assert.LessOrEqual(t, int(scheduled.Load()), writers*perWriter)
	assert.False(t, n.Pending())
}

func TestThrottledNilLimiterIsPassthrough(t *testing.T) {
	called := 0
	f := Throttled(context.Background(), nil, func() { called++ })
	f()
	assert.Equal(t, 1, called)
}

func TestThrottledRunsAsync(t *testing.T) {
	ran := make(chan struct{}, 1)
	f := Throttled(context.Background(), rate.NewLimiter(rate.Inf, 1), func() { ran <- struct{}{} })
	f()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("throttled schedule never ran")
	}
}

func TestThrottledCancelledContextDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow() // drain the single token
	f := Throttled(ctx, limiter, func() { ran.Store(true) })
	f()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestNotifierRefreshMark(t *testing.T) {
	n := NewNotifier(NewBuffer(4), func() {})
	n.Append("héllo")

	text, total := n.RefreshMark()
	assert.Equal(t, "éllo", text)
	assert.Equal(t, 5, total)
	assert.False(t, n.Pending())
}
