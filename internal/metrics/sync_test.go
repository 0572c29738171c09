package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow(t *testing.T) {
	w := NewSlidingWindow(time.Minute, 3)
	now := time.Now().Unix()
	w.Add(now - 3600)
	assert.Equal(t, 0, w.Count(), "events outside the window are dropped")

	for i := 0; i < 5; i++ {
		w.Add(now)
	}
	assert.Equal(t, 3, w.Count(), "window is capped at maxSize")
	assert.InDelta(t, 3.0/60.0, w.Rate(), 1e-9)
}

func TestRecorders(t *testing.T) {
	before := GetSummary()

	RecordRelayQuery(nil)
	RecordRelayQuery(errors.New("down"))
	RecordUnwrap("nip17", true)
	RecordUnwrap("nip04", false)
	RecordCacheOp("memory", "save", errors.New("full"))
	RecordBootstrap("cold", 2*time.Second)

	after := GetSummary()
	assert.Equal(t, before.RelayQueries+2, after.RelayQueries)
	assert.Equal(t, before.RelayFailures+1, after.RelayFailures)
	assert.Equal(t, before.MessagesUnwrapped+1, after.MessagesUnwrapped)
	assert.Equal(t, before.DecryptFailures+1, after.DecryptFailures)
	assert.Equal(t, before.CacheSaveFailures+1, after.CacheSaveFailures)
	assert.Equal(t, before.Bootstraps+1, after.Bootstraps)
	assert.False(t, after.LastBootstrap.IsZero())
	assert.GreaterOrEqual(t, after.RecentRelayFailures, 1)
}
