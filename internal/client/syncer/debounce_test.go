package syncer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_CollapsesBursts(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { n.Add(1) })
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, d.Pending())
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	var n atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { n.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, n.Load())

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, n.Load())
}

func TestDebouncer_StopWaitsForRunningCallback(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	d := NewDebouncer(time.Millisecond, func() {
		close(started)
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})

	d.Trigger()
	<-started
	d.Stop()
	assert.True(t, finished.Load())
}
