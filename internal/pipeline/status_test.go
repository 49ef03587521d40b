package internal

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCounting(t *testing.T) {
	status := NewStatus()

	status.RecordSuccess("qi")
	status.RecordSuccess("qi")
	status.RecordHandlerError("qi", errors.New("backend down"))
	status.RecordRoutingError(errors.New("unknown service type"))
	status.RecordParseError(errors.New("bad json"))

	snapshot := status.Snapshot()
	assert.Equal(t, int64(3), snapshot.TotalProcessed, "permanent failures must not count as processed")
	assert.Equal(t, int64(2), snapshot.Success["qi"])
	assert.Equal(t, int64(1), snapshot.Errors["qi"])
	assert.Equal(t, int64(1), snapshot.Errors[BucketUnknown])
	assert.Equal(t, int64(1), snapshot.Errors[BucketMalformed])
	assert.Equal(t, "bad json", snapshot.LastError)
}

func TestStatusSnapshotIsolation(t *testing.T) {
	status := NewStatus()
	status.RecordSuccess("qi")

	snapshot := status.Snapshot()
	snapshot.Success["qi"] = 999
	snapshot.Errors["qi"] = 999

	fresh := status.Snapshot()
	assert.Equal(t, int64(1), fresh.Success["qi"])
	assert.Equal(t, int64(0), fresh.Errors["qi"])
}

func TestStatusConcurrentIncrements(t *testing.T) {
	status := NewStatus()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				status.RecordSuccess("analytics")
			}
		}()
	}
	wg.Wait()

	snapshot := status.Snapshot()
	assert.Equal(t, int64(5000), snapshot.TotalProcessed)
	assert.Equal(t, int64(5000), snapshot.Success["analytics"])
}

func TestStatusResetLifecycleKeepsCounters(t *testing.T) {
	status := NewStatus()
	status.RecordSuccess("qi")
	status.RecordHandlerError("export", errors.New("bucket missing"))
	status.SetState(StateErrored)
	status.MarkStarted()

	status.ResetLifecycle()

	snapshot := status.Snapshot()
	assert.Equal(t, StateStopped, snapshot.State)
	assert.Empty(t, snapshot.LastError)
	assert.True(t, snapshot.StartedAt.IsZero())
	assert.Equal(t, int64(2), snapshot.TotalProcessed)
	assert.Equal(t, int64(1), snapshot.Success["qi"])
	assert.Equal(t, int64(1), snapshot.Errors["export"])
}
