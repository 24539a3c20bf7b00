package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewProgress_StartsRunningAtTokenizing(t *testing.T) {
	p := NewProgress()

	assert.True(t, p.IsRunning())
	snap := p.Snapshot()
	assert.Equal(t, string(StatusRunning), snap.Status)
	assert.Equal(t, string(StageTokenizing), snap.Stage)
}

func TestSetStage_ResetsTotalForNewStage(t *testing.T) {
	p := NewProgress()

	p.SetStage(StageEmbedding, 100)
	p.UpdateItems(25)

	snap := p.Snapshot()
	assert.Equal(t, string(StageEmbedding), snap.Stage)
	assert.Equal(t, 100, snap.ItemsTotal)
	assert.Equal(t, 25, snap.ItemsProcessed)
	assert.InDelta(t, 25.0, snap.ProgressPct, 0.01)
}

func TestSnapshot_ProgressPctZeroWhenTotalUnset(t *testing.T) {
	p := NewProgress()

	snap := p.Snapshot()
	assert.Equal(t, 0.0, snap.ProgressPct)
}

func TestSetReady_MarksStatusReadyAndNotRunning(t *testing.T) {
	p := NewProgress()

	p.SetReady()

	assert.False(t, p.IsRunning())
	assert.Equal(t, string(StatusReady), p.Snapshot().Status)
}

func TestSetError_MarksStatusErrorWithMessage(t *testing.T) {
	p := NewProgress()

	p.SetError("embedding backend unavailable")

	assert.False(t, p.IsRunning())
	snap := p.Snapshot()
	assert.Equal(t, string(StatusError), snap.Status)
	assert.Equal(t, "embedding backend unavailable", snap.ErrorMessage)
}
