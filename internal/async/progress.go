// Package async provides background task infrastructure for the core:
// non-blocking semantic-index construction and cancellable retention
// sweeps, generalized from a stop-channel/done-channel/progress-pointer
// pattern.
package async

import (
	"sync"
	"time"
)

// Status represents the overall state of a background task.
type Status string

const (
	// StatusRunning indicates the task is in progress.
	StatusRunning Status = "running"
	// StatusReady indicates the task completed successfully.
	StatusReady Status = "ready"
	// StatusError indicates the task failed with an error.
	StatusError Status = "error"
)

// Stage represents the current phase of a semantic-index build.
type Stage string

const (
	// StageTokenizing indicates corpus lemmas are being tokenized.
	StageTokenizing Stage = "tokenizing"
	// StageEmbedding indicates embedding batches are being computed.
	StageEmbedding Stage = "embedding"
	// StageBuilding indicates the ANN index is being trained/populated.
	StageBuilding Stage = "building"
)

// ProgressSnapshot is an immutable snapshot of task progress.
type ProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	ItemsTotal     int     `json:"items_total"`
	ItemsProcessed int     `json:"items_processed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of a background task's progress.
type Progress struct {
	mu sync.RWMutex

	status       Status
	stage        Stage
	itemsTotal   int
	itemsDone    int
	startTime    time.Time
	errorMessage string
}

// NewProgress creates a new progress tracker initialized as running.
func NewProgress() *Progress {
	return &Progress{
		status:    StatusRunning,
		stage:     StageTokenizing,
		startTime: time.Now(),
	}
}

// SetStage updates the current stage and resets the total item count.
func (p *Progress) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.itemsTotal = total
}

// UpdateItems updates the number of items processed in the current stage.
func (p *Progress) UpdateItems(processed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.itemsDone = processed
}

// SetError marks the task as failed.
func (p *Progress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the task as complete.
func (p *Progress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsRunning reports whether the task is still in progress.
func (p *Progress) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusRunning
}

// Snapshot returns an immutable copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.itemsTotal > 0 {
		pct = float64(p.itemsDone) / float64(p.itemsTotal) * 100.0
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		ItemsTotal:     p.itemsTotal,
		ItemsProcessed: p.itemsDone,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
