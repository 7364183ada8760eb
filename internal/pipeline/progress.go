package pipeline

import (
	"sync"
	"time"
)

// Pipeline steps in execution order
const (
	StepNormalize  = "normalize"
	StepDetect     = "detect anomalies"
	StepScore      = "score quality"
	StepCategories = "ensure categories"
	StepLoad       = "load"
	StepDone       = "completed"
)

var steps = []string{StepNormalize, StepDetect, StepScore, StepCategories, StepLoad}

// Progress tracks the progress of one pipeline run
type Progress struct {
	RunID              string        `json:"run_id"`
	Source             string        `json:"source"`
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        string        `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	RecordsProcessed int `json:"records_processed"`
	RecordsStored    int `json:"records_stored"`
}

// ProgressCallback is called after every step of every run. Runs started by
// RunMany report concurrently, so callbacks must be safe for concurrent use.
type ProgressCallback func(Progress)

// progressState is the per-run progress shared with the callbacks
type progressState struct {
	mu        sync.Mutex
	current   Progress
	callbacks []ProgressCallback
}

func newProgressState(runID, source string, callbacks []ProgressCallback) *progressState {
	return &progressState{
		current: Progress{
			RunID:      runID,
			Source:     source,
			TotalSteps: len(steps),
			StartTime:  time.Now(),
		},
		callbacks: callbacks,
	}
}

func (p *progressState) update(step string, completed int) {
	p.mu.Lock()
	p.current.CurrentStep = step
	p.current.CompletedSteps = completed
	p.current.ElapsedTime = time.Since(p.current.StartTime)
	p.current.PercentComplete = float64(completed) / float64(p.current.TotalSteps) * 100

	if completed > 0 && completed < p.current.TotalSteps {
		avgTimePerStep := p.current.ElapsedTime / time.Duration(completed)
		p.current.EstimatedRemaining = avgTimePerStep * time.Duration(p.current.TotalSteps-completed)
	} else {
		p.current.EstimatedRemaining = 0
	}
	snapshot := p.current
	p.mu.Unlock()

	for _, callback := range p.callbacks {
		callback(snapshot)
	}
}

func (p *progressState) records(processed, stored int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.RecordsProcessed = processed
	p.current.RecordsStored = stored
}
