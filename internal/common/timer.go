// Package common provides small shared utilities for stage timing.
package common

import (
	"fmt"
	"time"
)

// StageTimer measures the wall-clock duration of one pipeline stage.
type StageTimer struct {
	stage   string
	start   time.Time
	elapsed time.Duration
}

// StartStage begins timing the named stage.
func StartStage(stage string) *StageTimer {
	return &StageTimer{stage: stage, start: time.Now()}
}

// Stop ends the measurement and returns the elapsed duration. Repeated calls
// keep the first recorded value.
func (t *StageTimer) Stop() time.Duration {
	if t.elapsed == 0 {
		t.elapsed = time.Since(t.start)
	}
	return t.elapsed
}

// Stage returns the stage name.
func (t *StageTimer) Stage() string { return t.stage }

// Elapsed returns the recorded duration (only meaningful after Stop).
func (t *StageTimer) Elapsed() time.Duration { return t.elapsed }

// String formats the timer as "<stage>: <duration>".
func (t *StageTimer) String() string {
	return fmt.Sprintf("%s: %v", t.stage, t.elapsed)
}
