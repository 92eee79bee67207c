// ABOUTME: Maps wave scheduler outcomes onto phase failure severity.
// ABOUTME: Used by the implement-phase handler to feed the recovery decision.

package flow

import (
	"github.com/2389/coven-flow/internal/scheduler"
)

// ClassifyWaves folds per-wave terminal counts into a phase outcome. It
// returns nil when every task completed, a recoverable failure on partial
// completion, and a critical failure when no task at all succeeded.
func ClassifyWaves(results []scheduler.WaveResult) error {
	var done, failed, blocked int
	for _, r := range results {
		done += r.Done
		failed += r.Failed
		blocked += r.Blocked
	}
	if failed == 0 && blocked == 0 {
		return nil
	}
	severity := SeverityRecoverable
	if done == 0 {
		severity = SeverityCritical
	}
	return Failf(severity, "%d tasks failed, %d blocked, %d done", failed, blocked, done)
}
