package types

import (
	"strconv"
	"time"
)

// ActorResult is the outcome of one bounded external actor invocation during
// a STOP sequence. Never persisted; it lives for one STOP pass and is logged.
type ActorResult struct {
	Name     string        // "smooth", "delegated" or "fallback"
	Started  bool          // false when the process could not be launched
	ExitCode int           // -1 when not started or killed on timeout
	TimedOut bool          // true when the bound fired and the actor was killed
	Duration time.Duration // wall clock from launch attempt to settlement
}

// Succeeded reports whether the actor ran to completion with exit code 0
// within its bound. Escalation keys off this for the delegated actor.
func (r ActorResult) Succeeded() bool {
	return r.Started && !r.TimedOut && r.ExitCode == 0
}

// Outcome renders the result for log lines: "exit 0", "timeout" or "not started".
func (r ActorResult) Outcome() string {
	switch {
	case !r.Started:
		return "not started"
	case r.TimedOut:
		return "timeout"
	case r.ExitCode == 0:
		return "exit 0"
	default:
		return "exit " + strconv.Itoa(r.ExitCode)
	}
}
