package classifier

import "regexp"

// Lifecycle states reported for a stable pane snapshot.
const (
	StateReady             = "READY"
	StateBusy              = "BUSY"
	StateNeedsConfirmation = "NEEDS_CONFIRMATION"
	StateError             = "ERROR"
	StateUnknown           = "UNKNOWN"
)

type Result struct {
	State         string
	Summary       string
	ActionsNeeded string
}

// RegexClassifier classifies a snapshot from the pack's cues alone. It is a
// pure function of (pack, text).
type RegexClassifier struct {
	pack Pack
}

func NewRegexClassifier(pack Pack) *RegexClassifier {
	return &RegexClassifier{pack: pack}
}

// Classify applies the cue lists in precedence order: error wins over
// confirmation, confirmation over busy, busy over idle. A stable snapshot
// matching nothing is READY.
func (c *RegexClassifier) Classify(snapshot string) Result {
	if matchAny(c.pack.Error, snapshot) {
		return Result{
			State:         StateError,
			Summary:       "Detected error output",
			ActionsNeeded: "Inspect the PTY logs to unblock the worker.",
		}
	}
	if matchAny(c.pack.Confirm, snapshot) {
		return Result{
			State:         StateNeedsConfirmation,
			Summary:       "Tool is waiting for explicit confirmation",
			ActionsNeeded: "Answer the confirmation prompt in the PTY.",
		}
	}
	if matchAny(c.pack.Busy, snapshot) {
		return Result{State: StateBusy, Summary: "Workload still running"}
	}
	if matchAny(c.pack.Idle, snapshot) {
		return Result{State: StateReady, Summary: "Idle prompt detected"}
	}
	return Result{State: StateReady, Summary: "No activity detected in snapshot"}
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
