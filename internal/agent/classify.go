package agent

import "strings"

// Outcome classifies a backend invocation: did it complete, should the next
// backend be tried, or is the failure not worth retrying anywhere.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeUnavailable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "fatal"
	}
}

// unavailablePatterns are substrings in backend output that indicate a
// transient capacity problem rather than a broken task. Matched
// case-insensitively against combined stdout and stderr.
var unavailablePatterns = []string{
	"rate limit",
	"quota",
	"usage limit",
	"credit",
	"insufficient",
	"429",
	"temporarily unavailable",
	"try again later",
	"overloaded",
	"max turns",
	"max-turns",
	"timeout",
	"timed out",
	"pass --to",
}

// Classify maps an invocation's exit to an Outcome. A timeout or a
// capacity-pattern match is Unavailable (fall through to the next backend)
// regardless of exit code, since backends often exit 0 after printing a
// rate-limit notice. Exit 0 with clean output is OK, anything else is Fatal.
func Classify(exitCode int, combined string, timedOut bool) Outcome {
	if timedOut {
		return OutcomeUnavailable
	}
	lower := strings.ToLower(combined)
	for _, p := range unavailablePatterns {
		if strings.Contains(lower, p) {
			return OutcomeUnavailable
		}
	}
	if exitCode == 0 {
		return OutcomeOK
	}
	return OutcomeFatal
}
