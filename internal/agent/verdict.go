package agent

import "strings"

// Verdict is a reviewer's decision on a change set.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictChanges Verdict = "CHANGES_REQUESTED"
)

// ParseVerdict extracts the reviewer's decision. It looks for the last
// "VERDICT:" line in the output; when none is present it falls back to a
// wording heuristic, and an ambiguous review counts as changes requested.
func ParseVerdict(output string) Verdict {
	var verdictLine string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		upper := strings.ToUpper(trimmed)
		if idx := strings.Index(upper, "VERDICT:"); idx >= 0 {
			verdictLine = upper[idx+len("VERDICT:"):]
		}
	}
	if verdictLine != "" {
		if strings.Contains(verdictLine, "APPROVE") {
			return VerdictApprove
		}
		if strings.Contains(verdictLine, "CHANGES") {
			return VerdictChanges
		}
	}

	lower := strings.ToLower(output)
	if strings.Contains(lower, "approve") && !strings.Contains(lower, "changes") {
		return VerdictApprove
	}
	return VerdictChanges
}
