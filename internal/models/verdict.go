package models

// Verdict is the verification service's final answer for a submission.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictFlagged  Verdict = "flagged"
	VerdictRejected Verdict = "rejected"
)

// IsValid reports whether v is one of the three known verdicts.
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictApproved, VerdictFlagged, VerdictRejected:
		return true
	}
	return false
}

// Confirmed reports whether the service processed the submission. All
// three verdicts count, including rejected: a rejection is a final
// answer, not a retry candidate.
func (v Verdict) Confirmed() bool {
	return v.IsValid()
}

// VerificationResult is the parsed response from the verification
// endpoint for a single capture submission.
type VerificationResult struct {
	Verdict          Verdict  `json:"verdict"`
	Confidence       *float64 `json:"confidence,omitempty"`
	LivenessPassed   *bool    `json:"livenessPassed,omitempty"`
	LocationVerified *bool    `json:"locationVerified,omitempty"`
}
