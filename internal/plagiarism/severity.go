package plagiarism

// Severity bands shown next to a finding's score.
const (
	SeveritySuspicious       = "suspicious"
	SeverityHighlySuspicious = "highly suspicious"
	SeverityNearCopy         = "near copy"
)

// GetSeverity returns the band for a similarity percentage. Every finding
// already exceeds the flagging threshold, so there is no clean band.
func GetSeverity(score float64) string {
	if score < 90 {
		return SeveritySuspicious
	} else if score < 97 {
		return SeverityHighlySuspicious
	}
	return SeverityNearCopy
}
