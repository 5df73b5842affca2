package normalize

// Confidence assigned to curated sheet facts. The sheet is hand-maintained,
// so its rows score high without being certain.
const sheetConfidence = 0.9

// Confidence assigned to curated person relationships. Relationship rows
// are looser claims than role or funding rows, so they score lower.
const linkConfidence = 0.8

// clampConfidence bounds a reported-transaction score to [0.50, 0.95]:
// even a fully corroborated record stays below curated confidence, and
// even a bare one is still evidence.
func clampConfidence(value float64) float64 {
	if value < 0.50 {
		return 0.50
	}
	if value > 0.95 {
		return 0.95
	}
	return value
}

// buildConfidence scores a reported transaction from what could be
// corroborated: resolving the recipient matters most, then the donor,
// then having a date and an explicit transaction type.
func buildConfidence(recipientMapped, donorMapped, hasDate, hasType bool) float64 {
	score := 0.68
	if recipientMapped {
		score += 0.16
	}
	if donorMapped {
		score += 0.08
	}
	if hasDate {
		score += 0.04
	}
	if hasType {
		score += 0.03
	}
	return clampConfidence(score)
}
