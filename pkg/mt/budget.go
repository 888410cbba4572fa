package mt

// Speech-rate bands and their compression coefficients. A fast source
// speaker leaves no slack, a slow one leaves a little room for longer
// English.
const (
	fastTPSThreshold   = 5.5
	normalTPSThreshold = 4.0

	kFast   = 1.00
	kNormal = 1.15
	kSlow   = 1.20

	// ENCPS is the assumed English reading speed in characters per
	// second, counting letters and digits only.
	ENCPS = 14.0
)

// PickK maps the source speech rate to the time-budget coefficient.
func PickK(zhTPS float64) float64 {
	switch {
	case zhTPS >= fastTPSThreshold:
		return kFast
	case zhTPS >= normalTPSThreshold:
		return kNormal
	default:
		return kSlow
	}
}

// BudgetMs computes the translation time budget for an utterance window.
func BudgetMs(windowMs int, zhTPS float64) float64 {
	return float64(windowMs) * PickK(zhTPS)
}

// EstimateDurationMs estimates how long the English text takes to speak,
// from its letter-and-digit count at ENCPS.
func EstimateDurationMs(enText string) float64 {
	n := 0
	for _, r := range enText {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float64(n) / ENCPS * 1000.0
}

// MaxChars is the character allowance communicated to the model for a
// given budget.
func MaxChars(budgetMs float64) int {
	return int(budgetMs / 1000.0 * ENCPS)
}
