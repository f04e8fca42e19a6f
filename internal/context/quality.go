package context

import "strings"

// genericPleasantries is the fixed set of low-information phrases quality
// penalizes. Kept fixed rather than configurable so scores stay
// comparable across sessions.
var genericPleasantries = []string{
	"thanks", "thank you", "sounds good", "ok", "okay", "got it",
	"sure", "no problem", "great", "looks good",
}

// technicalTerms is the fixed set of terms that boost quality.
var technicalTerms = []string{
	"function", "class", "error", "bug", "api", "database", "algorithm",
	"performance", "security", "test", "refactor", "implementation",
}

// quality scores content quality as a heuristic scalar in [0,1]:
// longer, code-bearing, technical content scores higher; short replies
// and generic pleasantries score lower.
func quality(content string) float64 {
	q := 1.0
	lower := strings.ToLower(content)
	n := len(content)

	if n < 50 {
		q *= 0.5
	}
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		q *= 0.7
	}
	if n > 200 {
		q *= 1.2
	}
	if n > 500 {
		q *= 1.3
	}
	if strings.Contains(content, "```") {
		q *= 1.3
	}
	if strings.Contains(content, "?") && n > 100 {
		q *= 1.2
	}
	if matchesPleasantry(lower) {
		q *= 0.6
	}
	if containsAny(lower, technicalTerms) {
		q *= 1.2
	}

	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	return q
}

func matchesPleasantry(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	for _, p := range genericPleasantries {
		if trimmed == p {
			return true
		}
	}
	return false
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
