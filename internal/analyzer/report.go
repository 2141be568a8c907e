package analyzer

// Indicator is one labeled score for display: the contract consumed by UI
// and CLI callers.
type Indicator struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// Summary returns the single highest-scoring vector as the representative
// indicator. Ties break deterministically to the first vector in weight
// order. The second return is false when the result carries no scores.
func Summary(res Result) (Indicator, bool) {
	best := Indicator{}
	found := false
	for _, v := range res.Vectors {
		score, ok := res.Scores[v.ID]
		if !ok {
			continue
		}
		if !found || score > best.Value {
			best = Indicator{Label: v.Label, Value: score}
			found = true
		}
	}
	return best, found
}

// Report returns one indicator per scored vector, ordered by ascending
// weight. Vectors the model did not score are omitted.
func Report(res Result) []Indicator {
	var indicators []Indicator
	for _, v := range res.Vectors {
		score, ok := res.Scores[v.ID]
		if !ok {
			continue
		}
		indicators = append(indicators, Indicator{Label: v.Label, Value: score})
	}
	return indicators
}
