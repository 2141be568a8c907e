package analyzer

import "strconv"

// coerceScore turns a decoded JSON value into a clamped [0,100] integer.
// Numbers are clamped then truncated (73.9 becomes 73); numeric strings are
// parsed first. Anything else is rejected.
func coerceScore(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		return clampFloat(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return clampFloat(f), true
	case bool, nil:
		return 0, false
	default:
		return 0, false
	}
}

func clampFloat(f float64) int {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f)
}
