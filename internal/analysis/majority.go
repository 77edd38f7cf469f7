package analysis

// Vote is the winner of a majority vote.
type Vote struct {
	Value string
	Count int
}

// Majority returns the most frequent value in values and how often it occurs.
// Ties go to the value that appeared first. Empty input yields Vote{"", 0}.
func Majority(values []string) Vote {
	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}

	var best Vote
	for _, v := range order {
		if c := counts[v]; c > best.Count {
			best = Vote{Value: v, Count: c}
		}
	}
	return best
}
