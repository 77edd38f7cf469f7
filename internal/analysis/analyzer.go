package analysis

import (
	"github.com/daryltucker/consistency-runner/internal/model"
)

// Analyze computes agreement metrics over the texts of successful runs.
// The majority is taken over normalized texts and every text is scored
// against it; both rates are 0 for an empty batch.
func Analyze(texts []string) model.ConsistencyMetrics {
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = Normalize(t)
	}

	vote := Majority(normalized)
	metrics := model.ConsistencyMetrics{
		MajorityNormalizedText: vote.Value,
		SuccessCount:           len(texts),
		TotalCount:             len(texts),
	}
	if len(texts) == 0 {
		return metrics
	}

	metrics.ExactAgreementRate = float64(vote.Count) / float64(len(texts))

	var sum float64
	for _, n := range normalized {
		sum += Similarity(vote.Value, n)
	}
	metrics.AverageSimilarity = sum / float64(len(normalized))

	return metrics
}
