package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                     "",
		"   ":                  "",
		"Paris":                "paris",
		"  Paris \n":           "paris",
		"The\tCapital\n\nIS  ": "the capital is",
		"ÉCOLE  Normale":       "école normale",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"", " a  B\tc ", "PARIS", "Ünïcode Space", "x\r\ny"}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Similarity("", ""))
	require.Equal(t, 1.0, Similarity("...", "!!"))
	require.Equal(t, 1.0, Similarity("Paris is nice", "paris IS nice"))
	require.Equal(t, 0.0, Similarity("paris", ""))
	require.Equal(t, 0.0, Similarity("paris", "london"))

	// {the, capital, is, paris} vs {paris}
	require.InDelta(t, 0.25, Similarity("The capital is Paris.", "Paris"), 1e-9)
	// duplicates collapse into a set
	require.InDelta(t, 0.5, Similarity("a a a b", "a c"), 1e-9)
	require.InDelta(t, 1.0/3.0, Similarity("snake_case x", "snake_case y"), 1e-9)
}

func TestSimilarityIsSymmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"a b c", "b c d"},
		{"", "word"},
		{"The quick brown fox", "the lazy dog"},
		{"x_1 y_2", "X_1"},
	}
	for _, p := range pairs {
		require.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "pair %q", p)
	}
}

func TestMajority(t *testing.T) {
	t.Parallel()

	require.Equal(t, Vote{Value: "", Count: 0}, Majority(nil))
	require.Equal(t, Vote{Value: "x", Count: 2}, Majority([]string{"x", "x", "y"}))
	require.Equal(t, Vote{Value: "y", Count: 3}, Majority([]string{"x", "y", "y", "x", "y"}))
}

func TestMajorityTieGoesToFirstSeen(t *testing.T) {
	t.Parallel()

	require.Equal(t, Vote{Value: "b", Count: 2}, Majority([]string{"b", "a", "a", "b"}))
	require.Equal(t, Vote{Value: "", Count: 1}, Majority([]string{"", "z"}))
}

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	m := Analyze(nil)
	require.Zero(t, m.ExactAgreementRate)
	require.Zero(t, m.AverageSimilarity)
	require.Empty(t, m.MajorityNormalizedText)
	require.Zero(t, m.SuccessCount)
}

func TestAnalyzeIdenticalAfterNormalization(t *testing.T) {
	t.Parallel()

	m := Analyze([]string{"paris", " Paris ", "PARIS"})
	require.Equal(t, 1.0, m.ExactAgreementRate)
	require.Equal(t, 1.0, m.AverageSimilarity)
	require.Equal(t, "paris", m.MajorityNormalizedText)
	require.Equal(t, 3, m.SuccessCount)
}

func TestAnalyzeMixed(t *testing.T) {
	t.Parallel()

	m := Analyze([]string{"Paris", "paris", "The answer is Paris"})
	require.Equal(t, "paris", m.MajorityNormalizedText)
	require.InDelta(t, 2.0/3.0, m.ExactAgreementRate, 1e-9)
	// scores: 1, 1, 1/4
	require.InDelta(t, 2.25/3.0, m.AverageSimilarity, 1e-9)
}
