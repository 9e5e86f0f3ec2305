package domain

import (
	"math"
	"sort"
)

// tCritical95 maps degrees of freedom to the two-tailed 95% critical
// t-value. Degrees of freedom not listed resolve to the value for the
// largest tabulated df at or below them.
var tCritical95 = map[int]float64{
	1:   12.706,
	2:   4.303,
	3:   3.182,
	4:   2.776,
	5:   2.571,
	6:   2.447,
	7:   2.365,
	8:   2.306,
	9:   2.262,
	10:  2.228,
	15:  2.131,
	20:  2.086,
	30:  2.042,
	50:  2.009,
	100: 1.984,
}

// tThreshold pairs a t-value threshold with the two-tailed p-value it
// implies at a given df.
type tThreshold struct {
	t float64
	p float64
}

// pValueTable holds approximate two-tailed p-value thresholds per df
// bucket. Lookups use the nearest tabulated df and return the first
// threshold met in listed order. This is a deliberately coarse,
// non-interpolated approximation; its exact numeric output is part of the
// tool's contract across versions.
var pValueTable = map[int][]tThreshold{
	2:   {{4.303, 0.05}, {6.965, 0.01}},
	3:   {{3.182, 0.05}, {4.541, 0.01}},
	4:   {{2.776, 0.05}, {3.747, 0.01}},
	5:   {{2.571, 0.05}, {3.365, 0.01}},
	6:   {{2.447, 0.05}, {3.143, 0.01}},
	7:   {{2.365, 0.05}, {2.998, 0.01}},
	8:   {{2.306, 0.05}, {2.896, 0.01}},
	9:   {{2.262, 0.05}, {2.821, 0.01}},
	10:  {{2.228, 0.05}, {2.764, 0.01}},
	15:  {{2.131, 0.05}, {2.602, 0.01}},
	20:  {{2.086, 0.05}, {2.528, 0.01}},
	30:  {{2.042, 0.05}, {2.457, 0.01}},
	50:  {{2.009, 0.05}, {2.403, 0.01}},
	100: {{1.984, 0.05}, {2.364, 0.01}},
}

// pValueDFs lists the tabulated df buckets in ascending order so that
// nearest-df lookups resolve ties toward the smaller bucket.
var pValueDFs = func() []int {
	dfs := make([]int, 0, len(pValueTable))
	for df := range pValueTable {
		dfs = append(dfs, df)
	}
	sort.Ints(dfs)
	return dfs
}()

// tCritical returns the two-tailed 95% critical t-value for the given
// degrees of freedom, stepping down to the largest tabulated df at or
// below it and falling back to the normal-approximation constant 1.96.
func tCritical(df int) float64 {
	if t, ok := tCritical95[df]; ok {
		return t
	}
	best := 0
	for tabulated := range tCritical95 {
		if df >= tabulated && tabulated > best {
			best = tabulated
		}
	}
	if best == 0 {
		return 1.96
	}
	return tCritical95[best]
}

// approxPValue looks up an approximate two-tailed p-value for the given
// t-statistic using the nearest tabulated df bucket. A t-statistic below
// every threshold yields 1.0 (not significant).
func approxPValue(tStat float64, df int) float64 {
	tAbs := math.Abs(tStat)

	closest := pValueDFs[0]
	for _, tabulated := range pValueDFs {
		if math.Abs(float64(tabulated-df)) < math.Abs(float64(closest-df)) {
			closest = tabulated
		}
	}

	for _, threshold := range pValueTable[closest] {
		if tAbs >= threshold.t {
			return threshold.p
		}
	}
	return 1.0
}

// CalculateConfidenceInterval computes a two-sided 95% confidence interval
// for the mean of n observations with the given sample standard deviation.
// A single observation carries no interval information, so n < 2 collapses
// the interval to (mean, mean). Bounds are rounded to 2 decimal places.
func CalculateConfidenceInterval(mean, stddev float64, n int) (lower, upper float64) {
	if n < 2 {
		return mean, mean
	}

	margin := tCritical(n-1) * (stddev / math.Sqrt(float64(n)))
	return round2(mean - margin), round2(mean + margin)
}

// CalculateStats groups run results by (input id, model) and computes
// descriptive statistics with confidence intervals per group. Output order
// follows first occurrence in the input, but callers must not rely on it.
func CalculateStats(results []RunResult) []InputStats {
	type groupKey struct{ inputID, model string }

	grouped := make(map[groupKey][]int)
	order := make([]groupKey, 0)
	for _, r := range results {
		key := groupKey{r.InputID, r.Model}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], r.Judge.Score)
	}

	stats := make([]InputStats, 0, len(order))
	for _, key := range order {
		scores := grouped[key]
		n := len(scores)

		var mean, stddev float64
		if n == 1 {
			// Avoid the variance formula entirely for a lone sample.
			mean = float64(scores[0])
			stddev = 0
		} else {
			mean = intMean(scores)
			stddev = math.Sqrt(intVariance(scores, mean))
		}

		lower, upper := CalculateConfidenceInterval(mean, stddev, n)

		minScore, maxScore := scores[0], scores[0]
		for _, s := range scores[1:] {
			if s < minScore {
				minScore = s
			}
			if s > maxScore {
				maxScore = s
			}
		}

		stats = append(stats, InputStats{
			InputID:  key.inputID,
			Model:    key.model,
			Runs:     n,
			Scores:   scores,
			Mean:     round2(mean),
			StdDev:   round2(stddev),
			MinScore: minScore,
			MaxScore: maxScore,
			CILower:  lower,
			CIUpper:  upper,
		})
	}

	return stats
}

// WelchTTest runs Welch's unequal-variance t-test over two score samples
// and returns the t-statistic (rounded to 3 decimal places) and an
// approximate two-tailed p-value.
//
// Samples with fewer than 2 observations carry no variance information and
// yield (0, 1) — "no evidence", not an error. When both samples have zero
// variance the difference is treated as deterministic: differing means
// yield (±Inf, 0.01) with the sign of the larger mean, equal means yield
// (0, 1).
func WelchTTest(scoresA, scoresB []int) (tStatistic, pValue float64) {
	nA, nB := len(scoresA), len(scoresB)
	if nA < 2 || nB < 2 {
		return 0.0, 1.0
	}

	meanA, meanB := intMean(scoresA), intMean(scoresB)
	varA, varB := intVariance(scoresA, meanA), intVariance(scoresB, meanB)

	se := math.Sqrt(varA/float64(nA) + varB/float64(nB))
	if se == 0 {
		if meanA != meanB {
			if meanA > meanB {
				return math.Inf(1), 0.01
			}
			return math.Inf(-1), 0.01
		}
		return 0.0, 1.0
	}

	tStat := (meanA - meanB) / se

	// Welch-Satterthwaite degrees of freedom.
	num := math.Pow(varA/float64(nA)+varB/float64(nB), 2)
	denom := math.Pow(varA/float64(nA), 2)/float64(nA-1) +
		math.Pow(varB/float64(nB), 2)/float64(nB-1)

	var df float64
	if denom == 0 {
		df = float64(nA + nB - 2)
	} else {
		df = num / denom
	}

	return round3(tStat), approxPValue(tStat, int(df))
}

// NamedSummary pairs a display name, usually the variant name, with the
// run summary it should be attributed to in comparisons.
type NamedSummary struct {
	Name    string
	Summary RunSummary
}

// CompareVariantsSignificance runs pairwise Welch's t-tests over the
// pooled judge scores of named run summaries, covering every unordered
// pair. Pairs where either side has no scores are skipped. Significance is
// declared at p <= 0.05, and the winner is the variant with the higher
// mean.
func CompareVariantsSignificance(summaries []NamedSummary) []SignificanceResult {
	var results []SignificanceResult

	for i, first := range summaries {
		for _, second := range summaries[i+1:] {
			scores1 := first.Summary.Scores()
			scores2 := second.Summary.Scores()
			if len(scores1) == 0 || len(scores2) == 0 {
				continue
			}

			mean1, mean2 := intMean(scores1), intMean(scores2)
			tStat, pValue := WelchTTest(scores1, scores2)
			significant := pValue <= 0.05

			winner := ""
			if significant {
				if mean1 > mean2 {
					winner = first.Name
				} else {
					winner = second.Name
				}
			}

			results = append(results, SignificanceResult{
				Variant1:    first.Name,
				Variant2:    second.Name,
				Mean1:       round2(mean1),
				Mean2:       round2(mean2),
				TStatistic:  tStat,
				PValue:      pValue,
				Significant: significant,
				Winner:      winner,
			})
		}
	}

	return results
}

// intMean returns the arithmetic mean of integer scores.
func intMean(scores []int) float64 {
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

// intVariance returns the sample (n-1 denominator) variance.
// Callers guarantee len(scores) >= 2.
func intVariance(scores []int, mean float64) float64 {
	var sum float64
	for _, s := range scores {
		d := float64(s) - mean
		sum += d * d
	}
	return sum / float64(len(scores)-1)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
