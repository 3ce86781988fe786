package metrics

import "math"

// Partition comparison metrics.
//
// Shadow evaluation treats a batch of verdicts as a partition of the traffic:
// each request is assigned a label (its risk band index) by the production
// scorer and another by the candidate scorer. Comparing the two partitions
// tells us whether a candidate change reshuffles the population, independent
// of whether individual labels line up by name.

// AdjustedRandIndex computes the ARI between two labelings of the same
// requests.
//
// ARI = (RI - Expected_RI) / (Max_RI - Expected_RI)
// where RI counts request pairs the two labelings agree on.
//
// Values range from -1 (worse than random) to 1 (identical partition).
// 0 = agreement no better than chance.
func AdjustedRandIndex(production, candidate []int) float64 {
	n := len(production)
	if n != len(candidate) || n < 2 {
		return 0.0
	}

	nij, rowSums, colSums := contingency(production, candidate)

	sumNijC2 := 0.0
	for i := range nij {
		for j := range nij[i] {
			sumNijC2 += comb2(nij[i][j])
		}
	}

	sumAiC2 := 0.0
	for _, a := range rowSums {
		sumAiC2 += comb2(a)
	}

	sumBjC2 := 0.0
	for _, b := range colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(n)
	if nC2 == 0 {
		return 0.0
	}

	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		// Both labelings are a single block; trivially identical.
		return 1.0
	}

	return (sumNijC2 - expectedIndex) / denominator
}

// VariationOfInformation computes the VI distance between two labelings.
//
// VI(C, C') = H(C|C') + H(C'|C)
//
// Lower is better; 0 means the candidate assigns exactly the same groups as
// production, possibly under different names.
func VariationOfInformation(production, candidate []int) float64 {
	n := len(production)
	if n != len(candidate) || n < 2 {
		return 0.0
	}

	nf := float64(n)
	nij, rowSums, colSums := contingency(production, candidate)

	hCgivenCp := 0.0
	hCpgivenC := 0.0
	for i := range nij {
		for j := range nij[i] {
			if nij[i][j] == 0 {
				continue
			}
			pij := float64(nij[i][j]) / nf
			if colSums[j] > 0 {
				hCgivenCp -= pij * math.Log2(float64(nij[i][j])/float64(colSums[j]))
			}
			if rowSums[i] > 0 {
				hCpgivenC -= pij * math.Log2(float64(nij[i][j])/float64(rowSums[i]))
			}
		}
	}

	return hCgivenCp + hCpgivenC
}

// contingency builds the label co-occurrence matrix and its marginals.
func contingency(a, b []int) (nij [][]int, rowSums, colSums []int) {
	aMap := labelIndex(a)
	bMap := labelIndex(b)

	nij = make([][]int, len(aMap))
	for i := range nij {
		nij[i] = make([]int, len(bMap))
	}
	for k := range a {
		nij[aMap[a[k]]][bMap[b[k]]]++
	}

	rowSums = make([]int, len(aMap))
	colSums = make([]int, len(bMap))
	for i := range nij {
		for j := range nij[i] {
			rowSums[i] += nij[i][j]
			colSums[j] += nij[i][j]
		}
	}
	return nij, rowSums, colSums
}

// labelIndex maps each distinct label to a dense index, first-seen order.
func labelIndex(labels []int) map[int]int {
	idx := make(map[int]int)
	for _, l := range labels {
		if _, ok := idx[l]; !ok {
			idx[l] = len(idx)
		}
	}
	return idx
}

// comb2 computes C(n, 2) = n*(n-1)/2
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
