package delta

// match is one matched (refStart, targetStart, length) region in an LCS.
type match struct {
	refStart, targetStart, length int
}

// DefaultMaxDistance bounds the banded Myers forward search. Pairs whose
// length difference already exceeds this are rejected without running the
// search at all.
const DefaultMaxDistance = 1000

// shortSequenceThreshold: below this length on the shorter side, the
// banded forward search isn't worth its setup cost and a greedy scan finds
// the same matches directly (spec §4.I).
const shortSequenceThreshold = 10

// computeLCS finds common subsequence regions between a and b, bounded by
// maxDistance edits. Returns an empty slice if the sequences are farther
// apart than maxDistance allows.
func computeLCS(a, b []byte, maxDistance int) []match {
	n, m := len(a), len(b)

	diff := n - m
	if diff < 0 {
		diff = -diff
	}
	if diff > maxDistance {
		return nil
	}

	if n < shortSequenceThreshold || m < shortSequenceThreshold {
		return computeLCSGreedy(a, b)
	}

	if !bandedReachesEnd(a, b, maxDistance) {
		return nil
	}

	return lcsDP(a, b)
}

// bandedReachesEnd runs Myers' forward search along diagonals bounded by
// maxDistance, tracking the furthest-reaching x on each diagonal. It only
// answers whether the two sequences are within maxDistance edits of each
// other; lcsDP does the actual match extraction once that's established.
func bandedReachesEnd(a, b []byte, maxDistance int) bool {
	n, m := len(a), len(b)
	offset := maxDistance + 1
	v := make([]int, 2*offset+1)

	for d := 0; d <= maxDistance; d++ {
		for k := -d; k <= d; k += 2 {
			kIdx := k + offset
			var x int
			if k == -d || (k != d && v[kIdx-1] < v[kIdx+1]) {
				x = v[kIdx+1]
			} else {
				x = v[kIdx-1] + 1
			}
			y := x - k

			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[kIdx] = x

			if x >= n && y >= m {
				return true
			}
		}
	}
	return false
}

// lcsDP extracts concrete match segments via a standard LCS length table,
// then backtracks into maximal matching runs. Only called once
// bandedReachesEnd has confirmed the sequences are within range, so the
// quadratic table here runs on pairs already known to be similar.
func lcsDP(a, b []byte) []match {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	var matches []match
	i, j := n, m
	for i > 0 && j > 0 {
		if a[i-1] == b[j-1] {
			end := i
			for i > 0 && j > 0 && a[i-1] == b[j-1] {
				i--
				j--
			}
			matches = append(matches, match{refStart: i, targetStart: j, length: end - i})
		} else if dp[i-1][j] >= dp[i][j-1] {
			i--
		} else {
			j--
		}
	}

	for l, r := 0, len(matches)-1; l < r; l, r = l+1, r-1 {
		matches[l], matches[r] = matches[r], matches[l]
	}
	return matches
}

// computeLCSGreedy is the short-sequence fallback: scan left to right,
// extending each matching run as far as it goes and skipping ahead one
// position on either side when it breaks.
func computeLCSGreedy(a, b []byte) []match {
	var matches []match
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			startI, startJ := i, j
			for i < len(a) && j < len(b) && a[i] == b[j] {
				i++
				j++
			}
			matches = append(matches, match{refStart: startI, targetStart: startJ, length: i - startI})
			continue
		}
		switch {
		case i < len(a)-1 && j < len(b)-1 && a[i+1] == b[j]:
			i++
		case i < len(a)-1 && j < len(b)-1 && a[i] == b[j+1]:
			j++
		case i < len(a)-1 && j < len(b)-1:
			i++
			j++
		default:
			i = len(a)
			j = len(b)
		}
	}
	return matches
}
