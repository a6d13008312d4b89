// Package merge implements the line-based LCS diff and three-way textual
// merge used to reconcile a client's local edits against a server's
// remote content relative to a shared base.
package merge

import "strings"

// ChangeRegion describes a contiguous span of base lines replaced by
// newLines in one side's diff against the base.
type ChangeRegion struct {
	BaseStart int
	BaseEnd   int
	NewLines  []string
}

// splitLines splits s on "\n" the way the spec's line model requires: no
// trailing-newline special-casing, every line (including a trailing empty
// one produced by a trailing "\n") is significant.
func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

// Diff computes the ordered sequence of change regions that transform base
// into changed, derived from the longest common subsequence of the two line
// arrays via a standard O(m*n) DP with backtrack.
func Diff(base, changed []string) []ChangeRegion {
	m, n := len(base), len(changed)

	// dp[i][j] = LCS length of base[i:] and changed[j:].
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == changed[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var regions []ChangeRegion

	i, j := 0, 0
	for i < m || j < n {
		if i < m && j < n && base[i] == changed[j] {
			i++
			j++
			continue
		}

		regionBaseStart := i
		regionChangedStart := j

		// Advance i and/or j until we re-sync on a common line (or run out),
		// walking the backtrack that produced the optimal LCS.
		for i < m || j < n {
			if i < m && j < n && base[i] == changed[j] {
				break
			}
			if j < n && (i == m || dp[i][j+1] >= dp[i+1][j]) {
				j++
				continue
			}
			if i < m {
				i++
				continue
			}
			break
		}

		regions = append(regions, ChangeRegion{
			BaseStart: regionBaseStart,
			BaseEnd:   i,
			NewLines:  append([]string(nil), changed[regionChangedStart:j]...),
		})
	}

	return regions
}
