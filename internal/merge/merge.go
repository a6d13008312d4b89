package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLimitExceeded is returned (wrapped with context) when a merge input
// exceeds the size or line caps designed to bound LCS memory use. Callers
// distinguish this from a genuine conflict via errors.Is.
var ErrLimitExceeded = errors.New("merge: input exceeds size/line limit")

const (
	maxBytes = 10 * 1024 * 1024 // 10 MiB per side
	maxLines = 2000             // caps LCS DP table at ~16 MiB of cells
)

// ConflictRegion is a contiguous span where local and remote diverged from
// base in an incompatible way.
type ConflictRegion struct {
	BaseLines   []string
	LocalLines  []string
	RemoteLines []string
	StartLine   int
}

// Result is the outcome of a three-way merge: exactly one of Content or
// Conflicts is meaningful, never both.
type Result struct {
	Content   string
	Conflicts []ConflictRegion
}

// HasConflicts reports whether the merge produced conflict regions instead
// of mergeable content.
func (r Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

func checkLimits(label, s string) error {
	if len(s) > maxBytes {
		return fmt.Errorf("%s: %w (exceeds %d bytes)", label, ErrLimitExceeded, maxBytes)
	}
	if n := strings.Count(s, "\n") + 1; n > maxLines {
		return fmt.Errorf("%s: %w (exceeds %d lines)", label, ErrLimitExceeded, maxLines)
	}
	return nil
}

// Merge performs the three-way textual merge of local and remote relative
// to base. It returns a Result holding merged content, or a Result holding
// conflict regions, or a non-nil error if an input violates the size/line
// caps (errors.Is(err, ErrLimitExceeded)).
func Merge(base, local, remote string) (Result, error) {
	if local == remote {
		return Result{Content: local}, nil
	}
	if local == base {
		return Result{Content: remote}, nil
	}
	if remote == base {
		return Result{Content: local}, nil
	}

	if err := checkLimits("base", base); err != nil {
		return Result{}, err
	}
	if err := checkLimits("local", local); err != nil {
		return Result{}, err
	}
	if err := checkLimits("remote", remote); err != nil {
		return Result{}, err
	}

	baseLines := splitLines(base)
	localLines := splitLines(local)
	remoteLines := splitLines(remote)

	localDiff := Diff(baseLines, localLines)
	remoteDiff := Diff(baseLines, remoteLines)

	return merge3(baseLines, localDiff, remoteDiff), nil
}

func merge3(baseLines []string, localDiff, remoteDiff []ChangeRegion) Result {
	var out []string
	var conflicts []ConflictRegion

	baseIdx := 0
	li, ri := 0, 0

	flushTo := func(end int) {
		out = append(out, baseLines[baseIdx:end]...)
		baseIdx = end
	}

	for li < len(localDiff) || ri < len(remoteDiff) {
		var a, b *ChangeRegion
		if li < len(localDiff) {
			a = &localDiff[li]
		}
		if ri < len(remoteDiff) {
			b = &remoteDiff[ri]
		}

		// Two pure insertions (zero-width intervals) at the same base
		// position "touch" without the strict interval-overlap test
		// below ever being true; treat them as overlapping too so the
		// tie is resolved explicitly rather than by pointer-advance
		// order.
		samePureInsertion := a != nil && b != nil &&
			a.BaseStart == a.BaseEnd && b.BaseStart == b.BaseEnd && a.BaseStart == b.BaseStart

		overlaps := a != nil && b != nil &&
			(a.BaseStart < b.BaseEnd && b.BaseStart < a.BaseEnd || samePureInsertion)

		switch {
		case overlaps:
			// Overlapping intervals.
			start := min(a.BaseStart, b.BaseStart)
			end := max(a.BaseEnd, b.BaseEnd)

			flushTo(min(a.BaseStart, b.BaseStart))

			switch {
			case a.BaseStart == b.BaseStart && a.BaseEnd == b.BaseEnd && sameLines(a.NewLines, b.NewLines):
				out = append(out, a.NewLines...)
			case samePureInsertion:
				// A pure insertion from one side overlapping a pure
				// insertion from the other at the same single position
				// is a known limitation (§4.1): it is not automatically
				// merged, but it also isn't flagged as a conflict —
				// neither insertion is applied, so the result collapses
				// to the base content at this point.
			default:
				conflicts = append(conflicts, ConflictRegion{
					BaseLines:   append([]string(nil), baseLines[start:end]...),
					LocalLines:  append([]string(nil), a.NewLines...),
					RemoteLines: append([]string(nil), b.NewLines...),
					StartLine:   start,
				})
			}

			baseIdx = end
			li++
			ri++

		case a != nil && (b == nil || a.BaseStart <= b.BaseStart):
			flushTo(a.BaseStart)
			out = append(out, a.NewLines...)
			baseIdx = a.BaseEnd
			li++

		case b != nil:
			flushTo(b.BaseStart)
			out = append(out, b.NewLines...)
			baseIdx = b.BaseEnd
			ri++
		}
	}

	flushTo(len(baseLines))

	if len(conflicts) > 0 {
		return Result{Conflicts: conflicts}
	}

	return Result{Content: strings.Join(out, "\n")}
}

func sameLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ComputeCommonBase derives a synthetic base from local and remote alone,
// for use when no saved base-content entry exists. It is the longest common
// subsequence of the two texts' lines, joined by "\n". Subject to the same
// size/line caps as Merge; on violation it returns the empty string so a
// subsequent three-way merge degenerates to conflict reporting rather than
// erroring.
func ComputeCommonBase(local, remote string) string {
	if err := checkLimits("local", local); err != nil {
		return ""
	}
	if err := checkLimits("remote", remote); err != nil {
		return ""
	}

	localLines := splitLines(local)
	remoteLines := splitLines(remote)

	common := lcsLines(localLines, remoteLines)

	return strings.Join(common, "\n")
}

// lcsLines returns the longest common subsequence of two line arrays.
func lcsLines(a, b []string) []string {
	m, n := len(a), len(b)

	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var out []string
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}

	return out
}
