package snapshot

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultRevealMinAdded is the threshold above which a diff counts as a
// real menu reveal rather than a popup. Empirically chosen; menus with
// fewer than this many items produce false negatives.
const DefaultRevealMinAdded = 5

// Diff is the line-set difference between two snapshots. Added preserves
// the order of the after snapshot, Removed the order of before.
type Diff struct {
	Added         []string
	Removed       []string
	AddedCount    int
	RemovedCount  int
	IsReplacement bool
}

// Empty reports whether nothing changed between the two snapshots.
func (d *Diff) Empty() bool { return d.AddedCount == 0 && d.RemovedCount == 0 }

// SubstantialReveal reports whether the diff looks like a menu opening:
// at least minAdded new lines, at least one of them actionable. Pass
// minAdded <= 0 for the default threshold.
func (d *Diff) SubstantialReveal(minAdded int) bool {
	if minAdded <= 0 {
		minAdded = DefaultRevealMinAdded
	}
	if d.AddedCount < minAdded {
		return false
	}
	for _, l := range d.Added {
		if IsActionable(l) {
			return true
		}
	}
	return false
}

// Compute diffs two snapshots. The line-level diff comes from
// diffmatchpatch; lines that merely moved (present on both sides) are
// then dropped so the result is a true set subtraction.
func Compute(before, after Snapshot) *Diff {
	d := &Diff{}
	if len(before.Lines) == 0 && len(after.Lines) == 0 {
		return d
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before.Text()+"\n", after.Text()+"\n")
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var added, removed []string
	for _, part := range diffs {
		switch part.Type {
		case diffmatchpatch.DiffInsert:
			added = append(added, splitLines(part.Text)...)
		case diffmatchpatch.DiffDelete:
			removed = append(removed, splitLines(part.Text)...)
		}
	}

	// Set semantics: a line both added and removed only moved.
	removedSet := countLines(removed)
	addedSet := countLines(added)
	for _, l := range added {
		if removedSet[l] > 0 {
			removedSet[l]--
			continue
		}
		d.Added = append(d.Added, l)
	}
	for _, l := range removed {
		if addedSet[l] > 0 {
			addedSet[l]--
			continue
		}
		d.Removed = append(d.Removed, l)
	}
	d.AddedCount = len(d.Added)
	d.RemovedCount = len(d.Removed)

	// A replacement swaps most of the previous content for new content,
	// the shape of a tab-panel switching panels.
	d.IsReplacement = d.AddedCount > 0 && d.RemovedCount > 0 &&
		d.RemovedCount*2 >= before.Len()
	return d
}

func splitLines(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			if i > start {
				out = append(out, text[start:i])
			}
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func countLines(lines []string) map[string]int {
	m := make(map[string]int, len(lines))
	for _, l := range lines {
		m[l]++
	}
	return m
}
