package snapshot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func menuSnapshot(n int) Snapshot {
	var raw string
	for i := 0; i < n; i++ {
		raw += fmt.Sprintf("  link \"Item %d\" {main-nav} -> https://shop.example/c/%d\n", i, i)
	}
	return New(raw)
}

func TestDiffIdempotent(t *testing.T) {
	snaps := []Snapshot{
		{},
		New(`link "Women" -> https://shop.example/women`),
		menuSnapshot(8),
	}
	for _, s := range snaps {
		d := Compute(s, s)
		assert.True(t, d.Empty())
		assert.Empty(t, d.Added)
		assert.Empty(t, d.Removed)
		assert.Equal(t, 0, d.AddedCount)
		assert.Equal(t, 0, d.RemovedCount)
	}
}

func TestDiffAddedPreservesAfterOrder(t *testing.T) {
	before := New("heading \"Shop\"\n")
	after := New("heading \"Shop\"\n  link \"Dresses\" -> /c/dresses\n  link \"Tops\" -> /c/tops\n")

	d := Compute(before, after)
	require.Equal(t, 2, d.AddedCount)
	assert.Equal(t, `  link "Dresses" -> /c/dresses`, d.Added[0])
	assert.Equal(t, `  link "Tops" -> /c/tops`, d.Added[1])
	assert.Equal(t, 0, d.RemovedCount)
}

func TestDiffMovedLinesAreNotChanges(t *testing.T) {
	before := New("link \"A\" -> /a\nlink \"B\" -> /b\n")
	after := New("link \"B\" -> /b\nlink \"A\" -> /a\n")

	d := Compute(before, after)
	assert.True(t, d.Empty(), "reordering alone is not a change: %+v", d)
}

func TestSubstantialRevealThreshold(t *testing.T) {
	base := New("heading \"Shop\"\n")

	five := Compute(base, New(base.Text()+"\n"+menuSnapshot(5).Text()))
	require.Equal(t, 5, five.AddedCount)
	assert.True(t, five.SubstantialReveal(0), "exactly 5 actionable lines is substantial")

	four := Compute(base, New(base.Text()+"\n"+menuSnapshot(4).Text()))
	require.Equal(t, 4, four.AddedCount)
	assert.False(t, four.SubstantialReveal(0), "4 added lines is below threshold")
}

func TestSubstantialRevealNeedsActionableRole(t *testing.T) {
	base := New("heading \"Shop\"\n")
	var raw string
	for i := 0; i < 6; i++ {
		raw += fmt.Sprintf("heading \"Banner %d\"\n", i)
	}
	d := Compute(base, New(base.Text()+"\n"+raw))
	require.GreaterOrEqual(t, d.AddedCount, 5)
	assert.False(t, d.SubstantialReveal(0), "headings alone never count as a menu reveal")
}

func TestDiffReplacement(t *testing.T) {
	before := menuSnapshot(6)
	after := New("  link \"Sale\" {tab-panel} -> /sale\n  link \"New In\" {tab-panel} -> /new\n")

	d := Compute(before, after)
	assert.True(t, d.IsReplacement)
	assert.Equal(t, 6, d.RemovedCount)
	assert.Equal(t, 2, d.AddedCount)
}
