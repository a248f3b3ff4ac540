package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineRoundTrip(t *testing.T) {
	cases := []Line{
		{Role: "link", Name: "Women", URL: "https://shop.example/women"},
		{Role: "button", Name: "Shop All", Group: "main-nav", Depth: 2},
		{Role: "tab", Name: "Men", Group: "nav-tabs", Depth: 1},
		{Role: "heading", Name: "Trending Now"},
		{Role: "link", Name: "Dresses & Skirts", Group: "sub-menu", URL: "/c/dresses", Depth: 3},
	}
	for _, want := range cases {
		got, ok := ParseLine(FormatLine(want))
		require.True(t, ok, "line %q must parse", FormatLine(want))
		assert.Equal(t, want, got)
	}
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "just some text", `link Women`, `link "unterminated`} {
		_, ok := ParseLine(raw)
		assert.False(t, ok, "raw=%q", raw)
	}
}

func TestContains(t *testing.T) {
	s := New("link \"Women\" {main-nav} -> /women\n  link \"Dresses\" -> /c/dresses\n")
	assert.True(t, s.Contains(`"Dresses"`))
	assert.False(t, s.Contains(`"Shoes"`))
	assert.False(t, s.Contains(""), "empty marker never matches")
}

func TestIsActionable(t *testing.T) {
	assert.True(t, IsActionable(`link "Women" -> /women`))
	assert.True(t, IsActionable(`  button "Shop"`))
	assert.True(t, IsActionable(`tab "Men" {nav-tabs}`))
	assert.False(t, IsActionable(`heading "Trending"`))
	assert.False(t, IsActionable("not a snapshot line"))
}

func TestNewDropsBlankLines(t *testing.T) {
	s := New("link \"A\" -> /a\n\n   \nlink \"B\" -> /b\n")
	assert.Equal(t, 2, s.Len())
}
