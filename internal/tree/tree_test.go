package tree

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navscout/internal/types"
)

func TestBuildNestsByPath(t *testing.T) {
	states := []types.DiscoveryState{
		{Path: []string{"Women"}, NewLinks: map[string]string{
			"Dresses": "https://shop.example/c/dresses",
		}, NewExpandables: []string{"Clothing"}},
		{Path: []string{"Women", "Clothing"}, NewLinks: map[string]string{
			"Knitwear": "https://shop.example/c/knitwear",
		}},
	}

	got := Build(states)
	want := &types.Category{Children: []*types.Category{
		{Name: "Women", Children: []*types.Category{
			{Name: "Dresses", URL: "https://shop.example/c/dresses"},
			{Name: "Clothing", Children: []*types.Category{
				{Name: "Knitwear", URL: "https://shop.example/c/knitwear"},
			}},
		}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossBranchURLsDroppedFromAllBranches(t *testing.T) {
	giftURL := "https://shop.example/c/gift-cards"
	states := []types.DiscoveryState{
		{Path: []string{"Women"}, NewLinks: map[string]string{
			"Gift Cards": giftURL,
			"Dresses":    "https://shop.example/c/dresses",
		}},
		{Path: []string{"Men"}, NewLinks: map[string]string{
			"Gift Cards": giftURL,
			"Jackets":    "https://shop.example/c/jackets",
		}},
	}

	got := Build(states)
	walk(got, func(n *types.Category) {
		assert.NotEqual(t, giftURL, n.URL, "shared URL must be gone from every branch")
	})
	women := got.Child("Women")
	require.NotNil(t, women)
	assert.NotNil(t, women.Child("Dresses"))
	men := got.Child("Men")
	require.NotNil(t, men)
	assert.NotNil(t, men.Child("Jackets"))
}

func TestHomepageLinksDropped(t *testing.T) {
	states := []types.DiscoveryState{
		{Path: []string{"Women"}, NewLinks: map[string]string{
			"Home":    "https://shop.example/",
			"Dresses": "https://shop.example/c/dresses",
		}},
	}
	got := Build(states)
	women := got.Child("Women")
	require.NotNil(t, women)
	assert.Nil(t, women.Child("Home"))
	assert.NotNil(t, women.Child("Dresses"))
}

func TestProductLinksDropped(t *testing.T) {
	cases := []struct {
		name   string
		label  string
		url    string
		wantGo bool // survives filtering
	}{
		{"product path segment", "Best Seller", "https://shop.example/product/red-dress", false},
		{"p path segment", "Red Dress", "https://shop.example/p/12345", false},
		{"item path segment", "Thing", "https://shop.example/item/9", false},
		{"discount name", "50% off everything", "https://shop.example/c/deals", false},
		{"price name", "From $19.99", "https://shop.example/c/cheap", false},
		{"long product-noun name", "Floral Print Midi Dress Blue", "https://shop.example/c/x1", false},
		{"plain category", "Dresses", "https://shop.example/c/dresses", true},
		{"short noun name", "Midi Dress", "https://shop.example/c/midi", true},
		{"long name without noun", "New Season Highlights For Everyone", "https://shop.example/c/new", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			states := []types.DiscoveryState{
				{Path: []string{"Women"}, NewLinks: map[string]string{tc.label: tc.url}},
			}
			got := Build(states)
			women := got.Child("Women")
			if tc.wantGo {
				require.NotNil(t, women)
				assert.NotNil(t, women.Child(tc.label))
			} else {
				if women == nil {
					return
				}
				assert.Nil(t, women.Child(tc.label))
			}
		})
	}
}

func TestParentChildDuplicateURLDropped(t *testing.T) {
	u := "https://shop.example/c/dresses"
	states := []types.DiscoveryState{
		{Path: []string{"Women"}, NewLinks: map[string]string{"Dresses": u}},
		{Path: []string{"Women", "Dresses"}, NewLinks: map[string]string{
			"Dresses":      u, // "view all" style self link
			"Midi Dresses": "https://shop.example/c/midi-dresses",
		}},
	}
	got := Build(states)
	dresses := got.Child("Women").Child("Dresses")
	require.NotNil(t, dresses)
	assert.Equal(t, u, dresses.URL)
	for _, child := range dresses.Children {
		assert.NotEqual(t, u, child.URL, "child duplicating parent URL must be dropped")
	}
	assert.NotNil(t, dresses.Child("Midi Dresses"))
}

func TestLeafStateKeepsOwnURL(t *testing.T) {
	states := []types.DiscoveryState{
		{Path: []string{"Women"}, NewExpandables: []string{"Lingerie"}},
		{Path: []string{"Women", "Lingerie"}, IsLeafPage: true, NewLinks: map[string]string{
			"Lingerie": "https://shop.example/c/lingerie",
		}},
	}
	got := Build(states)
	lingerie := got.Child("Women").Child("Lingerie")
	require.NotNil(t, lingerie)
	assert.Equal(t, "https://shop.example/c/lingerie", lingerie.URL)
	assert.Empty(t, lingerie.Children)
}

func TestEmptyStatesBuildEmptyTree(t *testing.T) {
	got := Build(nil)
	assert.Equal(t, 0, got.Count())
}
