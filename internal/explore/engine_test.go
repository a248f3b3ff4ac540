package explore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navscout/internal/browser"
	"navscout/internal/oracle"
	"navscout/internal/snapshot"
	"navscout/internal/types"
)

// fakePage scripts snapshot and URL transitions per interaction.
type fakePage struct {
	url            string
	current        string
	transitions    map[string]string // "<verb>:<role> <name>" or "navigate:<url>" -> snapshot text
	urlTransitions map[string]string // "click:<role> <name>" -> new page URL
	clicks         []browser.Locator
	hovers         []browser.Locator
	navigations    []string
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	p.url = url
	if next, ok := p.transitions["navigate:"+url]; ok {
		p.current = next
	}
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Capture(context.Context) (snapshot.Snapshot, error) {
	return snapshot.New(p.current), nil
}

func (p *fakePage) Click(_ context.Context, loc browser.Locator) error {
	p.clicks = append(p.clicks, loc)
	if next, ok := p.transitions["click:"+loc.String()]; ok {
		p.current = next
	}
	if u, ok := p.urlTransitions["click:"+loc.String()]; ok {
		p.url = u
	}
	return nil
}

func (p *fakePage) Hover(_ context.Context, loc browser.Locator) error {
	p.hovers = append(p.hovers, loc)
	if next, ok := p.transitions["hover:"+loc.String()]; ok {
		p.current = next
	}
	return nil
}

func (p *fakePage) Eval(context.Context, string) (string, error) { return "0", nil }
func (p *fakePage) Close() error                                 { return nil }

// fakeOracle gives deterministic verdicts and counts calls.
type fakeOracle struct {
	tabs        []string
	leafPaths   map[string]bool // path key -> classify as leaf listing
	bulkTrees   map[string]*types.Category
	bulkCalls   int
	pageCalls   int
	tabCalls    int
	buttonCalls int
}

func (o *fakeOracle) IdentifyTopLevelTabs(context.Context, snapshot.Snapshot) ([]string, error) {
	o.tabCalls++
	return o.tabs, nil
}

func (o *fakeOracle) ClassifyButtonRelationships(_ context.Context, pairs []oracle.ButtonPair) (map[string]types.Relationship, error) {
	o.buttonCalls++
	out := make(map[string]types.Relationship, len(pairs))
	for _, p := range pairs {
		out[p.Button] = types.RelExpands
	}
	return out, nil
}

func (o *fakeOracle) ExcludeUtilityGroups(_ context.Context, groups map[string][]string) (map[string]bool, error) {
	out := make(map[string]bool, len(groups))
	for sig := range groups {
		out[sig] = sig == "header-utils"
	}
	return out, nil
}

func (o *fakeOracle) ClassifyPageType(_ context.Context, _ *snapshot.Diff, path []string) (types.PageType, error) {
	o.pageCalls++
	if o.leafPaths[types.PathKey(path)] {
		return types.PageLeafListing, nil
	}
	return types.PageCategory, nil
}

func (o *fakeOracle) BulkExtract(_ context.Context, tab string, _ snapshot.Snapshot) (*types.Category, error) {
	o.bulkCalls++
	if t, ok := o.bulkTrees[tab]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("no scripted bulk tree for %q", tab)
}

func (o *fakeOracle) TokensUsed() int64 { return 1234 }

const site = "https://shop.example"

const home = `button "Menu" {header}
heading "Welcome to the shop"`

const mainMenu = home + `
  link "Women" {main-nav} -> https://shop.example/women
  link "Men" {main-nav} -> https://shop.example/men
  link "Kids" {main-nav} -> https://shop.example/kids
  link "Sale" {main-nav} -> https://shop.example/sale
  link "Brands" {main-nav} -> https://shop.example/brands`

const womenPanel = mainMenu + `
    link "Dresses" {sub-menu} -> https://shop.example/c/dresses
    link "Tops" {sub-menu} -> https://shop.example/c/tops
    link "Jeans" {sub-menu} -> https://shop.example/c/jeans
    link "Shoes" {sub-menu} -> https://shop.example/c/shoes
    button "Clothing" {sub-menu}
    link "My Account" {header-utils} -> https://shop.example/account`

const clothingPanel = womenPanel + `
      link "Knitwear" {fly-out} -> https://shop.example/c/knitwear
      link "Coats" {fly-out} -> https://shop.example/c/coats
      link "Blazers" {fly-out} -> https://shop.example/c/blazers
      link "Skirts" {fly-out} -> https://shop.example/c/skirts
      link "Basics" {fly-out} -> https://shop.example/c/basics`

const menPanel = mainMenu + `
    link "Jackets" {sub-menu} -> https://shop.example/c/m-jackets
    link "Shirts" {sub-menu} -> https://shop.example/c/m-shirts
    link "Trousers" {sub-menu} -> https://shop.example/c/m-trousers
    link "Accessories" {sub-menu} -> https://shop.example/c/m-accessories
    link "Shoes Men" {sub-menu} -> https://shop.example/c/m-shoes`

func incrementalPage() *fakePage {
	return &fakePage{
		transitions: map[string]string{
			"navigate:" + site:    home,
			"hover:button Menu":   mainMenu,
			"click:link Women":    womenPanel,
			"hover:link Women":    womenPanel,
			"hover:button Clothing": clothingPanel,
			"click:link Men":      menPanel,
		},
	}
}

func TestIncrementalDiscovery(t *testing.T) {
	page := incrementalPage()
	orc := &fakeOracle{tabs: []string{"Women", "Men"}}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	require.True(t, rec.Success, "reason=%s", rec.Reason)
	assert.Equal(t, types.MethodDOM, rec.Method)
	assert.Equal(t, int64(1234), rec.OracleTokens)
	assert.NotEmpty(t, rec.Steps)

	women := rec.Tree.Child("Women")
	require.NotNil(t, women, "tree: %+v", rec.Tree)
	assert.NotNil(t, women.Child("Dresses"))
	clothing := women.Child("Clothing")
	require.NotNil(t, clothing)
	assert.NotNil(t, clothing.Child("Knitwear"))

	men := rec.Tree.Child("Men")
	require.NotNil(t, men)
	assert.NotNil(t, men.Child("Jackets"))

	// Utility group flagged by the oracle never reaches the tree.
	walkTree(t, rec.Tree, func(n *types.Category) {
		assert.NotEqual(t, "My Account", n.Name)
	})
}

func TestDedupInvariant(t *testing.T) {
	page := incrementalPage()
	orc := &fakeOracle{tabs: []string{"Women", "Men"}}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	require.True(t, rec.Success)

	seen := make(map[string]int)
	for _, st := range rec.States {
		seen[types.PathKey(st.Path)]++
	}
	for key, n := range seen {
		assert.Equal(t, 1, n, "path %q recorded %d times", key, n)
	}
	assert.Empty(t, eng.stack, "stack drained")
}

func TestBulkSite(t *testing.T) {
	// Clicking the first tab changes nothing: all content pre-rendered.
	page := &fakePage{
		transitions: map[string]string{
			"navigate:" + site:  home,
			"hover:button Menu": womenPanel, // everything already visible
		},
	}
	orc := &fakeOracle{
		tabs: []string{"Women", "Men"},
		bulkTrees: map[string]*types.Category{
			"Women": {Name: "Women", Children: []*types.Category{
				{Name: "Dresses", URL: "https://shop.example/c/dresses"},
			}},
			"Men": {Name: "Men", Children: []*types.Category{
				{Name: "Jackets", URL: "https://shop.example/c/m-jackets"},
			}},
		},
	}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	require.True(t, rec.Success, "reason=%s", rec.Reason)
	assert.Equal(t, 2, orc.bulkCalls, "exactly one oracle call per tab")
	assert.Zero(t, orc.pageCalls, "no per-element classification in bulk mode")

	// One click per tab, nothing below tab level.
	require.Len(t, page.clicks, 2)
	for _, c := range page.clicks {
		assert.Contains(t, []string{"Women", "Men"}, c.Name)
	}

	require.NotNil(t, rec.Tree.Child("Women"))
	assert.NotNil(t, rec.Tree.Child("Women").Child("Dresses"))
	assert.NotNil(t, rec.Tree.Child("Men"))
}

func TestSelfLoopGuard(t *testing.T) {
	shopMenu := home + `
  tab "Shop" {main-nav}
  link "About" {main-nav} -> https://shop.example/about
  link "Stores" {main-nav} -> https://shop.example/stores
  link "Journal" {main-nav} -> https://shop.example/journal
  link "Help" {main-nav} -> https://shop.example/help`
	shopPanel := shopMenu + `
    link "New In" {sub-menu} -> https://shop.example/c/new
    link "Bestsellers" {sub-menu} -> https://shop.example/c/best
    link "Gifts" {sub-menu} -> https://shop.example/c/gifts
    link "Last Chance" {sub-menu} -> https://shop.example/c/last
    button "Lingerie" {sub-menu}`
	// Interacting with Lingerie misfires a diff exposing another
	// "Lingerie" button at the same level.
	lingeriePanel := shopPanel + `
      link "Bras" {fly-out} -> https://shop.example/c/bras
      link "Briefs" {fly-out} -> https://shop.example/c/briefs
      link "Bodysuits" {fly-out} -> https://shop.example/c/bodysuits
      link "Sleep" {fly-out} -> https://shop.example/c/sleep
      button "Lingerie" {fly-out}`

	page := &fakePage{
		transitions: map[string]string{
			"navigate:" + site:     home,
			"hover:button Menu":    shopMenu,
			"click:tab Shop":       shopPanel,
			"hover:button Lingerie": lingeriePanel,
		},
	}
	orc := &fakeOracle{tabs: []string{"Shop"}}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	require.True(t, rec.Success, "reason=%s", rec.Reason)

	for _, st := range rec.States {
		if types.PathKey(st.Path) == types.PathKey([]string{"Shop", "Lingerie"}) {
			assert.NotContains(t, st.NewExpandables, "Lingerie",
				"duplicate path must not be re-pushed")
		}
	}
	assert.False(t, eng.explored[types.PathKey([]string{"Shop", "Lingerie", "Lingerie"})])
}

func TestLeafDetectionOnURLChange(t *testing.T) {
	womenWithLingerie := mainMenu + `
    link "Dresses" {sub-menu} -> https://shop.example/c/dresses
    link "Tops" {sub-menu} -> https://shop.example/c/tops
    link "Jeans" {sub-menu} -> https://shop.example/c/jeans
    link "Shoes" {sub-menu} -> https://shop.example/c/shoes
    button "Lingerie" {sub-menu}`
	page := &fakePage{
		transitions: map[string]string{
			"navigate:" + site:     home,
			"hover:button Menu":    mainMenu,
			"click:link Women":     womenWithLingerie,
			"click:button Lingerie": `heading "Lingerie"` + "\n" + `heading "Product Grid"`,
		},
		urlTransitions: map[string]string{
			"click:button Lingerie": "https://shop.example/c/lingerie",
		},
	}
	orc := &fakeOracle{tabs: []string{"Women"}}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	require.True(t, rec.Success, "reason=%s", rec.Reason)

	var leafState *types.DiscoveryState
	for i := range rec.States {
		if types.PathKey(rec.States[i].Path) == types.PathKey([]string{"Women", "Lingerie"}) {
			leafState = &rec.States[i]
		}
	}
	require.NotNil(t, leafState, "leaf state recorded")
	assert.True(t, leafState.IsLeafPage)
	assert.Equal(t, "https://shop.example/c/lingerie", leafState.NewLinks["Lingerie"])
	assert.Empty(t, leafState.NewExpandables, "no children under a leaf")

	// The engine returned to menu state after the drift.
	assert.Contains(t, page.navigations, site)
}

func TestBudgetExhaustion(t *testing.T) {
	page := incrementalPage()
	orc := &fakeOracle{tabs: []string{"Women", "Men"}}
	cfg := DefaultConfig()
	cfg.TurnBudget = 2
	eng := New(page, orc, cfg, nil)

	rec := eng.Run(context.Background(), site)
	assert.False(t, rec.Success)
	assert.Equal(t, ReasonBudgetExceeded, rec.Reason)
	assert.NotEmpty(t, rec.States, "partial states preserved")
	assert.Greater(t, rec.Tree.Count(), 0, "partial tree preserved")
}

func TestMenuNotFound(t *testing.T) {
	page := &fakePage{
		transitions: map[string]string{
			"navigate:" + site: `heading "Maintenance"` + "\n" + `link "Contact" -> https://shop.example/contact`,
		},
	}
	orc := &fakeOracle{}
	eng := New(page, orc, DefaultConfig(), nil)

	rec := eng.Run(context.Background(), site)
	assert.False(t, rec.Success)
	assert.Equal(t, ReasonMenuNotFound, rec.Reason)
	assert.Zero(t, orc.tabCalls, "no oracle spend without a menu")
}

func TestCancellationFlushesPartial(t *testing.T) {
	page := incrementalPage()
	orc := &fakeOracle{tabs: []string{"Women", "Men"}}
	eng := New(page, orc, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := eng.Run(ctx, site)
	assert.False(t, rec.Success)
	assert.Equal(t, ReasonCancelled, rec.Reason)
}

func walkTree(t *testing.T, n *types.Category, fn func(*types.Category)) {
	t.Helper()
	fn(n)
	for _, c := range n.Children {
		walkTree(t, c, fn)
	}
}
