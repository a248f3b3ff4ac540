package menu

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navscout/internal/browser"
	"navscout/internal/snapshot"
)

// fakePage scripts snapshot transitions: each hover/click on a locator
// switches the current snapshot according to the transitions table.
type fakePage struct {
	url         string
	current     string
	transitions map[string]string // "hover:role name" / "click:role name" -> snapshot text
	clicks      []browser.Locator
	hovers      []browser.Locator
	navigations []string
	failHover   bool
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
	return nil
}

func (p *fakePage) Hover(_ context.Context, loc browser.Locator) error {
	if p.failHover {
		return fmt.Errorf("hover not supported")
	}
	p.hovers = append(p.hovers, loc)
	if next, ok := p.transitions["hover:"+loc.String()]; ok {
		p.current = next
	}
	return nil
}

func (p *fakePage) Eval(context.Context, string) (string, error) { return "0", nil }
func (p *fakePage) Close() error                                 { return nil }

const closedMenu = `button "Menu" {header}
heading "Welcome"`

const openMenu = `button "Menu" {header}
heading "Welcome"
  link "Women" {main-nav} -> https://shop.example/women
  link "Men" {main-nav} -> https://shop.example/men
  link "Kids" {main-nav} -> https://shop.example/kids
  link "Sale" {main-nav} -> https://shop.example/sale
  link "Brands" {main-nav} -> https://shop.example/brands`

func menuTrigger() browser.Locator { return browser.Locator{Role: "button", Name: "Menu"} }

func TestOpenViaHover(t *testing.T) {
	page := &fakePage{
		url:     "https://shop.example",
		current: closedMenu,
		transitions: map[string]string{
			"hover:" + menuTrigger().String(): openMenu,
		},
	}
	tr := NewTracker(page, 0, nil)

	mctx, err := tr.Open(context.Background(), menuTrigger())
	require.NoError(t, err)
	assert.Equal(t, "hover", mctx.OpenedBy)
	assert.Equal(t, "https://shop.example", mctx.BaseURL)
	assert.Equal(t, `  link "Women" {main-nav} -> https://shop.example/women`, mctx.StartMarker)
	assert.Equal(t, `  link "Brands" {main-nav} -> https://shop.example/brands`, mctx.Boundary)
	assert.Empty(t, page.clicks, "hover sufficed, no click needed")
}

func TestOpenFallsBackToClick(t *testing.T) {
	page := &fakePage{
		url:     "https://shop.example",
		current: closedMenu,
		transitions: map[string]string{
			"click:" + menuTrigger().String(): openMenu,
		},
	}
	tr := NewTracker(page, 0, nil)

	mctx, err := tr.Open(context.Background(), menuTrigger())
	require.NoError(t, err)
	assert.Equal(t, "click", mctx.OpenedBy)
	require.Len(t, page.clicks, 1)
}

func TestOpenNotFound(t *testing.T) {
	page := &fakePage{url: "https://shop.example", current: closedMenu}
	tr := NewTracker(page, 0, nil)

	_, err := tr.Open(context.Background(), menuTrigger())
	assert.ErrorIs(t, err, ErrMenuNotFound)
}

func TestVerifyOpenFastAndSlowPath(t *testing.T) {
	page := &fakePage{
		url:     "https://shop.example",
		current: closedMenu,
		transitions: map[string]string{
			"hover:" + menuTrigger().String(): openMenu,
		},
	}
	tr := NewTracker(page, 0, nil)
	mctx, err := tr.Open(context.Background(), menuTrigger())
	require.NoError(t, err)

	assert.True(t, tr.VerifyOpen(context.Background(), mctx), "fast path: marker present")

	// Marker line gone but the menu is still substantially revealed:
	// the slow full-diff path must still report open.
	drifted := `button "Menu" {header}
heading "Welcome"
  link "Women Sale" {main-nav} -> https://shop.example/women-sale
  link "Men" {main-nav} -> https://shop.example/men
  link "Kids" {main-nav} -> https://shop.example/kids
  link "Sale" {main-nav} -> https://shop.example/sale
  link "Brands" {main-nav} -> https://shop.example/brands`
	page.current = drifted
	assert.True(t, tr.VerifyOpen(context.Background(), mctx), "slow path: diff still substantial")

	page.current = closedMenu
	assert.False(t, tr.VerifyOpen(context.Background(), mctx))
}

func TestRestoreReplaysPath(t *testing.T) {
	womenPanel := openMenu + "\n" + `    link "Dresses" {sub-menu} -> https://shop.example/c/dresses`
	page := &fakePage{
		url:     "https://shop.example/somewhere-else",
		current: `heading "Product Grid"`,
		transitions: map[string]string{
			"navigate:https://shop.example":   closedMenu,
			"hover:" + menuTrigger().String(): openMenu,
			"click:link Women":                womenPanel,
		},
	}
	tr := NewTracker(page, 0, nil)
	mctx := &Context{
		Before:      snapshot.New(closedMenu),
		BaseURL:     "https://shop.example",
		StartMarker: `  link "Women" {main-nav} -> https://shop.example/women`,
		Trigger:     menuTrigger(),
	}

	replay := []browser.Locator{{Role: "link", Name: "Women"}}
	err := tr.Restore(context.Background(), mctx, replay)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example"}, page.navigations)
	require.NotEmpty(t, page.clicks)
	assert.Equal(t, browser.Locator{Role: "link", Name: "Women"}, page.clicks[len(page.clicks)-1])
}

func TestRestoreFailsAfterRetry(t *testing.T) {
	// Base page never yields a menu again: both attempts fail.
	page := &fakePage{
		url:     "https://shop.example/detoured",
		current: `heading "Product Grid"`,
		transitions: map[string]string{
			"navigate:https://shop.example": closedMenu,
		},
	}
	tr := NewTracker(page, 0, nil)
	mctx := &Context{
		Before:  snapshot.New(closedMenu),
		BaseURL: "https://shop.example",
		Trigger: menuTrigger(),
	}

	err := tr.Restore(context.Background(), mctx, nil)
	assert.ErrorIs(t, err, ErrRestoreFailed)
	assert.Equal(t, []string{"https://shop.example", "https://shop.example"}, page.navigations)
}
