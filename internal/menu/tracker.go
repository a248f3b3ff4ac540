// Package menu tracks how to re-enter the currently open navigation menu
// and restores it when interactions knock the page out of that state.
package menu

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"navscout/internal/browser"
	"navscout/internal/snapshot"
)

// ErrMenuNotFound means the trigger did not produce a substantial menu
// reveal. Fatal for a run when no trigger works: without a menu there is
// no navigation data to discover.
var ErrMenuNotFound = errors.New("menu: not found")

// ErrRestoreFailed means the menu could not be re-entered after a retry.
// The caller abandons the current node, not the run.
var ErrRestoreFailed = errors.New("menu: restore failed")

// Context records how to recognize and re-enter the open menu. It is
// owned by a single discovery run and never shared across sites.
type Context struct {
	Before      snapshot.Snapshot // page state just before the menu opened
	BaseURL     string
	StartMarker string // first line the menu reveal added; cheap open check
	Boundary    string // last line the reveal added
	Trigger     browser.Locator
	OpenedBy    string // "hover" or "click"
}

// Tracker drives menu open/verify/restore against one page.
type Tracker struct {
	page     browser.Page
	log      *zap.Logger
	minAdded int
}

// NewTracker creates a tracker. minAdded <= 0 uses the default
// substantial-reveal threshold.
func NewTracker(page browser.Page, minAdded int, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{page: page, log: log, minAdded: minAdded}
}

// Open tries to open the menu behind the trigger: hover first, click if
// hovering revealed nothing substantial. Returns ErrMenuNotFound when
// neither interaction produces a real menu reveal.
func (t *Tracker) Open(ctx context.Context, trigger browser.Locator) (*Context, error) {
	before, err := t.page.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture before open: %w", err)
	}
	baseURL, err := t.page.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	openedBy := "hover"
	d, err := t.interactAndDiff(ctx, before, trigger, openedBy)
	if err != nil {
		t.log.Debug("hover failed, trying click", zap.Stringer("trigger", trigger), zap.Error(err))
		d = nil
	}
	if d == nil || !d.SubstantialReveal(t.minAdded) {
		openedBy = "click"
		d, err = t.interactAndDiff(ctx, before, trigger, openedBy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMenuNotFound, err)
		}
	}
	if !d.SubstantialReveal(t.minAdded) {
		return nil, ErrMenuNotFound
	}

	mctx := &Context{
		Before:      before,
		BaseURL:     baseURL,
		StartMarker: d.Added[0],
		Boundary:    d.Added[len(d.Added)-1],
		Trigger:     trigger,
		OpenedBy:    openedBy,
	}
	t.log.Debug("menu opened",
		zap.Stringer("trigger", trigger),
		zap.String("via", openedBy),
		zap.Int("revealed", d.AddedCount))
	return mctx, nil
}

// VerifyOpen reports whether the menu is still open. Fast path: the
// start marker still appears in the current snapshot. Slow path: a full
// diff against the pre-open snapshot still shows a substantial reveal.
func (t *Tracker) VerifyOpen(ctx context.Context, mctx *Context) bool {
	snap, err := t.page.Capture(ctx)
	if err != nil {
		t.log.Debug("verify capture failed", zap.Error(err))
		return false
	}
	if snap.Contains(mctx.StartMarker) {
		return true
	}
	d := snapshot.Compute(mctx.Before, snap)
	return d.SubstantialReveal(t.minAdded)
}

// Restore navigates back to the base URL, re-opens the menu, and replays
// the already-explored trigger clicks to return to the same position in
// the tree. One retry; after that the node is abandoned.
func (t *Tracker) Restore(ctx context.Context, mctx *Context, replay []browser.Locator) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := t.restoreOnce(ctx, mctx, replay); err != nil {
			lastErr = err
			t.log.Warn("menu restore attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRestoreFailed, lastErr)
}

func (t *Tracker) restoreOnce(ctx context.Context, mctx *Context, replay []browser.Locator) error {
	if err := t.page.Navigate(ctx, mctx.BaseURL); err != nil {
		return fmt.Errorf("navigate base: %w", err)
	}
	browser.DismissOverlays(ctx, t.page, false, t.log)

	// A zero trigger marks a persistent menu: reloading the base URL is
	// enough, there is nothing to re-open.
	if mctx.Trigger != (browser.Locator{}) {
		fresh, err := t.Open(ctx, mctx.Trigger)
		if err != nil {
			return err
		}
		// The reveal can drift between visits; adopt the fresh markers.
		*mctx = *fresh
	}

	for _, loc := range replay {
		if err := t.page.Click(ctx, loc); err != nil {
			return fmt.Errorf("replay %s: %w", loc, err)
		}
	}
	if !t.VerifyOpen(ctx, mctx) {
		return errors.New("menu closed after replay")
	}
	return nil
}

func (t *Tracker) interactAndDiff(ctx context.Context, before snapshot.Snapshot, trigger browser.Locator, how string) (*snapshot.Diff, error) {
	var err error
	if how == "hover" {
		err = t.page.Hover(ctx, trigger)
	} else {
		err = t.page.Click(ctx, trigger)
	}
	if err != nil {
		return nil, err
	}
	after, err := t.page.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture after %s: %w", how, err)
	}
	return snapshot.Compute(before, after), nil
}
