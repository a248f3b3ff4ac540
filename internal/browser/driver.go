// Package browser owns the Chrome instance and exposes the small
// effectful capability set the discovery engine consumes: navigate,
// snapshot, click, hover, evaluate. The engine never touches rod types
// directly, so tests drive it with an in-memory fake.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"navscout/internal/snapshot"
)

// Locator addresses an element by semantic role and accessible name.
type Locator struct {
	Role string
	Name string
}

func (l Locator) String() string { return l.Role + " " + l.Name }

// Page is the browser capability consumed by the discovery engine.
// All methods are effectful and must not be called concurrently for the
// same page.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Capture(ctx context.Context) (snapshot.Snapshot, error)
	Click(ctx context.Context, loc Locator) error
	Hover(ctx context.Context, loc Locator) error
	Eval(ctx context.Context, js string) (string, error)
	Close() error
}

// Config holds browser settings.
type Config struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Headless            bool   `yaml:"headless"`
	Stealth             bool   `yaml:"stealth"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	InteractionWaitMs   int    `yaml:"interaction_wait_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		Stealth:             true,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		InteractionWaitMs:   600,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// InteractionWait is the fixed settle wait after click/hover, covering
// menu open animations.
func (c Config) InteractionWait() time.Duration {
	if c.InteractionWaitMs == 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(c.InteractionWaitMs) * time.Millisecond
}

// Driver owns the Chrome instance and hands out pages, one per
// discovery run.
type Driver struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

// NewDriver creates a driver. The browser launches lazily on first use.
func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		if _, err := d.browser.Version(); err == nil {
			return nil
		}
		d.log.Warn("stale browser connection, relaunching")
		_ = d.browser.Close()
		d.browser = nil
	}

	controlURL := d.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(d.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	d.browser = browser
	d.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// NewPage opens a fresh incognito tab. With stealth enabled the tab is
// created through go-rod/stealth; e-commerce sites block obvious
// automation.
func (d *Driver) NewPage(ctx context.Context) (Page, error) {
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	var page *rod.Page
	if d.cfg.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  d.cfg.ViewportWidth,
		Height: d.cfg.ViewportHeight,
	}); err != nil {
		d.log.Warn("set viewport", zap.Error(err))
	}
	return &tab{page: page, cfg: d.cfg, log: d.log}, nil
}

// Shutdown closes the browser.
func (d *Driver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

// tab implements Page on a rod page.
type tab struct {
	page *rod.Page
	cfg  Config
	log  *zap.Logger
}

func (t *tab) Navigate(ctx context.Context, url string) error {
	page := t.page.Context(ctx).Timeout(t.cfg.NavigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		t.log.Debug("wait load timeout", zap.String("url", url), zap.Error(err))
	}
	_ = page.WaitStable(time.Second)
	return nil
}

func (t *tab) URL(ctx context.Context) (string, error) {
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

func (t *tab) Capture(ctx context.Context) (snapshot.Snapshot, error) {
	res, err := t.page.Context(ctx).Eval(snapshot.CaptureScript)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("capture snapshot: %w", err)
	}
	return snapshot.New(res.Value.Str()), nil
}

func (t *tab) Click(ctx context.Context, loc Locator) error {
	el, err := t.locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	t.settle(ctx)
	return nil
}

func (t *tab) Hover(ctx context.Context, loc Locator) error {
	el, err := t.locate(ctx, loc)
	if err != nil {
		return err
	}
	if err := el.Hover(); err != nil {
		return fmt.Errorf("hover %s: %w", loc, err)
	}
	t.settle(ctx)
	return nil
}

func (t *tab) Eval(ctx context.Context, js string) (string, error) {
	res, err := t.page.Context(ctx).Eval(js)
	if err != nil {
		return "", fmt.Errorf("eval: %w", err)
	}
	return res.Value.Str(), nil
}

func (t *tab) Close() error { return t.page.Close() }

// settle waits the fixed interaction delay so menu animations finish
// before the next snapshot.
func (t *tab) settle(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(t.cfg.InteractionWait()):
	}
	_ = t.page.Context(ctx).WaitStable(300 * time.Millisecond)
}

// locate resolves a role+name locator to a visible element. Roles map to
// XPath the way the capture script assigns them.
func (t *tab) locate(ctx context.Context, loc Locator) (*rod.Element, error) {
	xp := roleXPath(loc)
	el, err := t.page.Context(ctx).Timeout(3 * time.Second).ElementX(xp)
	if err != nil {
		return nil, fmt.Errorf("element not found %s: %w", loc, err)
	}
	return el, nil
}

func roleXPath(loc Locator) string {
	name := xpathLiteral(strings.TrimSpace(loc.Name))
	cond := fmt.Sprintf("normalize-space(.)=%s or @aria-label=%s", name, name)
	switch loc.Role {
	case "link":
		return fmt.Sprintf("//a[@href][%s]", cond)
	case "button":
		return fmt.Sprintf("//button[%s] | //*[@role='button'][%s]", cond, cond)
	case "tab":
		return fmt.Sprintf("//*[@role='tab'][%s]", cond)
	default:
		return fmt.Sprintf("//*[%s]", cond)
	}
}

// xpathLiteral quotes a string for XPath 1.0, which has no escaping.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
