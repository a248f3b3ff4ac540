// Package probe decides, before any browser is launched, how a site's
// navigation data can be obtained: a structured API endpoint, JSON
// embedded in the landing page, or live DOM interaction as the fallback.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"navscout/internal/types"
)

// DefaultUserAgent identifies probe traffic to site operators.
const DefaultUserAgent = "navscout/1.0 (+navigation discovery)"

// DefaultMaxBodyBytes caps how much of a landing page is read.
const DefaultMaxBodyBytes = 2 << 20

// Config holds probe settings.
type Config struct {
	UserAgent    string `yaml:"user_agent"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		TimeoutMs:    15000,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

// Result is the probe's verdict for one site.
type Result struct {
	Method types.Method

	// Endpoint is the navigation API URL when Method is api.
	Endpoint string

	// EmbeddedKind names the embedded payload when Method is
	// embedded_json: "next_data" or "site_navigation".
	EmbeddedKind string

	// SPAShell marks a landing page with almost no server-rendered
	// content; DOM discovery must wait for hydration on such sites.
	SPAShell bool
}

// Prober fetches landing pages and candidate API endpoints over plain
// HTTP. It never drives a browser.
type Prober struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// New creates a prober.
func New(cfg Config, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Prober{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// navEndpointPaths are well-known structured navigation endpoints,
// cheapest first. A 200 with a JSON body wins immediately.
var navEndpointPaths = []string{
	"/collections.json", // Shopify
	"/api/navigation",
	"/api/v1/categories",
}

// Probe fetches the landing page and classifies the site. The DOM
// verdict is the fallback: it is returned with a nil error whenever the
// page was reachable but nothing structured was found.
func (p *Prober) Probe(ctx context.Context, site string) (Result, error) {
	body, err := p.fetch(ctx, site, "text/html")
	if err != nil {
		return Result{}, fmt.Errorf("probe %s: %w", site, err)
	}

	if endpoint := p.findAPIEndpoint(ctx, site); endpoint != "" {
		p.log.Info("navigation api found", zap.String("site", site), zap.String("endpoint", endpoint))
		return Result{Method: types.MethodAPI, Endpoint: endpoint}, nil
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err == nil {
		if kind := embeddedNavKind(doc); kind != "" {
			p.log.Info("embedded navigation found", zap.String("site", site), zap.String("kind", kind))
			return Result{Method: types.MethodEmbeddedJSON, EmbeddedKind: kind}, nil
		}
	}

	res := Result{Method: types.MethodDOM, SPAShell: spaShell(body)}
	p.log.Info("falling back to dom discovery",
		zap.String("site", site),
		zap.Bool("spa_shell", res.SPAShell))
	return res, nil
}

// findAPIEndpoint tries each well-known path and keeps the first that
// answers with JSON.
func (p *Prober) findAPIEndpoint(ctx context.Context, site string) string {
	base, err := url.Parse(site)
	if err != nil {
		return ""
	}
	for _, path := range navEndpointPaths {
		candidate := base.ResolveReference(&url.URL{Path: path}).String()
		body, err := p.fetch(ctx, candidate, "application/json")
		if err != nil {
			continue
		}
		if json.Valid(body) && looksLikeNavPayload(body) {
			return candidate
		}
	}
	return ""
}

func (p *Prober) fetch(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.userAgent())
	req.Header.Set("Accept", accept)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, p.cfg.maxBody()))
}

// looksLikeNavPayload filters JSON endpoints that answer 200 with
// something unrelated, an error envelope or an empty object.
func looksLikeNavPayload(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, key := range []string{"collections", "categories", "navigation", "menu"} {
		if strings.Contains(lower, `"`+key+`"`) {
			return true
		}
	}
	return false
}

// embeddedNavKind walks the parsed page looking for navigation data
// serialized into script tags.
func embeddedNavKind(doc *html.Node) string {
	var kind string
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if kind != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" {
			id, typ := attr(n, "id"), attr(n, "type")
			text := scriptText(n)
			switch {
			case id == "__NEXT_DATA__" && containsNavKey(text):
				kind = "next_data"
				return
			case typ == "application/ld+json" && strings.Contains(text, "SiteNavigationElement"):
				kind = "site_navigation"
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return kind
}

func containsNavKey(text string) bool {
	lower := strings.ToLower(text)
	for _, key := range []string{`"navigation"`, `"menu"`, `"categories"`, `"menuitems"`} {
		if strings.Contains(lower, key) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func scriptText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// spaShell reports whether the body is an unhydrated client-side shell:
// tiny text-to-markup ratio or a bare mount point div.
func spaShell(body []byte) bool {
	if len(body) < 256 {
		return true
	}
	lower := strings.ToLower(string(body))
	for _, ind := range []string{
		`<div id="root"></div>`,
		`<div id="app"></div>`,
		`<div id="__next"></div>`,
		"<noscript>you need to enable javascript",
	} {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	text, markup := textMarkupRatio(lower)
	total := text + markup
	if total == 0 {
		return true
	}
	return float64(text)/float64(total) < 0.10 || text < 200
}

// textMarkupRatio approximates visible-text vs markup byte counts,
// skipping script and style bodies.
func textMarkupRatio(s string) (text, markup int) {
	inTag := false
	i := 0
	for i < len(s) {
		if strings.HasPrefix(s[i:], "<script") || strings.HasPrefix(s[i:], "<style") {
			closer := "</script"
			if strings.HasPrefix(s[i:], "<style") {
				closer = "</style"
			}
			idx := strings.Index(s[i:], closer)
			if idx == -1 {
				markup += len(s) - i
				break
			}
			markup += idx + len(closer)
			i += idx + len(closer)
			continue
		}
		switch ch := s[i]; {
		case ch == '<':
			inTag = true
			markup++
		case ch == '>':
			inTag = false
			markup++
		case inTag:
			markup++
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			text++
		}
		i++
	}
	return text, markup
}
