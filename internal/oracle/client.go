package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"navscout/internal/snapshot"
	"navscout/internal/types"
)

// DefaultDepthFatigueLimit is how many consecutive leaf verdicts at one
// nesting depth it takes before further elements at that depth are
// classified as leaves without an oracle call. Empirically chosen.
const DefaultDepthFatigueLimit = 5

// Config tunes the oracle client.
type Config struct {
	DepthFatigueLimit int `yaml:"depth_fatigue_limit"`
	MaxTabs           int `yaml:"max_tabs"`
	MaxBulkNodes      int `yaml:"max_bulk_nodes"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DepthFatigueLimit: DefaultDepthFatigueLimit,
		MaxTabs:           15,
		MaxBulkNodes:      500,
	}
}

func (c Config) fatigueLimit() int {
	if c.DepthFatigueLimit <= 0 {
		return DefaultDepthFatigueLimit
	}
	return c.DepthFatigueLimit
}

// Client implements Oracle over an LLM transport. It is created once per
// discovery run: the signature caches are deliberately not portable
// across sites.
type Client struct {
	llm LLM
	cfg Config
	log *zap.Logger

	mu            sync.Mutex
	buttonByDepth map[int]types.Relationship // signature: nesting depth
	utilityBySig  map[string]bool            // signature: style group
	leafStreak    map[int]int                // consecutive leaf verdicts per depth
	stats         Stats
}

// NewClient builds a per-run oracle client.
func NewClient(llm LLM, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		llm:           llm,
		cfg:           cfg,
		log:           log,
		buttonByDepth: make(map[int]types.Relationship),
		utilityBySig:  make(map[string]bool),
		leafStreak:    make(map[int]int),
	}
}

// Stats returns a copy of the run's oracle counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// TokensUsed reports cumulative transport token spend.
func (c *Client) TokensUsed() int64 { return c.llm.TokensUsed() }

// ask performs one validated oracle round-trip: call, validate, retry
// once with a stricter prompt on violation, and report whether a valid
// response was obtained. Transport errors count as violations; the
// caller falls back to its conservative default when ok is false.
func (c *Client) ask(ctx context.Context, prompt string, input any, out any, validate func() error) (ok bool) {
	for attempt := 0; attempt < 2; attempt++ {
		p := prompt
		if attempt > 0 {
			p += stricterSuffix
		}
		c.mu.Lock()
		c.stats.Calls++
		c.mu.Unlock()

		raw, err := c.llm.GenerateJSON(ctx, p, input)
		if err != nil {
			c.log.Warn("oracle call failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err := json.Unmarshal(raw, out); err != nil {
			err = fmt.Errorf("%w: %v", ErrSchemaViolation, err)
			c.noteViolation(err, attempt)
			continue
		}
		if err := validate(); err != nil {
			c.noteViolation(fmt.Errorf("%w: %v", ErrSchemaViolation, err), attempt)
			continue
		}
		return true
	}
	c.mu.Lock()
	c.stats.Fallbacks++
	c.mu.Unlock()
	return false
}

func (c *Client) noteViolation(err error, attempt int) {
	c.mu.Lock()
	c.stats.SchemaViolations++
	c.mu.Unlock()
	c.log.Warn("oracle schema violation", zap.Int("attempt", attempt), zap.Error(err))
}

// IdentifyTopLevelTabs asks for the top-level tab names. Every returned
// name must literally appear in the snapshot; an invented name is a
// schema violation. Fallback: the actionable names at the shallowest
// nesting depth.
func (c *Client) IdentifyTopLevelTabs(ctx context.Context, snap snapshot.Snapshot) ([]string, error) {
	maxTabs := c.cfg.MaxTabs
	if maxTabs <= 0 {
		maxTabs = 15
	}
	var resp struct {
		Tabs []string `json:"tabs"`
	}
	names := actionableNames(snap)
	valid := c.ask(ctx, promptTopLevelTabs, map[string]any{
		"snapshot": snap.Lines,
	}, &resp, func() error {
		if len(resp.Tabs) == 0 {
			return fmt.Errorf("empty tab list")
		}
		if len(resp.Tabs) > maxTabs {
			return fmt.Errorf("%d tabs exceeds limit %d", len(resp.Tabs), maxTabs)
		}
		for _, t := range resp.Tabs {
			if !names[t] {
				return fmt.Errorf("tab %q not present in snapshot", t)
			}
		}
		return nil
	})
	if valid {
		return dedupe(resp.Tabs), nil
	}
	c.log.Info("falling back to heuristic tab identification")
	return heuristicTabs(snap, maxTabs), nil
}

// ClassifyButtonRelationships resolves the given pairs, consulting the
// oracle only for depths without a cached verdict. All pairs sharing a
// depth signature receive the same classification; this trades strict
// correctness for bounded oracle cost. Fallback verdict: SEPARATE.
func (c *Client) ClassifyButtonRelationships(ctx context.Context, pairs []ButtonPair) (map[string]types.Relationship, error) {
	result := make(map[string]types.Relationship, len(pairs))
	var uncached []ButtonPair
	c.mu.Lock()
	for _, p := range pairs {
		if rel, ok := c.buttonByDepth[p.Depth]; ok {
			result[p.Button] = rel
			c.stats.CacheHits++
			continue
		}
		uncached = append(uncached, p)
	}
	c.mu.Unlock()
	if len(uncached) == 0 {
		return result, nil
	}

	var resp struct {
		Relationships map[string]string `json:"relationships"`
	}
	valid := c.ask(ctx, promptButtonRelationships, map[string]any{
		"pairs": uncached,
	}, &resp, func() error {
		for _, p := range uncached {
			v, ok := resp.Relationships[p.Button]
			if !ok {
				return fmt.Errorf("missing verdict for %q", p.Button)
			}
			if v != string(types.RelExpands) && v != string(types.RelSeparate) {
				return fmt.Errorf("verdict %q for %q outside enum", v, p.Button)
			}
		}
		return nil
	})

	perDepth := make(map[int][]types.Relationship)
	for _, p := range uncached {
		rel := types.RelSeparate
		if valid {
			rel = types.Relationship(resp.Relationships[p.Button])
		}
		result[p.Button] = rel
		perDepth[p.Depth] = append(perDepth[p.Depth], rel)
	}

	// Cache the majority verdict per depth signature.
	c.mu.Lock()
	for depth, rels := range perDepth {
		expands := 0
		for _, r := range rels {
			if r == types.RelExpands {
				expands++
			}
		}
		verdict := types.RelSeparate
		if expands*2 >= len(rels) {
			verdict = types.RelExpands
		}
		if !valid {
			verdict = types.RelSeparate
		}
		c.buttonByDepth[depth] = verdict
	}
	c.mu.Unlock()
	return result, nil
}

// ExcludeUtilityGroups judges which style groups are utility chrome.
// Cached signatures skip the oracle. Fallback: nothing is utility, so
// downstream filtering sees the full candidate set.
func (c *Client) ExcludeUtilityGroups(ctx context.Context, groups map[string][]string) (map[string]bool, error) {
	result := make(map[string]bool, len(groups))
	uncached := make(map[string][]string)
	c.mu.Lock()
	for sig, names := range groups {
		if excluded, ok := c.utilityBySig[sig]; ok {
			result[sig] = excluded
			c.stats.CacheHits++
			continue
		}
		uncached[sig] = names
	}
	c.mu.Unlock()
	if len(uncached) == 0 {
		return result, nil
	}

	var resp struct {
		Exclude []string `json:"exclude"`
	}
	valid := c.ask(ctx, promptUtilityGroups, map[string]any{
		"groups": uncached,
	}, &resp, func() error {
		for _, sig := range resp.Exclude {
			if _, ok := uncached[sig]; !ok {
				return fmt.Errorf("signature %q was not offered", sig)
			}
		}
		return nil
	})

	excluded := make(map[string]bool)
	if valid {
		for _, sig := range resp.Exclude {
			excluded[sig] = true
		}
	}
	c.mu.Lock()
	for sig := range uncached {
		result[sig] = excluded[sig]
		c.utilityBySig[sig] = excluded[sig]
	}
	c.mu.Unlock()
	return result, nil
}

// ClassifyPageType judges a revealed diff. After fatigueLimit consecutive
// leaf verdicts at one depth the oracle is skipped and elements at that
// depth default to leaf. Fallback verdict: CATEGORY, biasing toward
// over-inclusion so the tree post-filter can prune instead.
func (c *Client) ClassifyPageType(ctx context.Context, d *snapshot.Diff, path []string) (types.PageType, error) {
	depth := len(path)
	c.mu.Lock()
	if c.leafStreak[depth] >= c.cfg.fatigueLimit() {
		c.stats.FatigueSkips++
		c.mu.Unlock()
		return types.PageLeafListing, nil
	}
	c.mu.Unlock()

	var resp struct {
		PageType string `json:"page_type"`
	}
	valid := c.ask(ctx, promptPageType, map[string]any{
		"path":    path,
		"added":   d.Added,
		"removed": len(d.Removed),
	}, &resp, func() error {
		if resp.PageType != string(types.PageCategory) && resp.PageType != string(types.PageLeafListing) {
			return fmt.Errorf("page_type %q outside enum", resp.PageType)
		}
		return nil
	})

	verdict := types.PageCategory
	if valid {
		verdict = types.PageType(resp.PageType)
	}
	c.mu.Lock()
	if verdict == types.PageLeafListing {
		c.leafStreak[depth]++
	} else {
		c.leafStreak[depth] = 0
	}
	c.mu.Unlock()
	return verdict, nil
}

// BulkExtract reads one tab's whole pre-rendered subtree from the
// snapshot. There is no conservative default for a full subtree; after
// the retry the error surfaces and the engine records the tab as failed.
func (c *Client) BulkExtract(ctx context.Context, tabName string, snap snapshot.Snapshot) (*types.Category, error) {
	maxNodes := c.cfg.MaxBulkNodes
	if maxNodes <= 0 {
		maxNodes = 500
	}
	var resp struct {
		Tree *types.Category `json:"tree"`
	}
	valid := c.ask(ctx, promptBulkExtract, map[string]any{
		"tab":      tabName,
		"snapshot": snap.Lines,
	}, &resp, func() error {
		if resp.Tree == nil {
			return fmt.Errorf("missing tree")
		}
		if resp.Tree.Name != tabName {
			return fmt.Errorf("tree root %q does not match tab %q", resp.Tree.Name, tabName)
		}
		if n := resp.Tree.Count(); n > maxNodes {
			return fmt.Errorf("%d nodes exceeds limit %d", n, maxNodes)
		}
		return validateTree(resp.Tree)
	})
	if !valid {
		return nil, fmt.Errorf("bulk extract for tab %q: %w", tabName, ErrSchemaViolation)
	}
	return resp.Tree, nil
}

func validateTree(node *types.Category) error {
	if node.Name == "" {
		return fmt.Errorf("node with empty name")
	}
	for _, child := range node.Children {
		if err := validateTree(child); err != nil {
			return err
		}
	}
	return nil
}

// actionableNames collects the set of link/button/tab names in a snapshot.
func actionableNames(snap snapshot.Snapshot) map[string]bool {
	names := make(map[string]bool)
	for _, raw := range snap.Lines {
		if l, ok := snapshot.ParseLine(raw); ok && snapshot.IsActionable(raw) {
			names[l.Name] = true
		}
	}
	return names
}

// heuristicTabs is the conservative fallback for tab identification: the
// actionable names at the shallowest nesting depth, in snapshot order.
func heuristicTabs(snap snapshot.Snapshot, maxTabs int) []string {
	minDepth := -1
	var parsed []snapshot.Line
	for _, raw := range snap.Lines {
		l, ok := snapshot.ParseLine(raw)
		if !ok || !snapshot.IsActionable(raw) {
			continue
		}
		parsed = append(parsed, l)
		if minDepth < 0 || l.Depth < minDepth {
			minDepth = l.Depth
		}
	}
	var tabs []string
	seen := make(map[string]bool)
	for _, l := range parsed {
		if l.Depth != minDepth || seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		tabs = append(tabs, l.Name)
		if len(tabs) >= maxTabs {
			break
		}
	}
	return tabs
}

// dedupe removes repeats while keeping the oracle's ordering.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
