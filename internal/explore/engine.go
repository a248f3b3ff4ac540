// Package explore implements the DFS exploration engine: the control
// loop that drives a live browser through an unknown menu, diffs what
// each interaction reveals, consults the classification oracle on
// ambiguous decisions, and emits the discovery-state sequence the tree
// builder consumes.
package explore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"navscout/internal/browser"
	"navscout/internal/menu"
	"navscout/internal/oracle"
	"navscout/internal/snapshot"
	"navscout/internal/tree"
	"navscout/internal/types"
)

// DefaultTurnBudget bounds browser interactions per run.
const DefaultTurnBudget = 60

// DefaultMaxDepth bounds menu nesting; categories deeper than this are
// recorded but not descended into.
const DefaultMaxDepth = 4

// Config tunes one discovery run.
type Config struct {
	TurnBudget     int `yaml:"turn_budget"`
	RevealMinAdded int `yaml:"reveal_min_added"`
	MaxDepth       int `yaml:"max_depth"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TurnBudget:     DefaultTurnBudget,
		RevealMinAdded: snapshot.DefaultRevealMinAdded,
		MaxDepth:       DefaultMaxDepth,
	}
}

func (c Config) turnBudget() int {
	if c.TurnBudget <= 0 {
		return DefaultTurnBudget
	}
	return c.TurnBudget
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

// Engine runs one site's interactive discovery. It owns the page, the
// menu context, and all per-run state; nothing is shared across sites.
type Engine struct {
	page   browser.Page
	oracle oracle.Oracle
	cfg    Config
	log    *zap.Logger

	tracker  *menu.Tracker
	mctx     *menu.Context
	states   []types.DiscoveryState
	steps    []types.InteractionStep
	explored map[string]bool
	stacked  map[string]bool
	stack    []types.ExplorationNode
	locators map[string]browser.Locator // path key -> how to click that node
	turns    int
}

// New creates an engine for one run.
func New(page browser.Page, orc oracle.Oracle, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		page:     page,
		oracle:   orc,
		cfg:      cfg,
		log:      log,
		tracker:  menu.NewTracker(page, cfg.RevealMinAdded, log),
		explored: make(map[string]bool),
		stacked:  make(map[string]bool),
		locators: make(map[string]browser.Locator),
	}
}

// Run discovers one site. It always returns a record: failures surface
// as Success=false with a reason code and whatever partial states were
// collected, never as a panic or an error to the multi-site driver.
func (e *Engine) Run(ctx context.Context, site string) *types.RunRecord {
	rec := &types.RunRecord{
		ID:        uuid.NewString(),
		Site:      site,
		Method:    types.MethodDOM,
		StartedAt: time.Now(),
	}
	defer func() {
		rec.Turns = e.turns
		rec.States = e.states
		rec.Steps = e.steps
		if e.oracle != nil {
			rec.OracleTokens = e.oracle.TokensUsed()
		}
		rec.Tree = tree.Build(e.states)
		if rec.Success && rec.Tree.Count() == 0 {
			rec.Success = false
			rec.Reason = ReasonEmptyExtraction
		}
		rec.FinishedAt = time.Now()
	}()

	if err := e.navigate(ctx, site); err != nil {
		e.log.Warn("initial navigation failed", zap.String("site", site), zap.Error(err))
		rec.Reason = ReasonBrowserFailed
		return rec
	}
	browser.DismissOverlays(ctx, e.page, false, e.log)

	if err := e.openMenu(ctx); err != nil {
		e.log.Warn("menu not found", zap.String("site", site), zap.Error(err))
		rec.Reason = ReasonMenuNotFound
		return rec
	}

	menuSnap, err := e.page.Capture(ctx)
	if err != nil {
		rec.Reason = ReasonBrowserFailed
		return rec
	}
	tabs, err := e.oracle.IdentifyTopLevelTabs(ctx, menuSnap)
	if err != nil || len(tabs) == 0 {
		rec.Reason = ReasonEmptyExtraction
		return rec
	}
	e.pushTabs(tabs, menuSnap)

	bulk, firstDiff, firstTab := e.detectMode(ctx)
	if bulk {
		e.runBulk(ctx, firstTab)
		rec.Success = true
		return rec
	}
	if firstDiff != nil && !firstDiff.Empty() {
		e.processReveal(ctx, firstTab, firstDiff)
	}

	switch e.runIncremental(ctx) {
	case nil:
		rec.Success = true
	case ErrBudgetExceeded:
		rec.Reason = ReasonBudgetExceeded
	case context.Canceled, context.DeadlineExceeded:
		rec.Reason = ReasonCancelled
	default:
		rec.Reason = ReasonBrowserFailed
	}
	return rec
}

func (e *Engine) navigate(ctx context.Context, url string) error {
	e.steps = append(e.steps, types.InteractionStep{Action: "navigate", URL: url})
	return e.page.Navigate(ctx, url)
}

// commonTriggerNames order menu-trigger candidates; hamburger buttons
// and "shop" entries open the catalog menu on most storefronts.
var commonTriggerNames = []string{"menu", "shop", "categories", "all categories", "browse", "products"}

// openMenu finds a trigger that produces a substantial reveal. When no
// trigger works but the page already shows a dense navigation block, the
// menu is persistent and a synthetic context is used instead.
func (e *Engine) openMenu(ctx context.Context) error {
	snap, err := e.page.Capture(ctx)
	if err != nil {
		return err
	}
	for _, trigger := range triggerCandidates(snap) {
		mctx, err := e.tracker.Open(ctx, trigger)
		if err == nil {
			e.mctx = mctx
			e.steps = append(e.steps, types.InteractionStep{
				Action: mctx.OpenedBy, Role: trigger.Role, Name: trigger.Name,
			})
			return nil
		}
		e.log.Debug("trigger rejected", zap.Stringer("trigger", trigger), zap.Error(err))
	}

	if mctx := e.persistentMenu(ctx, snap); mctx != nil {
		e.mctx = mctx
		return nil
	}
	return menu.ErrMenuNotFound
}

// persistentMenu synthesizes a context for sites whose navigation is
// always visible: enough nested actionable lines on the bare page.
func (e *Engine) persistentMenu(ctx context.Context, snap snapshot.Snapshot) *menu.Context {
	min := e.cfg.RevealMinAdded
	if min <= 0 {
		min = snapshot.DefaultRevealMinAdded
	}
	var first string
	count := 0
	for _, raw := range snap.Lines {
		if l, ok := snapshot.ParseLine(raw); ok && snapshot.IsActionable(raw) && l.Depth >= 1 {
			if first == "" {
				first = raw
			}
			count++
		}
	}
	if count < min {
		return nil
	}
	baseURL, err := e.page.URL(ctx)
	if err != nil {
		return nil
	}
	e.log.Debug("persistent menu detected", zap.Int("nav_lines", count))
	return &menu.Context{
		Before:      snapshot.Snapshot{},
		BaseURL:     baseURL,
		StartMarker: first,
	}
}

func triggerCandidates(snap snapshot.Snapshot) []browser.Locator {
	var buttons, links []browser.Locator
	seen := make(map[browser.Locator]bool)
	for _, raw := range snap.Lines {
		l, ok := snapshot.ParseLine(raw)
		if !ok || !snapshot.IsActionable(raw) {
			continue
		}
		lower := strings.ToLower(l.Name)
		match := false
		for _, t := range commonTriggerNames {
			if lower == t || strings.Contains(lower, t) {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		loc := browser.Locator{Role: l.Role, Name: l.Name}
		if seen[loc] {
			continue
		}
		seen[loc] = true
		if l.Role == "button" || l.Role == "tab" {
			buttons = append(buttons, loc)
		} else {
			links = append(links, loc)
		}
	}
	out := append(buttons, links...)
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

// pushTabs seeds the stack with the oracle-identified top-level tabs,
// reversed so the first tab pops first.
func (e *Engine) pushTabs(tabs []string, snap snapshot.Snapshot) {
	for i := len(tabs) - 1; i >= 0; i-- {
		name := tabs[i]
		node := types.ExplorationNode{
			Path: []string{name},
			Kind: types.KindExpandable,
			Role: roleFor(snap, name),
		}
		e.push(node)
	}
}

// detectMode interacts with exactly one expandable element. An empty
// diff means the site pre-renders all menu content: bulk mode. A
// non-empty diff means incremental reveal; the diff is returned so the
// interaction is not wasted.
func (e *Engine) detectMode(ctx context.Context) (bulk bool, d *snapshot.Diff, node types.ExplorationNode) {
	if len(e.stack) == 0 {
		return false, nil, node
	}
	node = e.pop()
	e.markExplored(node)

	before, err := e.page.Capture(ctx)
	if err != nil {
		return false, nil, node
	}
	loc := e.locatorFor(node)
	e.turns++
	e.steps = append(e.steps, types.InteractionStep{Action: "click", Role: loc.Role, Name: loc.Name})
	if err := e.page.Click(ctx, loc); err != nil {
		e.log.Debug("mode detect click failed", zap.Stringer("loc", loc), zap.Error(err))
		return false, nil, node
	}
	after, err := e.page.Capture(ctx)
	if err != nil {
		return false, nil, node
	}
	d = snapshot.Compute(before, after)
	e.log.Debug("mode detected",
		zap.Bool("bulk", d.Empty()),
		zap.Int("added", d.AddedCount))
	return d.Empty(), d, node
}

// runBulk extracts each tab's whole subtree with one oracle call per
// tab. firstTab was already clicked during mode detection.
func (e *Engine) runBulk(ctx context.Context, firstTab types.ExplorationNode) {
	e.extractBulkTab(ctx, firstTab)
	for len(e.stack) > 0 {
		if ctx.Err() != nil {
			return
		}
		node := e.pop()
		if node.Depth() != 1 {
			continue
		}
		e.markExplored(node)
		loc := e.locatorFor(node)
		e.turns++
		e.steps = append(e.steps, types.InteractionStep{Action: "click", Role: loc.Role, Name: loc.Name})
		if err := e.page.Click(ctx, loc); err != nil {
			e.log.Warn("bulk tab click failed", zap.Stringer("loc", loc), zap.Error(err))
			continue
		}
		e.extractBulkTab(ctx, node)
	}
}

func (e *Engine) extractBulkTab(ctx context.Context, node types.ExplorationNode) {
	snap, err := e.page.Capture(ctx)
	if err != nil {
		e.log.Warn("bulk capture failed", zap.Error(err))
		return
	}
	subtree, err := e.oracle.BulkExtract(ctx, node.Name(), snap)
	if err != nil {
		e.log.Warn("bulk extract failed", zap.String("tab", node.Name()), zap.Error(err))
		return
	}
	e.states = append(e.states, flattenCategory(nil, subtree)...)
}

// flattenCategory converts an extracted subtree into discovery states,
// one per node that has children.
func flattenCategory(prefix []string, c *types.Category) []types.DiscoveryState {
	path := append(append([]string{}, prefix...), c.Name)
	st := types.DiscoveryState{Path: path}
	for _, child := range c.Children {
		if child.URL != "" {
			if st.NewLinks == nil {
				st.NewLinks = make(map[string]string)
			}
			st.NewLinks[child.Name] = child.URL
		}
		if len(child.Children) > 0 {
			st.NewExpandables = append(st.NewExpandables, child.Name)
		}
	}
	out := []types.DiscoveryState{st}
	for _, child := range c.Children {
		if len(child.Children) > 0 {
			out = append(out, flattenCategory(path, child)...)
		}
	}
	return out
}

// runIncremental is the main DFS loop: pop, interact, diff, classify,
// push. It stops on empty stack, exhausted budget, or cancellation.
func (e *Engine) runIncremental(ctx context.Context) error {
	for len(e.stack) > 0 {
		if err := ctx.Err(); err != nil {
			e.log.Info("run cancelled, flushing partial states", zap.Int("states", len(e.states)))
			return err
		}
		if e.turns >= e.cfg.turnBudget() {
			e.log.Warn("turn budget exceeded",
				zap.Int("turns", e.turns),
				zap.Int("pending", len(e.stack)))
			return ErrBudgetExceeded
		}
		node := e.pop()
		if e.explored[node.Key()] {
			continue
		}
		e.markExplored(node)
		e.exploreNode(ctx, node)
	}
	return nil
}

// exploreNode performs one interaction cycle for a pending node. All
// failures abandon only this node.
func (e *Engine) exploreNode(ctx context.Context, node types.ExplorationNode) {
	if !e.tracker.VerifyOpen(ctx, e.mctx) {
		if err := e.tracker.Restore(ctx, e.mctx, e.replayFor(node)); err != nil {
			e.log.Warn("abandoning node, menu unrecoverable",
				zap.Strings("path", node.Path), zap.Error(err))
			return
		}
	}

	before, err := e.page.Capture(ctx)
	if err != nil {
		return
	}
	urlBefore, _ := e.page.URL(ctx)
	loc := e.locatorFor(node)

	e.turns++
	d, action, err := e.interact(ctx, before, loc)
	if err != nil {
		e.log.Debug("interaction failed", zap.Stringer("loc", loc), zap.Error(err))
		return
	}
	e.steps = append(e.steps, types.InteractionStep{Action: action, Role: loc.Role, Name: loc.Name})

	// A URL change below the top level means this node is really a leaf
	// listing link; record it and return to menu state.
	urlAfter, _ := e.page.URL(ctx)
	if urlAfter != "" && urlBefore != "" && urlAfter != urlBefore && node.Depth() > 1 {
		e.log.Debug("navigation drift, node is a leaf link",
			zap.Strings("path", node.Path), zap.String("url", urlAfter))
		e.states = append(e.states, types.DiscoveryState{
			Path:       node.Path,
			IsLeafPage: true,
			NewLinks:   map[string]string{node.Name(): urlAfter},
		})
		if err := e.tracker.Restore(ctx, e.mctx, e.replayFor(node)); err != nil {
			e.log.Warn("restore after drift failed", zap.Error(err))
		}
		return
	}

	if d.Empty() {
		return
	}
	e.processReveal(ctx, node, d)
}

// interact hovers first; when hovering reveals nothing substantial it
// clicks instead.
func (e *Engine) interact(ctx context.Context, before snapshot.Snapshot, loc browser.Locator) (*snapshot.Diff, string, error) {
	if err := e.page.Hover(ctx, loc); err == nil {
		after, err := e.page.Capture(ctx)
		if err != nil {
			return nil, "", err
		}
		d := snapshot.Compute(before, after)
		if d.SubstantialReveal(e.cfg.RevealMinAdded) {
			return d, "hover", nil
		}
	}
	if err := e.page.Click(ctx, loc); err != nil {
		return nil, "", err
	}
	after, err := e.page.Capture(ctx)
	if err != nil {
		return nil, "", err
	}
	return snapshot.Compute(before, after), "click", nil
}

// processReveal classifies a non-empty diff and either records a leaf or
// partitions the revealed elements into links and expandable children.
func (e *Engine) processReveal(ctx context.Context, node types.ExplorationNode, d *snapshot.Diff) {
	pageType, err := e.oracle.ClassifyPageType(ctx, d, node.Path)
	if err != nil {
		pageType = types.PageCategory
	}
	if pageType == types.PageLeafListing {
		st := types.DiscoveryState{Path: node.Path, IsLeafPage: true}
		if node.URL != "" {
			st.NewLinks = map[string]string{node.Name(): node.URL}
		}
		e.states = append(e.states, st)
		return
	}

	links, expandables := e.partition(ctx, node, d)
	st := types.DiscoveryState{Path: node.Path, NewLinks: links}
	for _, child := range expandables {
		st.NewExpandables = append(st.NewExpandables, child.Name())
		e.push(child)
	}
	e.states = append(e.states, st)
}

// partition splits the diff's added lines into plain category links and
// expandable children, dropping oracle-flagged utility groups. Raw link
// extraction is a superset filtered down to the approved subset; nothing
// unfiltered is stored.
func (e *Engine) partition(ctx context.Context, node types.ExplorationNode, d *snapshot.Diff) (map[string]string, []types.ExplorationNode) {
	var lines []snapshot.Line
	groups := make(map[string][]string)
	for _, raw := range d.Added {
		l, ok := snapshot.ParseLine(raw)
		if !ok || !snapshot.IsActionable(raw) {
			continue
		}
		lines = append(lines, l)
		if l.Group != "" {
			groups[l.Group] = append(groups[l.Group], l.Name)
		}
	}
	excluded := make(map[string]bool)
	if len(groups) > 0 {
		if verdicts, err := e.oracle.ExcludeUtilityGroups(ctx, groups); err == nil {
			excluded = verdicts
		}
	}

	links := make(map[string]string)
	var buttonLines []snapshot.Line
	var lastLink string
	var pairs []oracle.ButtonPair
	for _, l := range lines {
		if excluded[l.Group] {
			continue
		}
		switch l.Role {
		case "link":
			if l.URL != "" {
				links[l.Name] = l.URL
			}
			lastLink = l.Name
		case "button", "tab":
			buttonLines = append(buttonLines, l)
			pairs = append(pairs, oracle.ButtonPair{Button: l.Name, NearbyLink: lastLink, Depth: l.Depth})
		}
	}

	relationships := make(map[string]types.Relationship)
	if len(pairs) > 0 {
		if verdicts, err := e.oracle.ClassifyButtonRelationships(ctx, pairs); err == nil {
			relationships = verdicts
		}
	}

	var expandables []types.ExplorationNode
	if node.Depth() >= e.cfg.maxDepth() {
		return links, nil
	}
	for _, l := range buttonLines {
		if relationships[l.Name] != types.RelExpands {
			continue
		}
		child := types.ExplorationNode{
			Path: append(append([]string{}, node.Path...), l.Name),
			Kind: types.KindExpandable,
			Role: l.Role,
		}
		if !e.admissible(node, child) {
			continue
		}
		expandables = append(expandables, child)
	}
	return links, expandables
}

// admissible enforces the push guards: never the parent's own name (the
// self-loop guard for misfiring diffs), never a path already explored,
// never a path already pending on the stack.
func (e *Engine) admissible(parent, child types.ExplorationNode) bool {
	if child.Name() == parent.Name() {
		return false
	}
	key := child.Key()
	return !e.explored[key] && !e.stacked[key]
}

func (e *Engine) push(node types.ExplorationNode) {
	key := node.Key()
	if e.explored[key] || e.stacked[key] {
		return
	}
	e.stacked[key] = true
	e.locators[key] = browser.Locator{Role: roleOrDefault(node.Role), Name: node.Name()}
	e.stack = append(e.stack, node)
}

func (e *Engine) pop() types.ExplorationNode {
	node := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	delete(e.stacked, node.Key())
	return node
}

func (e *Engine) markExplored(node types.ExplorationNode) {
	e.explored[node.Key()] = true
}

func (e *Engine) locatorFor(node types.ExplorationNode) browser.Locator {
	if loc, ok := e.locators[node.Key()]; ok {
		return loc
	}
	return browser.Locator{Role: roleOrDefault(node.Role), Name: node.Name()}
}

// replayFor lists the clicks that lead from a freshly opened menu back
// to the node's parent: one per proper ancestor.
func (e *Engine) replayFor(node types.ExplorationNode) []browser.Locator {
	var replay []browser.Locator
	for i := 1; i < len(node.Path); i++ {
		key := types.PathKey(node.Path[:i])
		if loc, ok := e.locators[key]; ok {
			replay = append(replay, loc)
		}
	}
	return replay
}

func roleOrDefault(role string) string {
	if role == "" {
		return "link"
	}
	return role
}

// roleFor finds the role the snapshot assigns to a name.
func roleFor(snap snapshot.Snapshot, name string) string {
	for _, raw := range snap.Lines {
		if l, ok := snapshot.ParseLine(raw); ok && l.Name == name {
			return l.Role
		}
	}
	return "link"
}
