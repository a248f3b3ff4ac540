// Package types defines the shared data model for navigation discovery:
// exploration nodes, discovery states, the category tree, and the run
// record handed to the downstream extraction stage.
package types

import (
	"strings"
	"time"
)

// Method identifies how a site's navigation data was obtained.
type Method string

const (
	MethodAPI          Method = "api"
	MethodEmbeddedJSON Method = "embedded_json"
	MethodDOM          Method = "dom"
)

// PageType is the oracle's verdict for what an interaction revealed.
type PageType string

const (
	PageCategory    PageType = "CATEGORY"
	PageLeafListing PageType = "LEAF_PRODUCT_LISTING"
)

// Relationship classifies a button relative to a nearby link.
type Relationship string

const (
	RelExpands  Relationship = "EXPANDS"
	RelSeparate Relationship = "SEPARATE"
)

// NodeKind distinguishes expandable menu entries from plain links.
type NodeKind string

const (
	KindExpandable NodeKind = "expandable"
	KindLeaf       NodeKind = "leaf"
)

// ExplorationNode is one pending entry on the DFS stack. Identity is the
// path, not the struct: two nodes with equal paths are the same node.
type ExplorationNode struct {
	Path []string `json:"path"`
	Kind NodeKind `json:"kind"`
	Role string   `json:"role,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// pathSep never occurs in accessible names.
const pathSep = "\x1f"

// Key returns the canonical identity of the node's path.
func (n ExplorationNode) Key() string { return PathKey(n.Path) }

// Name returns the last path segment, the menu item this node points at.
func (n ExplorationNode) Name() string {
	if len(n.Path) == 0 {
		return ""
	}
	return n.Path[len(n.Path)-1]
}

// Depth is the nesting depth of the node, 1 for top-level tabs.
func (n ExplorationNode) Depth() int { return len(n.Path) }

// PathKey canonicalizes a path for set membership checks.
func PathKey(path []string) string { return strings.Join(path, pathSep) }

// DiscoveryState is the authoritative record of one exploration step.
// The engine appends states during the run and never mutates them after.
type DiscoveryState struct {
	Path           []string          `json:"path"`
	NewLinks       map[string]string `json:"new_links,omitempty"`
	NewExpandables []string          `json:"new_expandables,omitempty"`
	IsLeafPage     bool              `json:"is_leaf_page,omitempty"`
}

// Category is one node of the final navigation tree.
type Category struct {
	Name     string      `json:"name"`
	URL      string      `json:"url,omitempty"`
	Children []*Category `json:"children,omitempty"`
}

// Count returns the number of nodes in the subtree, excluding the
// synthetic root when called on it with an empty name.
func (c *Category) Count() int {
	if c == nil {
		return 0
	}
	n := 0
	if c.Name != "" {
		n = 1
	}
	for _, child := range c.Children {
		n += child.Count()
	}
	return n
}

// Child returns the direct child with the given name, or nil.
func (c *Category) Child(name string) *Category {
	for _, child := range c.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// InteractionStep is one recorded browser action. The downstream
// extraction stage replays these deterministically, without oracle calls.
type InteractionStep struct {
	Action string `json:"action"` // navigate, click, hover
	Role   string `json:"role,omitempty"`
	Name   string `json:"name,omitempty"`
	URL    string `json:"url,omitempty"`
}

// RunRecord is the discovery output artifact, the sole contract between
// discovery and the deterministic re-extraction step.
type RunRecord struct {
	ID           string            `json:"id"`
	Site         string            `json:"site"`
	Method       Method            `json:"method"`
	Steps        []InteractionStep `json:"steps,omitempty"`
	Tree         *Category         `json:"tree,omitempty"`
	States       []DiscoveryState  `json:"states,omitempty"`
	Turns        int               `json:"turns"`
	OracleTokens int64             `json:"oracle_tokens"`
	Success      bool              `json:"success"`
	Reason       string            `json:"reason,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}
