// Package tree converts the flat discovery-state sequence into the final
// category tree and applies the post-filters that strip shared chrome,
// homepage links, and probable product links.
package tree

import (
	"net/url"
	"regexp"
	"strings"

	"navscout/internal/types"
)

// ProductNameMinWords is the word count at which a name containing a
// product noun is treated as a product title rather than a category.
// Empirically chosen.
const ProductNameMinWords = 4

// Build inserts every state's (path, links) into a trie keyed by path
// segments, then filters in a fixed order: cross-branch duplicates first
// (a product link is detected more reliably once duplicate chrome is
// gone), then homepage links, then product-link heuristics, then
// parent/child URL duplicates.
func Build(states []types.DiscoveryState) *types.Category {
	root := &types.Category{}
	for _, st := range states {
		node := ensurePath(root, st.Path)
		for name, link := range st.NewLinks {
			if name == node.Name && node.URL == "" {
				node.URL = link
				continue
			}
			child := node.Child(name)
			if child == nil {
				child = &types.Category{Name: name}
				node.Children = append(node.Children, child)
			}
			if child.URL == "" {
				child.URL = link
			}
		}
		for _, name := range st.NewExpandables {
			if node.Child(name) == nil && name != node.Name {
				node.Children = append(node.Children, &types.Category{Name: name})
			}
		}
	}

	dropCrossBranch(root)
	dropHomepageLinks(root)
	dropProductLinks(root)
	dropParentChildDuplicates(root)
	prune(root)
	return root
}

func ensurePath(root *types.Category, path []string) *types.Category {
	node := root
	for _, seg := range path {
		child := node.Child(seg)
		if child == nil {
			child = &types.Category{Name: seg}
			node.Children = append(node.Children, child)
		}
		node = child
	}
	return node
}

// dropCrossBranch removes every occurrence of a URL that appears under
// two or more distinct top-level branches: such URLs are shared chrome,
// not categories.
func dropCrossBranch(root *types.Category) {
	branches := make(map[string]map[string]bool) // url -> top-level names
	for _, top := range root.Children {
		walk(top, func(n *types.Category) {
			if n.URL == "" {
				return
			}
			if branches[n.URL] == nil {
				branches[n.URL] = make(map[string]bool)
			}
			branches[n.URL][top.Name] = true
		})
	}
	shared := make(map[string]bool)
	for u, tops := range branches {
		if len(tops) >= 2 {
			shared[u] = true
		}
	}
	if len(shared) == 0 {
		return
	}
	filterTree(root, func(n *types.Category) bool { return shared[n.URL] })
}

// dropHomepageLinks removes links pointing at the site root.
func dropHomepageLinks(root *types.Category) {
	filterTree(root, func(n *types.Category) bool { return isHomepage(n.URL) })
}

func isHomepage(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	return p == "" && u.RawQuery == "" && u.Fragment == ""
}

// dropProductLinks removes links that look like individual products
// rather than category listings. Known to both over- and under-filter;
// the heuristics are kept deliberately simple.
func dropProductLinks(root *types.Category) {
	filterTree(root, func(n *types.Category) bool { return looksLikeProduct(n.Name, n.URL) })
}

var productPathSegments = map[string]bool{
	"product":  true,
	"products": true,
	"p":        true,
	"item":     true,
}

var discountPricePattern = regexp.MustCompile(`(?i)(\d+\s*%\s*off|[$€£]\s*\d+(\.\d{2})?|\bsale\s+\d|\bfrom\s+[$€£]\d)`)

// productNouns are singular noun stems; matching is prefix-based per
// word so plurals hit too.
var productNouns = []string{
	"dress", "shirt", "tee", "top", "sneaker", "shoe", "boot", "sandal",
	"jacket", "coat", "jean", "trouser", "pant", "short", "skirt",
	"hoodie", "sweater", "sweatshirt", "legging", "bag", "watch",
	"necklace", "ring", "sofa", "chair", "table", "lamp", "mug",
}

func looksLikeProduct(name, raw string) bool {
	if raw != "" {
		if u, err := url.Parse(raw); err == nil {
			for _, seg := range strings.Split(u.Path, "/") {
				if productPathSegments[strings.ToLower(seg)] {
					return true
				}
			}
		}
	}
	if name == "" {
		return false
	}
	if discountPricePattern.MatchString(name) {
		return true
	}
	words := strings.Fields(strings.ToLower(name))
	if len(words) < ProductNameMinWords {
		return false
	}
	for _, w := range words {
		for _, noun := range productNouns {
			if strings.HasPrefix(w, noun) {
				return true
			}
		}
	}
	return false
}

// dropParentChildDuplicates removes children whose URL equals their
// parent's own URL; the child adds nothing.
func dropParentChildDuplicates(root *types.Category) {
	walk(root, func(n *types.Category) {
		if n.URL == "" {
			return
		}
		kept := n.Children[:0]
		for _, child := range n.Children {
			if child.URL == n.URL && len(child.Children) == 0 {
				continue
			}
			kept = append(kept, child)
		}
		n.Children = kept
	})
}

// filterTree applies matcher to every node below root: matching leaf
// nodes are removed, matching internal nodes lose their URL but keep
// their subtree.
func filterTree(root *types.Category, match func(*types.Category) bool) {
	var rec func(n *types.Category)
	rec = func(n *types.Category) {
		kept := n.Children[:0]
		for _, child := range n.Children {
			rec(child)
			if match(child) {
				if len(child.Children) == 0 {
					continue
				}
				child.URL = ""
			}
			kept = append(kept, child)
		}
		n.Children = kept
	}
	rec(root)
}

// prune removes empty leftovers: nodes with no name, or no URL and no
// children.
func prune(root *types.Category) {
	var rec func(n *types.Category)
	rec = func(n *types.Category) {
		kept := n.Children[:0]
		for _, child := range n.Children {
			rec(child)
			if child.Name == "" || (child.URL == "" && len(child.Children) == 0) {
				continue
			}
			kept = append(kept, child)
		}
		n.Children = kept
	}
	rec(root)
}

func walk(n *types.Category, fn func(*types.Category)) {
	fn(n)
	for _, child := range n.Children {
		walk(child, fn)
	}
}
