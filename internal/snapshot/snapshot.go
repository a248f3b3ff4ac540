// Package snapshot captures and compares structural snapshots of the
// visible page. A snapshot is an ordered sequence of text lines, one per
// semantically labeled element (role, accessible name, nesting depth).
// Snapshots are immutable once captured; comparison happens by line-set
// subtraction, never by mutating either side.
package snapshot

import (
	"fmt"
	"strings"
)

// Snapshot is an ordered sequence of element lines.
type Snapshot struct {
	Lines []string
}

// New builds a snapshot from raw capture output, one element per line.
// Blank lines are dropped; order is preserved.
func New(raw string) Snapshot {
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return Snapshot{Lines: lines}
}

// Text returns the snapshot as a newline-joined string.
func (s Snapshot) Text() string { return strings.Join(s.Lines, "\n") }

// Len returns the number of element lines.
func (s Snapshot) Len() int { return len(s.Lines) }

// Contains reports whether any line contains the given marker substring.
// This is the cheap menu-open check used before falling back to a full diff.
func (s Snapshot) Contains(marker string) bool {
	if marker == "" {
		return false
	}
	for _, l := range s.Lines {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

// Line is the parsed form of one snapshot line.
type Line struct {
	Role  string
	Name  string
	Group string // nearest styled container, the utility-group signature
	URL   string // links only
	Depth int    // menu nesting depth, from indentation
}

// indentUnit is the indentation emitted per nesting level.
const indentUnit = "  "

// FormatLine serializes a Line into the snapshot grammar:
//
//	<indent><role> "<name>" [{group}] [-> url]
func FormatLine(l Line) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(indentUnit, l.Depth))
	b.WriteString(l.Role)
	fmt.Fprintf(&b, " %q", l.Name)
	if l.Group != "" {
		fmt.Fprintf(&b, " {%s}", l.Group)
	}
	if l.URL != "" {
		b.WriteString(" -> ")
		b.WriteString(l.URL)
	}
	return b.String()
}

// ParseLine parses one snapshot line. It returns ok=false for lines that
// do not follow the grammar; such lines still participate in diffing as
// opaque text.
func ParseLine(raw string) (Line, bool) {
	var l Line
	rest := raw
	for strings.HasPrefix(rest, indentUnit) {
		l.Depth++
		rest = rest[len(indentUnit):]
	}
	role, rest, ok := strings.Cut(rest, " ")
	if !ok || role == "" {
		return Line{}, false
	}
	l.Role = role
	if !strings.HasPrefix(rest, `"`) {
		return Line{}, false
	}
	end := strings.Index(rest[1:], `"`)
	if end < 0 {
		return Line{}, false
	}
	l.Name = rest[1 : 1+end]
	rest = strings.TrimSpace(rest[end+2:])
	if strings.HasPrefix(rest, "{") {
		close := strings.Index(rest, "}")
		if close < 0 {
			return Line{}, false
		}
		l.Group = rest[1:close]
		rest = strings.TrimSpace(rest[close+1:])
	}
	if after, found := strings.CutPrefix(rest, "-> "); found {
		l.URL = strings.TrimSpace(after)
	}
	return l, true
}

// actionableRoles are roles that indicate an interactive menu element.
var actionableRoles = map[string]bool{
	"link":   true,
	"button": true,
	"tab":    true,
}

// IsActionable reports whether the line carries a link, button, or tab role.
func IsActionable(raw string) bool {
	l, ok := ParseLine(raw)
	return ok && actionableRoles[l.Role]
}

// CaptureScript is the JavaScript injected into the page to serialize the
// visible semantic elements. It returns one line per element in document
// order. Depth counts list/nav container nesting, the group tag is the
// first class of the nearest classed ancestor, links carry their href.
const CaptureScript = `() => {
	const lines = [];
	const visible = (el) => {
		const r = el.getBoundingClientRect();
		if (r.width === 0 && r.height === 0) return false;
		const cs = getComputedStyle(el);
		return cs.visibility !== 'hidden' && cs.display !== 'none' && cs.opacity !== '0';
	};
	const roleOf = (el) => {
		const explicit = el.getAttribute('role');
		if (explicit === 'tab') return 'tab';
		if (explicit === 'button') return 'button';
		if (explicit === 'link') return 'link';
		const tag = el.tagName.toLowerCase();
		if (tag === 'a' && el.hasAttribute('href')) return 'link';
		if (tag === 'button') return 'button';
		if (tag === 'h1' || tag === 'h2' || tag === 'h3') return 'heading';
		return null;
	};
	const depthOf = (el) => {
		let d = 0;
		for (let p = el.parentElement; p; p = p.parentElement) {
			const t = p.tagName.toLowerCase();
			if (t === 'ul' || t === 'ol' || t === 'nav' || t === 'menu' ||
				p.getAttribute('role') === 'menu' || p.getAttribute('role') === 'tablist') d++;
		}
		return Math.min(d, 12);
	};
	const groupOf = (el) => {
		for (let p = el.parentElement; p; p = p.parentElement) {
			const c = (p.getAttribute('class') || '').trim().split(/\s+/)[0];
			if (c) return c.slice(0, 40);
		}
		return '';
	};
	for (const el of document.querySelectorAll('a,button,[role=tab],[role=button],[role=link],h1,h2,h3')) {
		const role = roleOf(el);
		if (!role || !visible(el)) continue;
		const name = (el.getAttribute('aria-label') || el.innerText || '')
			.trim().replace(/\s+/g, ' ').slice(0, 80);
		if (!name) continue;
		let line = '  '.repeat(depthOf(el)) + role + ' "' + name.replace(/"/g, "'") + '"';
		const group = groupOf(el);
		if (group) line += ' {' + group + '}';
		if (role === 'link' && el.href) line += ' -> ' + el.href;
		lines.push(line);
	}
	return lines.join('\n');
}`
