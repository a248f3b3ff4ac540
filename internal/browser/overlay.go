package browser

import (
	"context"

	"go.uber.org/zap"
)

// dismissScript clicks the usual blocking chrome: cookie-consent accepts,
// newsletter modals, region pickers. When menuOpen is true it restricts
// itself to fixed-position dialogs outside any nav element so an already
// open menu is never closed.
const dismissScript = `(menuOpen) => {
	let clicked = 0;
	const accept = /^(accept|accept all|allow all|agree|i agree|got it|ok|close|no thanks|×|✕)$/i;
	const candidates = document.querySelectorAll(
		'[id*="cookie" i] button, [class*="cookie" i] button,' +
		'[id*="consent" i] button, [class*="consent" i] button,' +
		'[role="dialog"] button, [aria-modal="true"] button,' +
		'[class*="modal" i] button[class*="close" i], button[aria-label*="close" i]');
	for (const btn of candidates) {
		if (menuOpen && btn.closest('nav, [role="navigation"], [role="menu"]')) continue;
		const label = ((btn.getAttribute('aria-label') || btn.innerText) || '').trim();
		const isClose = /close/i.test(btn.getAttribute('aria-label') || '') ||
			/close/i.test(btn.className || '');
		if (!accept.test(label) && !isClose) continue;
		const r = btn.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		btn.click();
		clicked++;
		if (clicked >= 3) break;
	}
	return String(clicked);
}`

// DismissOverlays is a best-effort sweep of blocking popups before menu
// interaction. menuOpen tells it an open menu must survive the sweep.
// Failures are logged, never propagated; the caller proceeds regardless.
func DismissOverlays(ctx context.Context, page Page, menuOpen bool, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	js := "() => (" + dismissScript + ")(" + boolJS(menuOpen) + ")"
	out, err := page.Eval(ctx, js)
	if err != nil {
		log.Debug("overlay dismissal failed", zap.Error(err))
		return
	}
	if out != "" && out != "0" {
		log.Debug("dismissed overlays", zap.String("count", out))
	}
}

func boolJS(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
