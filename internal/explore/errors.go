package explore

import "errors"

// Reason codes attached to failed runs. A run always terminates with
// either Success=true or Success=false plus one of these; no fault
// escapes a single site's discovery to the caller driving many sites.
const (
	ReasonMenuNotFound    = "menu_not_found"
	ReasonBudgetExceeded  = "budget_exceeded"
	ReasonEmptyExtraction = "empty_extraction"
	ReasonCancelled       = "cancelled"
	ReasonBrowserFailed   = "browser_failed"
)

// ErrBudgetExceeded signals the global turn budget ran out with the
// stack still non-empty. The partial state list is preserved.
var ErrBudgetExceeded = errors.New("explore: turn budget exceeded")

// ErrEmptyExtraction signals a run that completed but yielded zero
// categories. Treated as failure, never saved as success.
var ErrEmptyExtraction = errors.New("explore: empty extraction")
