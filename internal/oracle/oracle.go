// Package oracle is the client for the external classification service.
// Ambiguous menu decisions (tab identification, button-vs-link
// relationships, utility-group exclusion, page-type verdicts) are
// batched to an LLM, validated against a strict response schema, and
// cached by structural signature so the per-run oracle cost stays
// bounded.
package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"navscout/internal/snapshot"
	"navscout/internal/types"
)

// ErrSchemaViolation marks a response that failed schema validation.
// The client retries once with a stricter prompt before falling back to
// conservative defaults; the error never escapes to callers.
var ErrSchemaViolation = errors.New("oracle: response violates schema")

// ButtonPair is one button and the link nearest to it in the snapshot,
// the context the oracle needs to judge whether the button expands a
// submenu or is a separate control.
type ButtonPair struct {
	Button     string `json:"button"`
	NearbyLink string `json:"nearby_link"`
	Depth      int    `json:"depth"`
}

// Oracle is the decision service the exploration engine consults.
type Oracle interface {
	// IdentifyTopLevelTabs names the top-level menu tabs visible in the
	// snapshot.
	IdentifyTopLevelTabs(ctx context.Context, snap snapshot.Snapshot) ([]string, error)

	// ClassifyButtonRelationships judges, for each pair, whether the
	// button expands a submenu containing the nearby link or is separate.
	ClassifyButtonRelationships(ctx context.Context, pairs []ButtonPair) (map[string]types.Relationship, error)

	// ExcludeUtilityGroups returns, per style-group signature, whether
	// the group is utility chrome (account, cart, language) rather than
	// category navigation.
	ExcludeUtilityGroups(ctx context.Context, groups map[string][]string) (map[string]bool, error)

	// ClassifyPageType judges whether an interaction revealed more
	// categories or landed on a leaf product listing.
	ClassifyPageType(ctx context.Context, d *snapshot.Diff, path []string) (types.PageType, error)

	// BulkExtract reads an entire pre-rendered tab subtree from one
	// snapshot, for sites that render all menu content up front.
	BulkExtract(ctx context.Context, tab string, snap snapshot.Snapshot) (*types.Category, error)

	// TokensUsed reports cumulative token spend for run metadata.
	TokensUsed() int64
}

// LLM is the raw transport beneath the oracle client. Implementations
// return the model's response body as JSON.
type LLM interface {
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	TokensUsed() int64
}

// Stats counts oracle activity for one run.
type Stats struct {
	Calls            int
	SchemaViolations int
	Fallbacks        int
	CacheHits        int
	FatigueSkips     int
}
