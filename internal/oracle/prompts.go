package oracle

// Prompts sent to the classification model. Each one demands a single
// JSON object so the response can be schema-validated at the boundary.

const stricterSuffix = `

IMPORTANT: your previous answer did not match the required schema.
Respond with EXACTLY ONE JSON object matching the schema above. No prose,
no markdown fences, no fields beyond those listed. String values must be
copied verbatim from the input.`

const promptTopLevelTabs = `You are looking at a structural snapshot of an
e-commerce site's open navigation menu. Each line is one visible element:
role, quoted accessible name, optional {style-group} and -> url.

Identify the TOP-LEVEL product category tabs: the entries a shopper would
use to browse the catalog (e.g. Women, Men, Kids, Sale). Exclude utility
entries such as account, cart, wishlist, search, store locator, help,
language or country pickers.

Respond with one JSON object:
{"tabs": ["<name>", ...]}

Each name must be copied verbatim from a snapshot line.`

const promptButtonRelationships = `Each input pair is a button from an
e-commerce navigation menu together with the link that appears nearest to
it, plus the menu nesting depth where both sit.

For each button decide whether it EXPANDS a submenu that contains the
nearby link (chevrons, "+" toggles, tab headers behave this way) or is a
SEPARATE control unrelated to the link.

Respond with one JSON object:
{"relationships": {"<button>": "EXPANDS" | "SEPARATE", ...}}

Include a verdict for every input button, keyed by its exact name.`

const promptUtilityGroups = `The input maps style-group signatures to the
element names that share that group in an e-commerce navigation menu.

Decide which groups are utility chrome rather than product-category
navigation: account, login, cart, checkout, wishlist, search, customer
service, newsletter, language/currency/region pickers, social links.

Respond with one JSON object:
{"exclude": ["<signature>", ...]}

List only signatures present in the input. When unsure, leave the group
in: downstream filtering prunes better than it restores.`

const promptPageType = `An automated explorer clicked a navigation entry
on an e-commerce site. "path" is the menu trail that led there, "added"
is the structural diff of what the click revealed, "removed" is how many
lines disappeared.

Decide whether this landed on a CATEGORY (more navigation beneath it:
subcategory links, a submenu panel) or a LEAF_PRODUCT_LISTING (a product
grid: prices, product names, sort/filter controls, pagination).

Respond with one JSON object:
{"page_type": "CATEGORY" | "LEAF_PRODUCT_LISTING"}`

const promptBulkExtract = `This e-commerce site pre-renders its entire
menu. The snapshot below shows every visible element while the "{{tab}}"
tab is active. Reconstruct that tab's complete category subtree.

Rules: only product categories, no utility entries; preserve the nesting
the indentation implies; copy names verbatim; attach each category's url
when its line has one.

Respond with one JSON object:
{"tree": {"name": "<tab>", "url": "...", "children": [{"name": ..., "url": ..., "children": [...]}]}}

The root name must equal the tab name exactly.`
