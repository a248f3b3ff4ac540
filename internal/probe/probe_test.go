package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navscout/internal/types"
)

var richHTML = `<!doctype html>
<html><head><title>Shop</title></head><body>
<nav><a href="/women">Women</a><a href="/men">Men</a></nav>
<main>` + loremBlock + `</main>
</body></html>`

// Enough visible text that the page does not read as an SPA shell.
var loremBlock = strings.Repeat("<p>Quality garments for every season, delivered to your door.</p>\n", 20)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeDetectsShopifyCollections(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"collections":[{"title":"Dresses","handle":"dresses"}]}`))
		case "/":
			w.Write([]byte(richHTML))
		default:
			http.NotFound(w, r)
		}
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodAPI, res.Method)
	assert.Equal(t, srv.URL+"/collections.json", res.Endpoint)
}

func TestProbeIgnoresNonNavJSON(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections.json":
			// 200 with an unrelated JSON envelope must not count.
			w.Write([]byte(`{"error":"not found"}`))
		default:
			w.Write([]byte(richHTML))
		}
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodDOM, res.Method)
}

func TestProbeDetectsNextData(t *testing.T) {
	page := `<!doctype html><html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"navigation":{"tabs":["Women","Men"]}}}</script>
` + loremBlock + `</body></html>`
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(page))
			return
		}
		http.NotFound(w, r)
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodEmbeddedJSON, res.Method)
	assert.Equal(t, "next_data", res.EmbeddedKind)
}

func TestProbeNextDataWithoutNavFallsThrough(t *testing.T) {
	page := `<!doctype html><html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"article":"hello"}}}</script>
` + loremBlock + `</body></html>`
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(page))
			return
		}
		http.NotFound(w, r)
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodDOM, res.Method)
}

func TestProbeDetectsSiteNavigationElement(t *testing.T) {
	page := `<!doctype html><html><body>
<script type="application/ld+json">{"@type":"SiteNavigationElement","name":["Women","Men"]}</script>
` + loremBlock + `</body></html>`
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(page))
			return
		}
		http.NotFound(w, r)
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodEmbeddedJSON, res.Method)
	assert.Equal(t, "site_navigation", res.EmbeddedKind)
}

func TestProbeFlagsSPAShell(t *testing.T) {
	page := `<!doctype html><html><head><script src="/bundle.js"></script></head>
<body><div id="root"></div></body></html>`
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(page))
			return
		}
		http.NotFound(w, r)
	})

	res, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, types.MethodDOM, res.Method)
	assert.True(t, res.SPAShell)
}

func TestProbeUnreachableSite(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := New(DefaultConfig(), nil).Probe(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestSPAShellHeuristics(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"tiny body", "<html></html>", true},
		{"bare react mount", `<html><body><div id="root"></div>` + strings.Repeat("x", 300) + `</body></html>`, true},
		{"server rendered", richHTML, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, spaShell([]byte(tc.body)))
		})
	}
}
