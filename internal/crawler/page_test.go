package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><title> Go 1.24 released </title>
<meta property="article:published_time" content="2025-02-11T10:00:00Z">
<script>var x = 1;</script></head>
<body><nav>menu</nav><article><h1>Go 1.24</h1>
<p>Generic type   aliases are now fully supported.</p>
</article><footer>copyright</footer></body></html>`

func TestExtractPage(t *testing.T) {
	page, err := ExtractPage("https://go.dev/blog", []byte(samplePage))
	require.NoError(t, err)
	assert.Equal(t, "Go 1.24 released", page.Title)
	assert.Equal(t, "2025-02-11T10:00:00Z", page.Published)
	assert.Contains(t, page.Text, "Generic type aliases are now fully supported.")
	assert.NotContains(t, page.Text, "menu")
	assert.NotContains(t, page.Text, "var x")
}

func TestFetchPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := NewFetcher(5*time.Second, 10)
	pages := f.FetchPages(context.Background(), []string{srv.URL + "/ok", srv.URL + "/missing"})
	require.Len(t, pages, 2)
	require.NoError(t, pages[0].Err)
	assert.Len(t, []rune(pages[0].Text), 10)

	var se *StatusError
	require.ErrorAs(t, pages[1].Err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)

	formatted := FormatPages(pages)
	assert.Contains(t, formatted, srv.URL+"/ok")
	assert.NotContains(t, formatted, srv.URL+"/missing")
}
