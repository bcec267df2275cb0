package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title>Plain</title><meta property="og:title" content="The Real Title"></head>
<body>
<nav><p>Home About Contact and a long navigation paragraph that should never be kept</p></nav>
<article>
<h1>Headline</h1>
<p>The first paragraph of the article is long enough to be treated as real content by the extractor.</p>
<p>Short.</p>
<p>The second paragraph also carries enough words so that the article passes the standard threshold.</p>
<p>A third paragraph rounds things off with a closing thought that is also rather long and detailed.</p>
</article>
<footer><p>Copyright notice that is long enough to be a paragraph but lives in the footer.</p></footer>
<script>var x = "not text";</script>
</body></html>`

const listHTML = `<html><body>
<div><ul><li>Item one</li><li>Item two <p>nested</p></li></ul></div>
<h2>Section</h2>
</body></html>`

func TestExtractStandard(t *testing.T) {
	text, ok := Extract([]byte(articleHTML), false)
	require.True(t, ok)

	assert.Contains(t, text, "The first paragraph")
	assert.Contains(t, text, "closing thought")
	assert.NotContains(t, text, "Short.")
	assert.NotContains(t, text, "navigation")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "not text")
	assert.Equal(t, 3, strings.Count(text, "\n\n")+1)
}

func TestExtractStandardRejectsThinPages(t *testing.T) {
	_, ok := Extract([]byte(listHTML), false)
	assert.False(t, ok)
}

func TestExtractRecall(t *testing.T) {
	text, ok := Extract([]byte(listHTML), true)
	require.True(t, ok)

	assert.Contains(t, text, "Item one")
	assert.Contains(t, text, "Section")
	assert.Equal(t, 1, strings.Count(text, "nested"))
}

func TestExtractEmpty(t *testing.T) {
	_, ok := Extract([]byte(`<html><body><script>x()</script></body></html>`), true)
	assert.False(t, ok)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "The Real Title", Title([]byte(articleHTML)))
	assert.Equal(t, "Only", Title([]byte(`<title> Only </title>`)))
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(articleHTML))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil)

	body, err := f.Fetch(context.Background(), server.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, articleHTML, string(body))

	_, err = f.Fetch(context.Background(), server.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), server.URL+"/pdf")
	assert.ErrorContains(t, err, "content type")
}

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	return []byte(s.body), s.err
}

func TestExtractorBrowserFallback(t *testing.T) {
	t.Run("empty page is rendered", func(t *testing.T) {
		plain := &stubFetcher{body: `<html><body><div id="app"></div></body></html>`}
		browser := &stubFetcher{body: articleHTML}
		e := NewExtractor(plain, browser, time.Second, nil)

		text, err := e.Text(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.Contains(t, text, "The first paragraph")
		assert.Equal(t, 1, browser.calls)
	})

	t.Run("readable page skips browser", func(t *testing.T) {
		plain := &stubFetcher{body: articleHTML}
		browser := &stubFetcher{}
		e := NewExtractor(plain, browser, time.Second, nil)

		_, err := e.Fetch(context.Background(), "https://example.com")
		require.NoError(t, err)
		assert.Zero(t, browser.calls)
	})

	t.Run("fetch error without browser", func(t *testing.T) {
		e := NewExtractor(&stubFetcher{err: errors.New("dial")}, nil, time.Second, nil)
		_, err := e.Fetch(context.Background(), "https://example.com")
		assert.ErrorContains(t, err, "dial")
	})

	t.Run("both fail", func(t *testing.T) {
		e := NewExtractor(&stubFetcher{err: errors.New("dial")}, &stubFetcher{err: errors.New("chrome")}, time.Second, nil)
		_, err := e.Fetch(context.Background(), "https://example.com")
		assert.ErrorContains(t, err, "chrome")
	})
}

func TestExtractorTextNothingReadable(t *testing.T) {
	e := NewExtractor(&stubFetcher{body: `<html><body></body></html>`}, nil, time.Second, nil)
	_, err := e.Text(context.Background(), "https://example.com")
	assert.ErrorContains(t, err, "no readable text")
}
