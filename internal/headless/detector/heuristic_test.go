package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(crawler.FetchResponse{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := crawler.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<div id="__next"></div>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := crawler.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_PlainPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := "<html><body><h1>Lamp</h1><p>" + strings.Repeat("text ", 50) + "</p></body></html>"
	require.False(t, h.ShouldPromote(crawler.FetchResponse{StatusCode: 200, Body: []byte(body)}))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	resp := crawler.FetchResponse{
		StatusCode: 404,
		Body:       []byte("not found"),
	}
	require.False(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_AlreadyHeadless(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(crawler.FetchResponse{StatusCode: 200, UsedHeadless: true}))
}

func TestHeuristic_ShouldPromote_RequiredSelectors(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, "a.product-card", "h1.product-name")

	rendered := crawler.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<div id="root"><a class="product-card" href="/p/1">Lamp</a></div>`),
	}
	require.False(t, h.ShouldPromote(rendered), "a matching selector means the content is present")

	shell := crawler.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><body><div class="grid"></div>` + strings.Repeat("<p>filler</p>", 200) + `</body></html>`),
	}
	require.True(t, h.ShouldPromote(shell), "missing selectors should promote")
}
