package htmltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertBasicMarkup(t *testing.T) {
	got := Convert("<h1>Hello</h1><p>This is <strong>bold</strong> text.</p>")
	assert.Contains(t, got, "# Hello")
	assert.Contains(t, got, "**bold**")
}

func TestConvertLinks(t *testing.T) {
	got := Convert(`<p>See <a href="https://example.com">the docs</a>.</p>`)
	assert.Contains(t, got, "https://example.com")
	assert.Contains(t, got, "the docs")
}

func TestStripTagsRemovesScriptAndStyle(t *testing.T) {
	in := `<style>body{color:red}</style><script>alert(1)</script><p>visible</p>`
	got := StripTags(in)
	assert.Contains(t, got, "visible")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color:red")
}

func TestStripTagsStructure(t *testing.T) {
	in := `<h2>Title</h2><ul><li>one</li><li>two</li></ul><p>done</p>`
	got := StripTags(in)
	assert.Contains(t, got, "## Title")
	assert.Contains(t, got, "- one")
	assert.Contains(t, got, "- two")
	assert.Contains(t, got, "done")
}

func TestStripTagsEntities(t *testing.T) {
	got := StripTags("<p>fish &amp; chips &lt;now&gt;&nbsp;here</p>")
	assert.Contains(t, got, "fish & chips <now>")
}

func TestStripTagsTables(t *testing.T) {
	in := `<table><tr><td>a</td><td>b</td></tr><tr><td>c</td><td>d</td></tr></table>`
	got := StripTags(in)
	assert.Contains(t, got, "a | b")
	assert.Contains(t, got, "c | d")
}

func TestStripTagsCollapsesBlankLines(t *testing.T) {
	in := "<p>one</p><p></p><p></p><p>two</p>"
	got := StripTags(in)
	assert.NotContains(t, got, "\n\n\n")
	assert.True(t, strings.HasPrefix(got, "one"))
	assert.True(t, strings.HasSuffix(got, "two"))
}

func TestConvertEmptyInput(t *testing.T) {
	assert.Equal(t, "", Convert(""))
	assert.Equal(t, "", StripTags(""))
}
