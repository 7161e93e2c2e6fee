package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplateIsValid(t *testing.T) {
	tpl := Default()
	require.NoError(t, tpl.Validate())
	assert.Contains(t, tpl.Raw(), "FREE DOWNLOAD")
}

func TestRenderSubstitutesBothPlaceholders(t *testing.T) {
	out := Default().Render("Great brushes", "https://x.com/pref/10179364/?campaign=actions")
	assert.Contains(t, out, `<a href="https://x.com/pref/10179364/?campaign=actions" class="download-button">`)
	assert.Contains(t, out, "<p>Great brushes</p>")
	assert.NotContains(t, out, PlaceholderDescription)
	assert.NotContains(t, out, PlaceholderLink)
}

func TestRenderOrderExpandsLinkInsideDescription(t *testing.T) {
	tpl := &Template{raw: "<p>{description}</p>"}
	assert.Equal(t, "<p>see https://x</p>", tpl.Render("see {product_link}", "https://x"))

	// the link is inserted last and is never re-scanned for {description}
	tpl = &Template{raw: `<a href="{product_link}">{description}</a>`}
	assert.Equal(t, `<a href="https://x/{description}">d</a>`, tpl.Render("d", "https://x/{description}"))
}

func TestParseRejectsTemplatesWithoutPlaceholders(t *testing.T) {
	_, err := Parse(`<a href="{product_link}">go</a>`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{description}")

	_, err = Parse(`<p>{description}</p><p>{product_link}</p>`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{product_link}")

	tpl, err := Parse(`<a href="{product_link}">go</a><p>{description}</p>`)
	require.NoError(t, err)
	assert.Equal(t, `<a href="L">go</a><p>D</p>`, tpl.Render("D", "L"))
}

func TestLoad(t *testing.T) {
	tpl, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Raw(), tpl.Raw())

	path := filepath.Join(t.TempDir(), "post.html")
	require.NoError(t, os.WriteFile(path, []byte(`<p>{description}</p><a href="{product_link}">x</a>`), 0o600))
	tpl, err = Load(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tpl.Raw(), "<p>"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.html"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPreview(t *testing.T) {
	body := Default().Render("Great brushes", "https://x.com/p")
	out, err := NewPreviewer().Preview("Brush Pack", body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Brush Pack\n\n"))
	assert.Contains(t, out, "Great brushes")
	assert.Contains(t, out, "(https://x.com/p)")
	assert.NotContains(t, out, "download-button")
}
