// Package content renders the HTML body of a post from a template with
// {description} and {product_link} placeholders.
package content

import (
	_ "embed"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

const (
	PlaceholderDescription = "{description}"
	PlaceholderLink        = "{product_link}"
)

//go:embed templates/post.html
var defaultTemplate string

// Template is an immutable post body template.
type Template struct {
	raw string
}

// Default returns the built-in call-to-action template.
func Default() *Template { return &Template{raw: defaultTemplate} }

// Parse validates raw and wraps it.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a template from path, or returns Default when path is empty.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read template %s", path)
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "template %s", path)
	}
	return t, nil
}

// Raw returns the unrendered template text.
func (t *Template) Raw() string { return t.raw }

// Validate checks that the description placeholder is present and that at
// least one link points at the product placeholder.
func (t *Template) Validate() error {
	if !strings.Contains(t.raw, PlaceholderDescription) {
		return errors.WithHint(errors.New("template has no {description} placeholder"),
			"add {description} where the product text should appear")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(t.raw))
	if err != nil {
		return errors.Wrap(err, "parse template html")
	}
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		found = strings.Contains(href, PlaceholderLink)
		return !found
	})
	if !found {
		return errors.WithHint(errors.New("template has no link to {product_link}"),
			`use <a href="{product_link}"> for the call-to-action`)
	}
	return nil
}

// Render substitutes description first and then the link, so a
// description that itself contains {product_link} is expanded too.
func (t *Template) Render(description, link string) string {
	out := strings.ReplaceAll(t.raw, PlaceholderDescription, description)
	return strings.ReplaceAll(out, PlaceholderLink, link)
}
