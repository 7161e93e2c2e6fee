package content

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/cockroachdb/errors"
)

// Previewer turns rendered post bodies into markdown for dry runs.
type Previewer struct {
	converter *md.Converter
}

func NewPreviewer() *Previewer {
	conv := md.NewConverter("", true, nil)
	conv.Remove("style")
	return &Previewer{converter: conv}
}

// Preview returns the post as markdown headed by its title.
func (p *Previewer) Preview(title, body string) (string, error) {
	text, err := p.converter.ConvertString(body)
	if err != nil {
		return "", errors.Wrap(err, "convert post body")
	}
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n")
	return b.String(), nil
}
