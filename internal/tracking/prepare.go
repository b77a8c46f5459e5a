package tracking

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PrepareBase decodes entities in the campaign HTML, drops script and iframe
// elements and collapses accidentally nested html, body and head tags. It runs
// once per dispatch; every recipient copy is derived from its output.
func PrepareBase(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty content", ErrContentPreparation)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.UnescapeString(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentPreparation, err)
	}

	doc.Find("script, iframe").Remove()

	var collapseErr error
	doc.Find("html html, body body, head head").Each(func(_ int, s *goquery.Selection) {
		inner, err := s.Html()
		if err != nil {
			collapseErr = err
			return
		}
		s.ReplaceWithHtml(inner)
	})
	if collapseErr != nil {
		return "", fmt.Errorf("%w: %v", ErrContentPreparation, collapseErr)
	}

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrContentPreparation, err)
	}
	return out, nil
}
