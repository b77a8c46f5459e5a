// Package tracking personalizes campaign HTML for a single recipient: it adds
// the footer with signed unsubscribe and forward links, an open pixel, and
// routes image links through the click tracker.
package tracking

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/osteele/liquid"

	"github.com/ignite/campaign-dispatch/internal/linktoken"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

var phoneRun = regexp.MustCompile(`\+?\d{10,}`)

// TokenIssuer signs the per-recipient link tokens.
type TokenIssuer interface {
	IssueUnsubscribe(email, campaignID string, issuedAt time.Time) (string, error)
	IssueForward(campaignID string, issuedAt time.Time) (string, error)
}

// Rewriter is built once per run. Every token it issues carries the same
// issue time, so equal inputs always produce equal output.
type Rewriter struct {
	baseURL  string
	tokens   TokenIssuer
	issuedAt time.Time
	brand    Brand
	footer   *liquid.Template
}

// NewRewriter prepares a Rewriter for links under baseURL.
func NewRewriter(baseURL string, tokens TokenIssuer, issuedAt time.Time, brand Brand) (*Rewriter, error) {
	tpl, err := parseFooter()
	if err != nil {
		return nil, fmt.Errorf("parse footer template: %w", err)
	}
	if brand.Name == "" {
		brand = DefaultBrand
	}
	return &Rewriter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		tokens:   tokens,
		issuedAt: issuedAt,
		brand:    brand,
		footer:   tpl,
	}, nil
}

// OpenPixel is the hidden 1x1 image that reports opens.
func (r *Rewriter) OpenPixel(email, statsID string) string {
	return fmt.Sprintf(`<img src="%s/v1/stats?id=%s&type=open&email=%s" alt="main-image" width="1" height="1" style="display:none;" />`,
		r.baseURL, escapeComponent(statsID), escapeComponent(email))
}

// ClickURL wraps an original link in the click tracker.
func (r *Rewriter) ClickURL(original, email, statsID string) string {
	return fmt.Sprintf("%s/v1/stats?redirect=%s&url=%s&email=%s&type=click&id=%s",
		r.baseURL, escapeComponent(original), original, escapeComponent(email), escapeComponent(statsID))
}

// Footer renders the recipient footer. Links whose token cannot be issued
// are left empty.
func (r *Rewriter) Footer(email, campaignID string) string {
	var unsubscribeURL, forwardURL string
	if tok, err := r.tokens.IssueUnsubscribe(email, campaignID, r.issuedAt); err != nil {
		logger.Warn("unsubscribe token not issued", "email", email, "campaign_id", campaignID, "error", err)
	} else {
		unsubscribeURL = linktoken.UnsubscribeURL(r.baseURL, tok)
	}
	if tok, err := r.tokens.IssueForward(campaignID, r.issuedAt); err != nil {
		logger.Warn("forward token not issued", "campaign_id", campaignID, "error", err)
	} else {
		forwardURL = linktoken.ForwardURL(r.baseURL, tok)
	}

	out, err := renderFooter(r.footer, r.brand, email, unsubscribeURL, forwardURL)
	if err != nil {
		logger.Warn("footer render failed", "campaign_id", campaignID, "error", err)
		return ""
	}
	return out
}

// Rewrite produces the HTML sent to one recipient. It never fails: when the
// document cannot be parsed the footer-and-pixel insertion is returned as is.
func (r *Rewriter) Rewrite(base, email, statsID, campaignID string) string {
	inserted := insertBeforeBody(base, r.Footer(email, campaignID)+r.OpenPixel(email, statsID))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(inserted))
	if err != nil {
		logger.Warn("rewrite parse failed, sending unrewritten links", "campaign_id", campaignID, "error", err)
		return inserted
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if strings.HasPrefix(href, "=") {
			a.SetAttr("href", href[1:])
		}
	})
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if strings.HasPrefix(src, "=") {
			img.SetAttr("src", src[1:])
		}
	})

	doc.Find("a").Has("img").Each(func(_ int, a *goquery.Selection) {
		original, ok := a.Attr("href")
		if !ok {
			return
		}
		tracked := r.ClickURL(original, email, statsID)
		a.SetAttr("href", tracked)
		a.SetAttr("title", original)
		a.SetAttr("rel", phoneRun.FindString(original))
		a.SetAttr("target", "_blank")
		a.SetAttr("data-saferedirecturl", tracked)
		a.Find("img").SetAttr("class", "CToWUd").SetAttr("data-bit", "iit")
	})

	out, err := doc.Html()
	if err != nil {
		logger.Warn("rewrite render failed, sending unrewritten links", "campaign_id", campaignID, "error", err)
		return inserted
	}
	return out
}

func insertBeforeBody(doc, fragment string) string {
	if i := strings.Index(doc, "</body>"); i >= 0 {
		return doc[:i] + fragment + doc[i:]
	}
	return doc + fragment
}

// escapeComponent escapes like a URI component: spaces become %20.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
