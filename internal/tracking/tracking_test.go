package tracking

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/linktoken"
)

const testBase = "https://mail.example.com"

func newTestRewriter(t *testing.T) (*Rewriter, *linktoken.Codec) {
	t.Helper()
	codec, err := linktoken.NewCodec("unsub-secret", "fwd-secret", 0)
	require.NoError(t, err)
	r, err := NewRewriter(testBase+"/", codec, time.Now(), Brand{})
	require.NoError(t, err)
	return r, codec
}

func parse(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestPrepareBaseRemovesScriptsAndIframes(t *testing.T) {
	out, err := PrepareBase(`&lt;p&gt;Hello&lt;/p&gt;<script>alert(1)</script><iframe src="x"></iframe>`)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<iframe")
	assert.Contains(t, out, "<p>Hello</p>")
	assert.Contains(t, out, "</body>")
}

func TestPrepareBaseRejectsEmpty(t *testing.T) {
	_, err := PrepareBase("   ")
	assert.True(t, errors.Is(err, ErrContentPreparation))
}

func TestPrepareBaseCollapsesNestedDocuments(t *testing.T) {
	out, err := PrepareBase(`<html><body><html><body><p>x</p></body></html></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "<body"))
	assert.Equal(t, 1, strings.Count(out, "<html"))
}

func TestRewriteAddsFooterAndPixel(t *testing.T) {
	r, codec := newTestRewriter(t)
	base, err := PrepareBase(`<p>Hi</p>`)
	require.NoError(t, err)

	out := r.Rewrite(base, "a@x.com", "s1", "c1")
	doc := parse(t, out)

	pixel := doc.Find(`img[alt="main-image"]`)
	require.Equal(t, 1, pixel.Length())
	src, _ := pixel.Attr("src")
	assert.Equal(t, testBase+"/v1/stats?id=s1&type=open&email=a%40x.com", src)
	assert.Equal(t, "1", pixel.AttrOr("width", ""))
	assert.Equal(t, "display:none;", pixel.AttrOr("style", ""))

	assert.Equal(t, 1, doc.Find(`a[href="mailto:a@x.com"]`).Length())
	assert.Contains(t, out, "Marketer Mail")

	var unsub string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.TrimSpace(a.Text()) == "Unsubscribe" {
			unsub = a.AttrOr("href", "")
		}
	})
	require.True(t, strings.HasPrefix(unsub, testBase+"/v1/unsubscribe/"))
	p, ok := codec.Verify(strings.TrimPrefix(unsub, testBase+"/v1/unsubscribe/"), linktoken.Unsubscribe)
	require.True(t, ok)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "c1", p.CampaignID)
}

func TestRewriteTracksImageLinks(t *testing.T) {
	r, _ := newTestRewriter(t)
	base, err := PrepareBase(`<a href="https://shop.example.com/p?x=1"><img src="=https://cdn.example.com/a.png"></a><a href="tel:+15551234567890">call</a>`)
	require.NoError(t, err)

	doc := parse(t, r.Rewrite(base, "a@x.com", "s1", "c1"))

	a := doc.Find("a").Has("img").First()
	want := testBase + "/v1/stats?redirect=https%3A%2F%2Fshop.example.com%2Fp%3Fx%3D1&url=https://shop.example.com/p?x=1&email=a%40x.com&type=click&id=s1"
	assert.Equal(t, want, a.AttrOr("href", ""))
	assert.Equal(t, want, a.AttrOr("data-saferedirecturl", ""))
	assert.Equal(t, "https://shop.example.com/p?x=1", a.AttrOr("title", ""))
	assert.Equal(t, "_blank", a.AttrOr("target", ""))
	assert.Equal(t, "", a.AttrOr("rel", "missing"))

	img := a.Find("img")
	assert.Equal(t, "CToWUd", img.AttrOr("class", ""))
	assert.Equal(t, "iit", img.AttrOr("data-bit", ""))
	assert.Equal(t, "https://cdn.example.com/a.png", img.AttrOr("src", ""))

	// Links without images are left alone.
	tel := doc.Find(`a[href^="tel:"]`)
	assert.Equal(t, 1, tel.Length())
}

func TestRewritePhoneRel(t *testing.T) {
	r, _ := newTestRewriter(t)
	base, err := PrepareBase(`<a href="https://wa.me/+447911123456"><img src="i.png"></a>`)
	require.NoError(t, err)

	doc := parse(t, r.Rewrite(base, "a@x.com", "s1", "c1"))
	assert.Equal(t, "+447911123456", doc.Find("a").Has("img").AttrOr("rel", ""))
}

func TestRewriteStripsLeadingEquals(t *testing.T) {
	r, _ := newTestRewriter(t)
	base, err := PrepareBase(`<a href="=https://example.com">x</a><img src="=pic.png">`)
	require.NoError(t, err)

	doc := parse(t, r.Rewrite(base, "a@x.com", "s1", "c1"))
	assert.Equal(t, 1, doc.Find(`a[href="https://example.com"]`).Length())
	assert.Equal(t, 1, doc.Find(`img[src="pic.png"]`).Length())
}

func TestRewriteIsDeterministic(t *testing.T) {
	r, _ := newTestRewriter(t)
	base, err := PrepareBase(`<table><tr><td><a href="https://x.example"><img src="a.png"></a></td></tr></table>`)
	require.NoError(t, err)

	first := r.Rewrite(base, "a@x.com", "s1", "c1")
	second := r.Rewrite(base, "a@x.com", "s1", "c1")
	assert.Equal(t, first, second)
}

func TestRewriteAppendsWhenBodyMissing(t *testing.T) {
	r, _ := newTestRewriter(t)

	out := r.Rewrite("<p>fragment</p>", "a@x.com", "s1", "c1")
	doc := parse(t, out)
	assert.Equal(t, 1, doc.Find(`img[alt="main-image"]`).Length())
}

type failingIssuer struct{}

func (failingIssuer) IssueUnsubscribe(string, string, time.Time) (string, error) {
	return "", errors.New("no secret")
}

func (failingIssuer) IssueForward(string, time.Time) (string, error) {
	return "", errors.New("no secret")
}

func TestRewriteSurvivesTokenFailure(t *testing.T) {
	r, err := NewRewriter(testBase, failingIssuer{}, time.Now(), Brand{Name: "Acme", URL: "https://acme.example"})
	require.NoError(t, err)

	out := r.Rewrite("<html><body><p>x</p></body></html>", "a@x.com", "s1", "c1")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "main-image")
}
