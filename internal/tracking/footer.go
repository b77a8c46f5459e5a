package tracking

import (
	"github.com/osteele/liquid"
)

const footerTemplate = `<table width="100%" cellpadding="10" cellspacing="0" style="background-color: #f8f9fa; text-align: center; font-family: Arial, sans-serif; font-size: 12px; color: #666;">
<tr>
<td>
<p>This message was sent to <a href="mailto:{{ email | escape }}" style="color: #007bff; text-decoration: none;">{{ email | escape }}</a></p>
<p>Powered by <a href="{{ brand_url }}" style="color: #007bff; text-decoration: none;">{{ brand_name }}</a></p>
<p>To ensure delivery, add us to your address book.</p>
<p>
<a target="_blank" href="{{ unsubscribe_url }}" style="color: #dc3545; text-decoration: none;">Unsubscribe</a> |
<a target="_blank" href="{{ forward_url }}" style="color: #007bff; text-decoration: none;">Forward to a friend</a>
</p>
</td>
</tr>
</table>`

// Brand is the attribution shown in the footer.
type Brand struct {
	Name string
	URL  string
}

// DefaultBrand is used when no brand is configured.
var DefaultBrand = Brand{Name: "Marketer Mail", URL: "https://marketermail.com"}

func parseFooter() (*liquid.Template, error) {
	return liquid.NewEngine().ParseString(footerTemplate)
}

func renderFooter(tpl *liquid.Template, brand Brand, email, unsubscribeURL, forwardURL string) (string, error) {
	return tpl.RenderString(map[string]interface{}{
		"email":           email,
		"brand_name":      brand.Name,
		"brand_url":       brand.URL,
		"unsubscribe_url": unsubscribeURL,
		"forward_url":     forwardURL,
	})
}
