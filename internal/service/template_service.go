// internal/service/template_service.go
package service

import (
	"fmt"
	"strings"

	"gitlab.com/golang-commonmark/markdown"

	"github.com/unclebandit/offerhub/internal/notify"
)

// RenderTemplate replaces {key} placeholders with data[key].
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

const offerEmailHeader = `# {greeting}

We are excited to present you with an exclusive offer tailored just for you!

## **{campaign}**

`

const offerEmailFooter = `
## How to Redeem

1. Log in to your account
2. Navigate to the "Offers" section
3. Select this offer and follow the instructions

This offer is personalized based on your profile and is available for a limited time.

---

**Best Regards,**
**Offers Hub Team**

*This email was sent to you because you opted to receive offers from us.*
`

var md = markdown.New(markdown.XHTMLOutput(true), markdown.HTML(false))

// OfferEmailMarkdown builds the notification body. Offer attributes are optional;
// product_name falls back to the campaign name when an offer is attached.
func OfferEmailMarkdown(n notify.Notification) string {
	greeting := "Dear Valued Customer,"
	if name := strings.TrimSpace(n.CustomerDisplayName); name != "" {
		greeting = "Dear " + name + ","
	}

	var sb strings.Builder
	sb.WriteString(RenderTemplate(offerEmailHeader, map[string]string{
		"greeting": greeting,
		"campaign": n.CampaignName,
	}))

	if n.OfferAttributes != nil {
		product := attr(n.OfferAttributes, "product_name")
		if product == "" {
			product = n.CampaignName
		}
		fmt.Fprintf(&sb, "### Product: **%s**\n\n", product)
		if rate := attr(n.OfferAttributes, "interest_rate"); rate != "" {
			fmt.Fprintf(&sb, "### Interest Rate: **%s%%**\n\n", rate)
		}
		if term := attr(n.OfferAttributes, "term_months"); term != "" {
			fmt.Fprintf(&sb, "### Term: **%s months**\n\n", term)
		}
	}

	sb.WriteString(offerEmailFooter)
	return sb.String()
}

// ComposeOfferEmail is the notify.Composer used for offer activation.
func ComposeOfferEmail(n notify.Notification) (notify.Email, error) {
	if strings.TrimSpace(n.CampaignName) == "" {
		return notify.Email{}, fmt.Errorf("campaign name is required")
	}
	body := OfferEmailMarkdown(n)
	return notify.Email{
		Subject: "Exclusive Offer: " + n.CampaignName,
		HTML:    md.RenderToString([]byte(body)),
		Text:    body,
	}, nil
}

func attr(a map[string]any, key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}

var _ notify.Composer = ComposeOfferEmail
