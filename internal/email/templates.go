package email

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

const layout = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">{{.Heading}}</h2>
		<p>{{.Lead}}</p>
		{{if .Order.Items}}
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background-color: #f0f0f0;">
					<th style="padding: 8px; text-align: left;">Item</th>
					<th style="padding: 8px; text-align: left;">Qty</th>
					<th style="padding: 8px; text-align: left;">Price</th>
				</tr>
			</thead>
			<tbody>
				{{range .Order.Items}}<tr>
					<td style="padding: 8px;">{{.VariantID}}</td>
					<td style="padding: 8px;">{{.Quantity}}</td>
					<td style="padding: 8px;">{{.Price.StringFixed 2}}</td>
				</tr>{{end}}
			</tbody>
			<tfoot>
				<tr>
					<td colspan="2" style="padding: 8px; text-align: right; font-weight: bold;">Total</td>
					<td style="padding: 8px; font-weight: bold;">{{.Order.TotalPrice.StringFixed 2}}</td>
				</tr>
			</tfoot>
		</table>
		{{end}}
		<p style="margin-top: 30px; color: #555;">The Storefront team</p>
	</div>
</body>
</html>`

var page = template.Must(template.New("email").Parse(layout))

type copyText struct {
	subject string
	heading string
	lead    string
}

var catalog = map[domain.EmailKind]copyText{
	domain.EmailOrderPlaced:      {"Order #%s received", "Thanks for your order", "We received order #%s and will let you know once payment is confirmed."},
	domain.EmailOrderSuccess:     {"Order #%s confirmed", "Your order is confirmed", "Order #%s is confirmed and will be prepared soon."},
	domain.EmailPaymentSucceeded: {"Payment received for order #%s", "Payment received", "We received the payment for order #%s."},
	domain.EmailOrderShipping:    {"Order #%s has shipped", "Your order is on its way", "Order #%s has left our warehouse."},
	domain.EmailOrderDelivered:   {"Order #%s delivered", "Your order was delivered", "Order #%s has been delivered. Thank you for shopping with us!"},
	domain.EmailOrderCancelled:   {"Order #%s cancelled", "Your order was cancelled", "Order #%s was cancelled. Any payment will be refunded."},
}

type pageData struct {
	Subject string
	Heading string
	Lead    string
	Order   *domain.Order
}

// Render returns the subject and HTML body for kind.
func Render(kind domain.EmailKind, order *domain.Order) (string, string, error) {
	text, ok := catalog[kind]
	if !ok {
		return "", "", fmt.Errorf("no template for email kind %q", kind)
	}

	short := order.ShortID()
	data := pageData{
		Subject: fmt.Sprintf(text.subject, short),
		Heading: text.heading,
		Lead:    fmt.Sprintf(text.lead, short),
		Order:   order,
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", kind, err)
	}

	return data.Subject, buf.String(), nil
}
