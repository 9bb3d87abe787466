package mailer

import (
	"fmt"
	"html"
	"strings"

	"github.com/platepay/platepay-api/internal/models"
)

func confirmationSubject(order *models.Order) string {
	if order.Reference != "" {
		return fmt.Sprintf("Order confirmed — %s", order.Reference)
	}
	return "Your order is confirmed"
}

// confirmationBody renders the order summary. Item order follows the order
// document, which is display order.
func confirmationBody(order *models.Order) string {
	var b strings.Builder

	name := order.Customer.Name
	if name == "" {
		name = "there"
	}

	fmt.Fprintf(&b, "<h2>Thanks for your order, %s!</h2>", html.EscapeString(name))

	if order.Reference != "" {
		fmt.Fprintf(&b, "<p>Your tracking code is <strong>%s</strong>.</p>", html.EscapeString(order.Reference))
	}

	b.WriteString("<table><tr><th>Item</th><th>Qty</th><th>Price</th></tr>")

	for _, item := range order.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%.2f</td></tr>",
			html.EscapeString(item.Title), item.Quantity, item.Price)
	}

	b.WriteString("</table>")
	fmt.Fprintf(&b, "<p>Total: <strong>%.2f %s</strong></p>", order.Amount, html.EscapeString(order.Currency))
	b.WriteString("<p>We will let you know when your order is on its way.</p>")

	return b.String()
}
