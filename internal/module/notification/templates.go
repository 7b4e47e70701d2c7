package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/shared/events"
)

// emailData is what every template sees.
type emailData struct {
	*events.CancellationEvent
	SupportEmail string
}

var funcs = template.FuncMap{
	"money": func(amount int64, currency string) string {
		return strings.TrimSpace(currency + " " + decimal.New(amount, -2).StringFixed(2))
	},
	"percent": func(p float64) string {
		return decimal.NewFromFloat(p).StringFixed(2) + "%"
	},
	"date": func(e *events.CancellationEvent) string {
		if e.RefundDate != nil {
			return e.RefundDate.UTC().Format("2 Jan 2006")
		}
		return e.OccurredAt().UTC().Format("2 Jan 2006")
	},
}

var templates = template.Must(template.New("email").Funcs(funcs).Parse(layoutTemplate + bodyTemplates))

type emailKind struct {
	template string
	subject  string
}

var kinds = map[string]emailKind{
	events.TypeCancellationRequested: {"requested", "We received your cancellation request for order %s"},
	events.TypeCancellationApproved:  {"approved", "Your cancellation for order %s was approved"},
	events.TypeCancellationRejected:  {"rejected", "Update on your cancellation request for order %s"},
	events.TypeRefundCompleted:       {"refunded", "Your refund for order %s is on its way"},
}

// Render builds the customer email for a cancellation event.
func Render(e *events.CancellationEvent, supportEmail string) (Message, error) {
	kind, ok := kinds[e.EventType()]
	if !ok {
		return Message{}, fmt.Errorf("no email for event %s", e.EventType())
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, kind.template, emailData{CancellationEvent: e, SupportEmail: supportEmail}); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", kind.template, err)
	}
	return Message{
		To:      e.CustomerEmail,
		Subject: fmt.Sprintf(kind.subject, e.OrderNo),
		HTML:    buf.String(),
	}, nil
}

const layoutTemplate = `
{{define "header"}}<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        table { width: 100%; border-collapse: collapse; }
        td { padding: 6px 0; border-bottom: 1px solid #eee; }
        .amount { text-align: right; }
        .total { font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hi {{if .CustomerName}}{{.CustomerName}}{{else}}there{{end}},</p>
{{end}}
{{define "items"}}
        <table>
            {{range .Items}}<tr><td>{{.Name}} &times; {{.Quantity}}</td><td class="amount">{{money .Amount $.Currency}}</td></tr>
            {{end}}{{if .DeliveryRefund}}<tr><td>Delivery charge</td><td class="amount">{{money .DeliveryRefund .Currency}}</td></tr>
            {{end}}<tr class="total"><td>Refund ({{percent .RefundPercentage}})</td><td class="amount">{{money .RefundAmount .Currency}}</td></tr>
        </table>
        {{range .Bonuses}}<p>{{.}}</p>{{end}}
        {{range .Penalties}}<p>{{.}}</p>{{end}}
{{end}}
{{define "footer"}}
        <div class="footer">
            <p>Order {{.OrderNo}} &middot; request {{.CancellationID}}</p>
            {{if .SupportEmail}}<p>Questions? Write to <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a>.</p>{{end}}
        </div>
    </div>
</body>
</html>
{{end}}
`

const bodyTemplates = `
{{define "requested"}}{{template "header" .}}
        <h1>Cancellation request received</h1>
        <p>We received your request to cancel {{if eq .CancellationType "FULL_ORDER"}}order {{.OrderNo}}{{else}}some items of order {{.OrderNo}}{{end}}. Our team will review it shortly.</p>
        <p>Estimated refund, subject to review:</p>
{{template "items" .}}
{{template "footer" .}}{{end}}

{{define "approved"}}{{template "header" .}}
        <h1>Cancellation approved</h1>
        <p>Your cancellation request for order {{.OrderNo}} was approved. The refund below is being processed.</p>
{{template "items" .}}
        {{if .Comments}}<p>Note from our team: {{.Comments}}</p>{{end}}
{{template "footer" .}}{{end}}

{{define "rejected"}}{{template "header" .}}
        <h1>Cancellation not approved</h1>
        <p>We could not approve your cancellation request for order {{.OrderNo}}. Your order continues as normal.</p>
        {{if .Comments}}<p>Reason: {{.Comments}}</p>{{end}}
{{template "footer" .}}{{end}}

{{define "refunded"}}{{template "header" .}}
        <h1>Refund issued</h1>
        <p>Refund {{.RefundID}} for order {{.OrderNo}} was issued on {{date .CancellationEvent}}.</p>
{{template "items" .}}
        <p>Depending on your bank it may take a few days to appear on your statement.</p>
{{template "footer" .}}{{end}}
`
