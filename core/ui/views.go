package ui

import (
	"fmt"
	"strconv"

	"usage-billing/core/checkout"
	"usage-billing/core/pricing"
	"usage-billing/core/types"
)

// QuoteSummary renders a priced quote with its per-tier breakdown
type QuoteSummary struct {
	w           *Writer
	Quote       *types.PricingQuote
	Description string
	Currency    types.Currency

	// Coupon, when valid, adds a discounted display total
	Coupon *types.CouponResult
}

// NewQuoteSummary creates a quote summary
func (w *Writer) NewQuoteSummary(quote *types.PricingQuote, description string, currency types.Currency) *QuoteSummary {
	return &QuoteSummary{w: w, Quote: quote, Description: description, Currency: currency}
}

// Render prints the quote
func (s *QuoteSummary) Render() {
	q := s.Quote
	s.w.Header("Quote")
	s.w.Println("%s", s.w.color(Bold, s.Description))
	s.w.Println("")

	table := s.w.NewTable("Units", "Quantity", "Rate", "Amount")
	for _, c := range q.Breakdown {
		table.AddRow(
			fmt.Sprintf("%s – %s", formatQty(c.From), formatQty(c.To)),
			formatQty(c.Units),
			pricing.FormatMoney(c.UnitRate),
			pricing.FormatMoney(c.Amount),
		)
	}
	table.Render()
	s.w.Println("")

	s.w.Println("%s", s.w.color(Bold, "╭─────────────────────────────────────╮"))
	s.w.Println("%s%s%s", s.w.color(Bold, "│"), s.w.color(Green, fmt.Sprintf("  Total: %-28s", s.money(q.TotalPrice))), s.w.color(Bold, "│"))
	s.w.Println("%s%s%s", s.w.color(Bold, "│"), s.w.color(Dim, fmt.Sprintf("  Avg per %s: %-*s", q.Unit, 23-len(q.Unit), s.money(q.AverageUnitRate))), s.w.color(Bold, "│"))
	s.w.Println("%s", s.w.color(Bold, "╰─────────────────────────────────────╯"))

	if s.Coupon != nil && s.Coupon.Valid {
		discounted := pricing.DisplayPrice(q.TotalPrice, s.Coupon.DiscountPercent)
		s.w.Success("%s applied: %s%% off, %s %s after discount",
			s.Coupon.Code,
			strconv.FormatFloat(s.Coupon.DiscountPercent, 'f', -1, 64),
			discounted.StringFixed(2),
			s.Currency,
		)
	}
}

func (s *QuoteSummary) money(amount float64) string {
	return pricing.FormatMoney(amount) + " " + string(s.Currency)
}

// CatalogView lists tier tables, packages and plans
type CatalogView struct {
	w       *Writer
	Catalog *pricing.Catalog
}

// NewCatalogView creates a catalog view
func (w *Writer) NewCatalogView(catalog *pricing.Catalog) *CatalogView {
	return &CatalogView{w: w, Catalog: catalog}
}

// Render prints the catalog
func (v *CatalogView) Render() {
	c := v.Catalog
	v.w.Header("Pricing Catalog")

	for _, kind := range c.Kinds() {
		t := c.Tables[kind]
		v.w.SubHeader(fmt.Sprintf("%s (per %s, %s – %s)", kind, t.Unit, formatQty(t.Min), formatQty(t.Max)))
		table := v.w.NewTable("Up to", "Rate")
		cumulative := 0.0
		for _, tier := range t.Tiers {
			upTo := "∞"
			if !tier.IsUnbounded() {
				cumulative += tier.Capacity
				upTo = formatQty(cumulative)
			}
			table.AddRow(upTo, pricing.FormatMoney(tier.UnitRate)+" "+string(c.Currency))
		}
		table.Render()
		v.w.Println("")
	}

	if len(c.Packages) > 0 {
		v.w.SubHeader("Packages")
		table := v.w.NewTable("ID", "Kind", "Quantity", "Description")
		for _, p := range c.Packages {
			table.AddRow(p.ID, string(p.Kind), formatQty(p.Quantity), p.Description)
		}
		table.Render()
		v.w.Println("")
	}

	if len(c.Plans) > 0 {
		v.w.SubHeader("Plans")
		table := v.w.NewTable("ID", "Price", "Description")
		for _, p := range c.Plans {
			table.AddRow(p.ID, fmt.Sprintf("%s %s/%s", pricing.FormatMoney(p.DisplayAmount), c.Currency, p.Interval), p.Description)
		}
		table.Render()
	}
}

// PaymentStatusView renders the post-checkout confirmation
type PaymentStatusView struct {
	w      *Writer
	Status *types.PaymentStatus
}

// NewPaymentStatusView creates a payment status view
func (w *Writer) NewPaymentStatusView(status *types.PaymentStatus) *PaymentStatusView {
	return &PaymentStatusView{w: w, Status: status}
}

// Render prints the status
func (v *PaymentStatusView) Render() {
	s := v.Status
	v.w.Header("Payment Status")

	switch s.PaymentStatus {
	case types.PaymentPaid:
		v.w.Success("payment received")
	case types.PaymentNoPaymentRequired:
		v.w.Success("no payment required")
	default:
		if s.SessionStatus == "expired" {
			v.w.Error("checkout session expired")
		} else {
			v.w.Warning("payment %s", s.PaymentStatus)
		}
	}

	v.w.Println("  Session:  %s", s.SessionID)
	v.w.Println("  Mode:     %s", s.Mode)
	if s.Currency.IsSupported() {
		v.w.Println("  Amount:   %s %s", formatMinor(s.AmountTotal, s.Currency), s.Currency)
	}
	if sub := s.Subscription; sub != nil {
		v.w.Println("  Subscription: %s (%s)", sub.ID, sub.Status)
		if !sub.CurrentPeriodEnd.IsZero() {
			v.w.Println("  Renews:   %s", sub.CurrentPeriodEnd.Format("2006-01-02"))
		}
	}
}

func formatMinor(minor int64, currency types.Currency) string {
	exp, _ := currency.MinorUnitExponent()
	return checkout.FromMinorUnits(minor, currency).StringFixed(exp)
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
