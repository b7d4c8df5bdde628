package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ventapos/backend/internal/domain"
)

const ticketWidth = 40

// BuildTicket renders the plain-text receipt body for the printer
// collaborator. The backend hands the text over; whether printing succeeds is
// the terminal's problem.
func (s *Service) BuildTicket(ctx context.Context, orderID string) (domain.TicketResponse, error) {
	o, err := s.repo.GetSale(ctx, orderID)
	if err != nil {
		return domain.TicketResponse{}, err
	}

	var b strings.Builder
	center(&b, "VENTAPOS")
	center(&b, "Venta "+o.ID)
	b.WriteString(o.Date.Format("02/01/2006 15:04") + "\n")
	if o.ClientName != "" {
		b.WriteString("Cliente: " + o.ClientName + "\n")
	}
	b.WriteString(strings.Repeat("-", ticketWidth) + "\n")

	for _, it := range o.Items {
		name := it.ProductName
		if it.Tara != nil && it.Tara.UnitFactor > 1 {
			name = fmt.Sprintf("%s (%s x%d)", name, it.Tara.Name, it.Tara.UnitFactor)
		}
		b.WriteString(name + "\n")
		line := fmt.Sprintf("  %d x %s", it.Qty, money(it.UnitPriceCents))
		b.WriteString(padAmount(line, money(it.TotalCents)) + "\n")
	}

	b.WriteString(strings.Repeat("-", ticketWidth) + "\n")
	b.WriteString(padAmount("Subtotal", money(o.SubtotalCents)) + "\n")
	if o.DiscountCents > 0 {
		b.WriteString(padAmount("Descuento", "-"+money(o.DiscountCents)) + "\n")
	}
	b.WriteString(padAmount("TOTAL", money(o.TotalCents)) + "\n")
	if o.AmountPaidCents > 0 || o.RemainingCents > 0 {
		b.WriteString(padAmount("Pagado", money(o.AmountPaidCents)) + "\n")
		b.WriteString(padAmount("Restante", money(o.RemainingCents)) + "\n")
	}
	if o.IsQuote {
		center(&b, "* COTIZACION - NO ES COMPROBANTE *")
	}
	b.WriteString("\n")
	center(&b, "Gracias por su compra")

	return domain.TicketResponse{
		OrderID:  o.ID,
		Body:     b.String(),
		FileName: fmt.Sprintf("ticket-%s-%s.txt", o.ID, time.Now().UTC().Format("20060102-150405")),
	}, nil
}

func money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func center(b *strings.Builder, text string) {
	if pad := (ticketWidth - len(text)) / 2; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(text + "\n")
}

func padAmount(label string, amount string) string {
	gap := ticketWidth - len(label) - len(amount)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + amount
}
