package order

import (
	"errors"
	"fmt"
	"time"

	"ventapos/backend/internal/domain"
	"ventapos/backend/internal/pricing"
	"ventapos/backend/internal/xid"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidDiscount   = errors.New("discount exceeds subtotal")
)

// Initialize returns an empty draft order for a client. The builder never
// touches persistence; stock checks run against the product snapshot the
// caller passes in.
func Initialize(client domain.Client, createdBy string, now time.Time) domain.Order {
	return domain.Order{
		ID:         xid.New("ord"),
		ClientID:   client.ID,
		ClientName: client.Name,
		Date:       now,
		Status:     domain.OrderStatusDraft,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		Version:    1,
	}
}

// AddItem appends a line, merging into an existing line with the same product
// and tier. Quantity is validated against the snapshot stock including what
// the order already holds.
func AddItem(o domain.Order, product domain.Product, qty int, tier int, unitPriceCents int64, custom bool, tara *domain.TaraSelection) (domain.Order, error) {
	if qty <= 0 {
		return o, ErrInvalidQuantity
	}
	held := 0
	for _, it := range o.Items {
		if it.ProductID == product.ID {
			held += it.Qty
		}
	}
	if held+qty > product.Stock {
		return o, fmt.Errorf("%w: %s", ErrInsufficientStock, product.Name)
	}

	price, _ := pricing.ApplyTara(unitPriceCents, tara)
	items := cloneItems(o.Items)
	merged := false
	for i := range items {
		if items[i].ProductID == product.ID && items[i].Tier == tier && !items[i].CustomPrice && !custom {
			items[i].Qty += qty
			items[i].TotalCents = int64(items[i].Qty) * items[i].UnitPriceCents
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, domain.OrderItem{
			ID:             xid.New("item"),
			ProductID:      product.ID,
			ProductCode:    product.Code,
			ProductName:    product.Name,
			Qty:            qty,
			Tier:           tier,
			UnitPriceCents: price,
			TotalCents:     int64(qty) * price,
			CustomPrice:    custom,
			Tara:           tara,
		})
	}
	o.Items = items
	return recompute(o), nil
}

// RemoveItem drops the line with the given item id. Other lines of the same
// product stay; removing an unknown id is a no-op.
func RemoveItem(o domain.Order, itemID string) domain.Order {
	items := make([]domain.OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	o.Items = items
	return recompute(o)
}

// UpdateQuantity sets the quantity on the line with the given item id. Stock
// validation counts every other line of the same product toward the snapshot
// limit. An unknown id leaves the order unchanged.
func UpdateQuantity(o domain.Order, itemID string, product domain.Product, qty int) (domain.Order, error) {
	if qty <= 0 {
		return o, ErrInvalidQuantity
	}
	target := -1
	other := 0
	for i, it := range o.Items {
		if it.ID == itemID {
			target = i
			continue
		}
		if it.ProductID == product.ID {
			other += it.Qty
		}
	}
	if target < 0 {
		return o, nil
	}
	if other+qty > product.Stock {
		return o, fmt.Errorf("%w: %s", ErrInsufficientStock, product.Name)
	}
	items := cloneItems(o.Items)
	items[target].Qty = qty
	items[target].TotalCents = int64(qty) * items[target].UnitPriceCents
	o.Items = items
	return recompute(o), nil
}

// UpdateItemPrice re-resolves the unit price on the line. When the product is
// not on the order the call silently returns the order unchanged.
func UpdateItemPrice(o domain.Order, product domain.Product, tier int, overrides map[int]int64, customCents int64) domain.Order {
	items := cloneItems(o.Items)
	for i := range items {
		if items[i].ProductID != product.ID {
			continue
		}
		price := pricing.Resolve(product, tier, overrides, customCents)
		price, _ = pricing.ApplyTara(price, items[i].Tara)
		items[i].Tier = tier
		items[i].UnitPriceCents = price
		items[i].CustomPrice = customCents > 0
		items[i].TotalCents = int64(items[i].Qty) * price
		break
	}
	o.Items = items
	return recompute(o)
}

// ApplyDiscount sets the order-level discount.
func ApplyDiscount(o domain.Order, discountCents int64) (domain.Order, error) {
	if discountCents < 0 || discountCents > o.SubtotalCents {
		return o, ErrInvalidDiscount
	}
	o.DiscountCents = discountCents
	return recompute(o), nil
}

func recompute(o domain.Order) domain.Order {
	var subtotal int64
	for _, it := range o.Items {
		subtotal += it.TotalCents
	}
	o.SubtotalCents = subtotal
	if o.DiscountCents > subtotal {
		o.DiscountCents = subtotal
	}
	o.TotalCents = subtotal - o.DiscountCents
	return o
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	return out
}
