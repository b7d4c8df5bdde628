package order

import (
	"errors"
	"testing"
	"time"

	"ventapos/backend/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func testClient() domain.Client {
	return domain.Client{ID: "cli-1", Name: "Bodega Norte", DefaultTier: 2}
}

func testProduct(id string, stock int, price int64) domain.Product {
	return domain.Product{ID: id, Code: "C-" + id, Name: "Product " + id, Stock: stock, Price1Cents: price, Active: true}
}

func mustAdd(t *testing.T, o domain.Order, p domain.Product, qty int, tier int, price int64) domain.Order {
	t.Helper()
	out, err := AddItem(o, p, qty, tier, price, false, nil)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	return out
}

func TestAddItemMergesSameProductAndTier(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	p := testProduct("p1", 10, 500)

	o = mustAdd(t, o, p, 2, 1, 500)
	o = mustAdd(t, o, p, 3, 1, 500)

	if len(o.Items) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(o.Items))
	}
	if o.Items[0].Qty != 5 {
		t.Fatalf("qty = %d, want 5", o.Items[0].Qty)
	}
	if o.TotalCents != 2500 {
		t.Fatalf("total = %d, want 2500", o.TotalCents)
	}
}

func TestAddItemDifferentTierKeepsSeparateLines(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	p := testProduct("p1", 10, 500)

	o = mustAdd(t, o, p, 2, 1, 500)
	o = mustAdd(t, o, p, 2, 3, 550)

	if len(o.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(o.Items))
	}
}

func TestAddItemRejectsOverStock(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	p := testProduct("p1", 4, 500)

	o = mustAdd(t, o, p, 3, 1, 500)
	if _, err := AddItem(o, p, 2, 1, 500, false, nil); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock counting held qty, got %v", err)
	}
	if _, err := AddItem(o, p, 0, 1, 500, false, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestRemoveItemAbsentIsNoop(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, testProduct("p1", 10, 500), 2, 1, 500)

	before := o.TotalCents
	o = RemoveItem(o, "missing")
	if o.TotalCents != before || len(o.Items) != 1 {
		t.Fatal("removing an unknown item id must not change the order")
	}

	o = RemoveItem(o, o.Items[0].ID)
	if len(o.Items) != 0 || o.TotalCents != 0 {
		t.Fatalf("expected empty order, got %d items total %d", len(o.Items), o.TotalCents)
	}
}

func TestRemoveItemKeepsOtherLinesOfSameProduct(t *testing.T) {
	p := testProduct("p1", 10, 500)
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, p, 2, 1, 500)
	o = mustAdd(t, o, p, 3, 3, 550)

	o = RemoveItem(o, o.Items[0].ID)
	if len(o.Items) != 1 {
		t.Fatalf("expected the tier-3 line to survive, got %d lines", len(o.Items))
	}
	if o.Items[0].Tier != 3 || o.Items[0].Qty != 3 {
		t.Fatalf("wrong line removed: %+v", o.Items[0])
	}
	if o.TotalCents != 3*550 {
		t.Fatalf("total = %d, want %d", o.TotalCents, 3*550)
	}
}

func TestUpdateQuantity(t *testing.T) {
	p := testProduct("p1", 5, 500)
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, p, 2, 1, 500)

	o, err := UpdateQuantity(o, o.Items[0].ID, p, 5)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if o.Items[0].Qty != 5 || o.TotalCents != 2500 {
		t.Fatalf("qty/total = %d/%d, want 5/2500", o.Items[0].Qty, o.TotalCents)
	}

	if _, err := UpdateQuantity(o, o.Items[0].ID, p, 6); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := UpdateQuantity(o, o.Items[0].ID, p, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestUpdateQuantityAddressesOneLineCountsAll(t *testing.T) {
	p := testProduct("p1", 5, 500)
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, p, 2, 1, 500)
	o = mustAdd(t, o, p, 2, 3, 550)

	// 4 on this line plus 2 on the other would exceed the 5 in stock
	if _, err := UpdateQuantity(o, o.Items[0].ID, p, 4); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock across lines, got %v", err)
	}

	o, err := UpdateQuantity(o, o.Items[0].ID, p, 3)
	if err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if o.Items[0].Qty != 3 || o.Items[1].Qty != 2 {
		t.Fatalf("qtys = %d/%d, want 3/2", o.Items[0].Qty, o.Items[1].Qty)
	}

	// unknown id leaves the order untouched
	before := o.TotalCents
	o, err = UpdateQuantity(o, "missing", p, 1)
	if err != nil || o.TotalCents != before {
		t.Fatalf("unknown item id must be a no-op, got total %d (%v)", o.TotalCents, err)
	}
}

func TestUpdateItemPriceMissingProductIsNoop(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, testProduct("p1", 10, 500), 2, 1, 500)

	before := o.TotalCents
	o = UpdateItemPrice(o, testProduct("p9", 10, 900), 1, nil, 800)
	if o.TotalCents != before {
		t.Fatal("updating a product not on the order must be a no-op")
	}
}

func TestUpdateItemPriceCustom(t *testing.T) {
	p := testProduct("p1", 10, 500)
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, p, 4, 1, 500)

	o = UpdateItemPrice(o, p, 1, nil, 450)
	if !o.Items[0].CustomPrice {
		t.Fatal("custom flag should be set")
	}
	if o.Items[0].UnitPriceCents != 450 || o.TotalCents != 1800 {
		t.Fatalf("price/total = %d/%d, want 450/1800", o.Items[0].UnitPriceCents, o.TotalCents)
	}
}

func TestApplyDiscountBounds(t *testing.T) {
	o := Initialize(testClient(), "cashier", testNow)
	o = mustAdd(t, o, testProduct("p1", 10, 500), 4, 1, 500)

	o, err := ApplyDiscount(o, 300)
	if err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if o.TotalCents != 1700 {
		t.Fatalf("total = %d, want 1700", o.TotalCents)
	}

	if _, err := ApplyDiscount(o, 2001); !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := ApplyDiscount(o, -1); !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount for negative, got %v", err)
	}
}

func TestTotalsInvariantAfterEveryMutation(t *testing.T) {
	p1 := testProduct("p1", 20, 300)
	p2 := testProduct("p2", 20, 700)
	o := Initialize(testClient(), "cashier", testNow)

	check := func(step string) {
		t.Helper()
		var sum int64
		for _, it := range o.Items {
			sum += it.TotalCents
		}
		if o.SubtotalCents != sum {
			t.Fatalf("%s: subtotal %d != line sum %d", step, o.SubtotalCents, sum)
		}
		if o.TotalCents != o.SubtotalCents-o.DiscountCents {
			t.Fatalf("%s: total %d != subtotal-discount", step, o.TotalCents)
		}
	}

	o = mustAdd(t, o, p1, 3, 1, 300)
	check("add p1")
	o = mustAdd(t, o, p2, 2, 1, 700)
	check("add p2")
	var err error
	o, err = UpdateQuantity(o, o.Items[0].ID, p1, 5)
	if err != nil {
		t.Fatal(err)
	}
	check("update qty")
	o, err = ApplyDiscount(o, 100)
	if err != nil {
		t.Fatal(err)
	}
	check("discount")
	o = RemoveItem(o, o.Items[1].ID)
	check("remove p2")
}
