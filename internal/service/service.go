package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"ventapos/backend/internal/domain"
	"ventapos/backend/internal/notify"
	"ventapos/backend/internal/order"
	"ventapos/backend/internal/pricing"
	"ventapos/backend/internal/store"
	"ventapos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	ErrNoActiveOrder       = errors.New("no active order")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
	ErrPriceBelowCost      = errors.New("price below cost floor")
	ErrAlreadySettled      = errors.New("order already settled")
)

type Service struct {
	repo        store.Repository
	broadcaster notify.Broadcaster
	lockTTL     time.Duration
}

func New(repo store.Repository, broadcaster notify.Broadcaster, lockTTL time.Duration) *Service {
	if broadcaster == nil {
		broadcaster = notify.NoopBroadcaster{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}

	return &Service{
		repo:        repo,
		broadcaster: broadcaster,
		lockTTL:     lockTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.repo.ListClients(ctx)
}

func (s *Service) ListWarehouseStock(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	return s.repo.ListWarehouseStock(ctx, warehouseID)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *o, nil
}

// PriceDraft assembles and prices an order server-side without persisting it.
// The terminal calls it while the cashier is still building the sale.
func (s *Service) PriceDraft(ctx context.Context, req domain.DraftRequest) (domain.Order, error) {
	actor, _ := ActorFromContext(ctx)
	if len(req.Lines) == 0 {
		return domain.Order{}, ErrNoActiveOrder
	}

	client, err := s.repo.GetClient(ctx, req.ClientID)
	if err != nil {
		return domain.Order{}, err
	}

	o := order.Initialize(*client, actor.Username, time.Now().UTC())
	for _, line := range req.Lines {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		tier := line.Tier
		if tier < 1 || tier > 5 {
			tier = client.DefaultTier
		}
		// tara only applies where the product or its catalog line sells
		// with packaging adjustments
		tara := line.Tara
		if tara != nil && !product.TaraApplies && !pricing.TaraApplies(product.Line) {
			tara = nil
		}
		price := pricing.Resolve(*product, tier, req.PriceOverrides, line.CustomPriceCents)
		o, err = order.AddItem(o, *product, line.Qty, tier, price, line.CustomPriceCents > 0, tara)
		if err != nil {
			return domain.Order{}, err
		}
	}
	if req.DiscountCents > 0 {
		o, err = order.ApplyDiscount(o, req.DiscountCents)
		if err != nil {
			return domain.Order{}, err
		}
	}
	return o, nil
}

// SaveOrder persists a new sale or reconciles an edited one. On edits, stock
// moves only by the per-product quantity difference against what was stored.
func (s *Service) SaveOrder(ctx context.Context, req domain.SaveOrderRequest) (domain.Order, error) {
	o := req.Order
	if len(o.Items) == 0 {
		return domain.Order{}, ErrNoActiveOrder
	}

	actor, _ := ActorFromContext(ctx)
	if o.CreatedBy == "" {
		o.CreatedBy = actor.Username
	}

	productIDs := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		productIDs = append(productIDs, it.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	if !req.PriceOverride {
		for _, it := range o.Items {
			if !it.CustomPrice {
				continue
			}
			if p, ok := products[it.ProductID]; ok && pricing.BelowCostFloor(p, it.UnitPriceCents) {
				return domain.Order{}, fmt.Errorf("%w: %s", ErrPriceBelowCost, p.Name)
			}
		}
	}

	o = recomputeTotals(o)

	if o.IsCredit && !req.CreditOverride {
		client, err := s.repo.GetClient(ctx, o.ClientID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
		if client.CreditLimitCents > 0 && client.BalanceCents+o.TotalCents > client.CreditLimitCents {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrCreditLimitExceeded, client.Name)
		}
	}

	var saved domain.Order
	if o.ID != "" {
		existing, err := s.repo.GetSale(ctx, o.ID)
		if err == nil {
			saved, err = s.editOrder(ctx, o, *existing, products, req)
			if err != nil {
				return domain.Order{}, err
			}
			s.broadcast(ctx, "orders")
			return saved, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
	}

	saved, err = s.createOrder(ctx, o, products, req)
	if err != nil {
		return domain.Order{}, err
	}
	s.broadcast(ctx, "orders")
	return saved, nil
}

func (s *Service) createOrder(ctx context.Context, o domain.Order, products map[string]domain.Product, req domain.SaveOrderRequest) (domain.Order, error) {
	if !req.StockOverride {
		if err := validateStock(o.Items, products, nil); err != nil {
			return domain.Order{}, err
		}
	}

	now := time.Now().UTC()
	if o.ID == "" {
		o.ID = xid.New("sale")
	}
	if o.Date.IsZero() {
		o.Date = now
	}
	o.CreatedAt = now
	o.Version = 1
	o.AmountPaidCents = 0
	o.RemainingCents = o.TotalCents
	if o.IsQuote {
		o.Status = domain.OrderStatusSaved
		o.StockApplied = false
	} else {
		o.Status = domain.OrderStatusPending
		o.StockApplied = true
	}

	created, err := s.repo.CreateSale(ctx, o)
	if err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	if o.StockApplied {
		if err := s.debitStock(ctx, o.ID, quantitiesByProduct(o.Items), req.Distribution); err != nil {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
	}
	if req.Distribution != nil {
		if err := s.repo.ReplaceDistribution(ctx, o.ID, req.Distribution); err != nil {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
	}

	created.Items = o.Items
	return *created, nil
}

func (s *Service) editOrder(ctx context.Context, o domain.Order, existing domain.Order, products map[string]domain.Product, req domain.SaveOrderRequest) (domain.Order, error) {
	prevItems, err := s.repo.ListSaleItems(ctx, o.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}
	prevQty := quantitiesByProduct(prevItems)
	newQty := quantitiesByProduct(o.Items)

	deltas := make(map[string]int, len(newQty))
	for pid, q := range newQty {
		deltas[pid] = q - prevQty[pid]
	}
	for pid, q := range prevQty {
		if _, stillThere := newQty[pid]; !stillThere {
			deltas[pid] = -q
		}
	}

	if !req.StockOverride {
		// a sale that holds stock is checked only on the additional
		// quantities; a quote has consumed nothing yet, so its full
		// quantities must still fit
		if existing.StockApplied {
			if err := validateStock(o.Items, products, deltas); err != nil {
				return domain.Order{}, err
			}
		} else if err := validateStock(o.Items, products, nil); err != nil {
			return domain.Order{}, err
		}
	}

	o.CreatedAt = existing.CreatedAt
	o.CreatedBy = existing.CreatedBy
	o.StockApplied = existing.StockApplied
	o.AmountPaidCents = existing.AmountPaidCents
	o.RemainingCents = o.TotalCents - o.AmountPaidCents
	if o.RemainingCents <= domain.PaidEpsilonCents {
		o.RemainingCents = 0
		o.Status = domain.OrderStatusPaid
	} else {
		o.Status = domain.OrderStatusPending
	}
	if existing.Status == domain.OrderStatusSaved && !existing.StockApplied {
		o.Status = domain.OrderStatusSaved
	}

	updated, err := s.repo.UpdateSale(ctx, o, req.Order.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	if err := s.repo.ReplaceSaleItems(ctx, o.ID, o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("save order: %w", err)
	}

	if existing.StockApplied {
		if err := s.applyStockDeltas(ctx, o.ID, deltas); err != nil {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
	}
	if req.Distribution != nil {
		if err := s.reconcileDistribution(ctx, o.ID, req.Distribution, existing.StockApplied); err != nil {
			return domain.Order{}, fmt.Errorf("save order: %w", err)
		}
	}

	updated.Items = o.Items
	return *updated, nil
}

// debitStock consumes aggregate product stock, warehouse allocations, and
// writes one outbound movement per product.
func (s *Service) debitStock(ctx context.Context, orderID string, qtys map[string]int, dist domain.Distribution) error {
	actor, _ := ActorFromContext(ctx)
	for _, pid := range sortedKeys(qtys) {
		qty := qtys[pid]
		prev, next, err := s.repo.AdjustProductStock(ctx, pid, -qty)
		if err != nil {
			return err
		}
		s.recordMovement(ctx, domain.InventoryMovement{
			ID:        xid.New("mov"),
			ProductID: pid,
			Type:      domain.MovementTypeOut,
			Qty:       qty,
			PrevStock: prev,
			NewStock:  next,
			Reference: orderID,
			CreatedBy: actor.Username,
			CreatedAt: time.Now().UTC(),
		})
		for _, alloc := range dist[pid] {
			if err := s.repo.AdjustWarehouseStock(ctx, alloc.WarehouseID, pid, -alloc.Qty); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyStockDeltas reconciles aggregate stock after an edit. Zero deltas move
// nothing; negative deltas restock without an outbound movement.
func (s *Service) applyStockDeltas(ctx context.Context, orderID string, deltas map[string]int) error {
	actor, _ := ActorFromContext(ctx)
	for _, pid := range sortedKeys(deltas) {
		delta := deltas[pid]
		if delta == 0 {
			continue
		}
		prev, next, err := s.repo.AdjustProductStock(ctx, pid, -delta)
		if err != nil {
			return err
		}
		if delta > 0 {
			s.recordMovement(ctx, domain.InventoryMovement{
				ID:        xid.New("mov"),
				ProductID: pid,
				Type:      domain.MovementTypeOut,
				Qty:       delta,
				PrevStock: prev,
				NewStock:  next,
				Reference: orderID,
				CreatedBy: actor.Username,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	return nil
}

// reconcileDistribution replaces the per-warehouse allocation rows and, when
// the sale has already consumed stock, moves warehouse quantities by the
// difference against the previous allocation.
func (s *Service) reconcileDistribution(ctx context.Context, orderID string, dist domain.Distribution, stockApplied bool) error {
	if stockApplied {
		oldDist, err := s.repo.GetDistribution(ctx, orderID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		type whKey struct{ warehouse, product string }
		deltas := make(map[whKey]int)
		for pid, allocs := range dist {
			for _, a := range allocs {
				deltas[whKey{a.WarehouseID, pid}] += a.Qty
			}
		}
		for pid, allocs := range oldDist {
			for _, a := range allocs {
				deltas[whKey{a.WarehouseID, pid}] -= a.Qty
			}
		}
		for key, delta := range deltas {
			if delta == 0 {
				continue
			}
			if err := s.repo.AdjustWarehouseStock(ctx, key.warehouse, key.product, -delta); err != nil {
				return err
			}
		}
	}
	return s.repo.ReplaceDistribution(ctx, orderID, dist)
}

// SettlePayment applies one tender to a persisted order.
func (s *Service) SettlePayment(ctx context.Context, orderID string, req domain.SettlementRequest) (domain.Order, error) {
	existing, err := s.repo.GetSale(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	o := *existing
	if o.Status == domain.OrderStatusPaid {
		return domain.Order{}, ErrAlreadySettled
	}
	if o.Status == domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("%w: order cancelled", store.ErrInvalidInput)
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	var cash, card, transfer int64
	switch req.Method {
	case domain.PaymentMethodCredit:
		if err := s.checkCreditLimit(ctx, o, req.CreditOverride); err != nil {
			return domain.Order{}, err
		}
		o.Status = domain.OrderStatusPending
		o.IsCredit = true
		o.AmountPaidCents = 0
		o.RemainingCents = o.TotalCents
		if _, err := s.repo.AdjustClientBalance(ctx, o.ClientID, o.TotalCents); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}
		if err := s.depleteStockOnce(ctx, &o); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}

	case domain.PaymentMethodVouchers:
		voucher, err := s.repo.GetVoucher(ctx, req.VoucherID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}
		if voucher.Status != domain.VoucherStatusActive {
			return domain.Order{}, fmt.Errorf("%w: voucher not active", store.ErrInvalidInput)
		}
		covered := voucher.AvailableCents
		if covered > o.TotalCents {
			covered = o.TotalCents
		}
		residual := o.TotalCents - covered
		if residual > 0 {
			if _, err := s.repo.CreatePayment(ctx, domain.Payment{
				ID:          xid.New("pay"),
				OrderID:     o.ID,
				Method:      domain.PaymentMethodCash,
				AmountCents: residual,
				Reference:   fmt.Sprintf("voucher %s covered %d", voucher.Code, covered),
				CreatedBy:   actor.Username,
				CreatedAt:   now,
			}); err != nil {
				return domain.Order{}, fmt.Errorf("settle: %w", err)
			}
			cash = residual
		}
		voucher.AvailableCents -= covered
		if voucher.AvailableCents == 0 {
			voucher.Status = domain.VoucherStatusUsed
		}
		if _, err := s.repo.UpdateVoucher(ctx, *voucher); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}
		// the voucher-covered part never hits the drawer: the recorded
		// total becomes what was actually collected
		o.TotalCents = residual
		o.AmountPaidCents = residual
		o.RemainingCents = 0
		o.Status = domain.OrderStatusPaid
		if err := s.depleteStockOnce(ctx, &o); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}

	case domain.PaymentMethodMixed:
		if req.Breakdown == nil {
			return domain.Order{}, fmt.Errorf("%w: mixed settlement needs a breakdown", store.ErrInvalidInput)
		}
		b := *req.Breakdown
		collected := b.CashCents + b.CardCents + b.TransferCents
		if collected < 0 || b.CreditCents < 0 {
			return domain.Order{}, fmt.Errorf("%w: negative breakdown amount", store.ErrInvalidInput)
		}
		if collected > 0 {
			if _, err := s.repo.CreatePayment(ctx, domain.Payment{
				ID:          xid.New("pay"),
				OrderID:     o.ID,
				Method:      domain.PaymentMethodMixed,
				AmountCents: collected,
				Reference:   fmt.Sprintf("cash=%d card=%d transfer=%d credit=%d", b.CashCents, b.CardCents, b.TransferCents, b.CreditCents),
				CreatedBy:   actor.Username,
				CreatedAt:   now,
			}); err != nil {
				return domain.Order{}, fmt.Errorf("settle: %w", err)
			}
		}
		cash, card, transfer = b.CashCents, b.CardCents, b.TransferCents
		o.AmountPaidCents += collected
		o.RemainingCents = o.TotalCents - o.AmountPaidCents
		if o.RemainingCents < 0 {
			o.RemainingCents = 0
		}
		if b.CreditCents > 0 {
			if err := s.checkCreditLimit(ctx, o, req.CreditOverride); err != nil {
				return domain.Order{}, err
			}
			o.Status = domain.OrderStatusPending
			o.IsCredit = true
			if _, err := s.repo.AdjustClientBalance(ctx, o.ClientID, b.CreditCents); err != nil {
				return domain.Order{}, fmt.Errorf("settle: %w", err)
			}
		} else if o.RemainingCents <= domain.PaidEpsilonCents {
			o.RemainingCents = 0
			o.Status = domain.OrderStatusPaid
		}
		if err := s.depleteStockOnce(ctx, &o); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}

	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer:
		if req.AmountCents <= 0 {
			return domain.Order{}, fmt.Errorf("%w: amount must be positive", store.ErrInvalidInput)
		}
		if _, err := s.repo.CreatePayment(ctx, domain.Payment{
			ID:          xid.New("pay"),
			OrderID:     o.ID,
			Method:      req.Method,
			AmountCents: req.AmountCents,
			Reference:   req.Reference,
			CreatedBy:   actor.Username,
			CreatedAt:   now,
		}); err != nil {
			return domain.Order{}, fmt.Errorf("settle: %w", err)
		}
		switch req.Method {
		case domain.PaymentMethodCash:
			cash = req.AmountCents
		case domain.PaymentMethodCard:
			card = req.AmountCents
		case domain.PaymentMethodTransfer:
			transfer = req.AmountCents
		}
		o.AmountPaidCents += req.AmountCents
		o.RemainingCents = o.TotalCents - o.AmountPaidCents
		if o.RemainingCents < 0 {
			o.RemainingCents = 0
		}
		if o.RemainingCents <= domain.PaidEpsilonCents {
			o.RemainingCents = 0
			o.Status = domain.OrderStatusPaid
			if err := s.depleteStockOnce(ctx, &o); err != nil {
				return domain.Order{}, fmt.Errorf("settle: %w", err)
			}
		}
		// collected tender also pays down whatever the client still owes,
		// whether this sale created the debt or an earlier one did
		if o.ClientID != "" {
			if client, err := s.repo.GetClient(ctx, o.ClientID); err == nil && client.BalanceCents > 0 {
				if _, err := s.repo.AdjustClientBalance(ctx, o.ClientID, -req.AmountCents); err != nil {
					log.Printf("[service] WARN: failed to reduce client balance client=%s: %v", o.ClientID, err)
				}
			}
		}

	default:
		return domain.Order{}, fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidInput, req.Method)
	}

	updated, err := s.repo.UpdateSale(ctx, o, o.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("settle: %w", err)
	}

	s.accumulateRegisterTotals(ctx, actor.Username, cash, card, transfer)
	s.broadcast(ctx, "orders")
	return *updated, nil
}

func (s *Service) checkCreditLimit(ctx context.Context, o domain.Order, override bool) error {
	if override {
		return nil
	}
	client, err := s.repo.GetClient(ctx, o.ClientID)
	if err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	if client.CreditLimitCents > 0 && client.BalanceCents+o.TotalCents > client.CreditLimitCents {
		return fmt.Errorf("%w: %s", ErrCreditLimitExceeded, client.Name)
	}
	return nil
}

// depleteStockOnce consumes stock for the sale exactly once across save and
// settlement, tracked by the stock-applied flag on the order.
func (s *Service) depleteStockOnce(ctx context.Context, o *domain.Order) error {
	if o.StockApplied {
		return nil
	}
	items, err := s.repo.ListSaleItems(ctx, o.ID)
	if err != nil {
		return err
	}
	// quotes may carry a warehouse allocation recorded at save time; it has
	// to be consumed together with the aggregate stock
	dist, err := s.repo.GetDistribution(ctx, o.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := s.debitStock(ctx, o.ID, quantitiesByProduct(items), dist); err != nil {
		return err
	}
	o.StockApplied = true
	return nil
}

// CancelOrder voids a sale and returns any consumed stock.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	existing, err := s.repo.GetSale(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	o := *existing
	if o.Status == domain.OrderStatusCancelled {
		return o, nil
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()

	if o.StockApplied {
		items, err := s.repo.ListSaleItems(ctx, o.ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("cancel order: %w", err)
		}
		qtys := quantitiesByProduct(items)
		for _, pid := range sortedKeys(qtys) {
			qty := qtys[pid]
			prev, next, err := s.repo.AdjustProductStock(ctx, pid, qty)
			if err != nil {
				return domain.Order{}, fmt.Errorf("cancel order: %w", err)
			}
			s.recordMovement(ctx, domain.InventoryMovement{
				ID:        xid.New("mov"),
				ProductID: pid,
				Type:      domain.MovementTypeIn,
				Qty:       qty,
				PrevStock: prev,
				NewStock:  next,
				Reference: o.ID,
				CreatedBy: actor.Username,
				CreatedAt: now,
			})
		}
		if dist, err := s.repo.GetDistribution(ctx, o.ID); err == nil {
			for pid, allocs := range dist {
				for _, a := range allocs {
					if err := s.repo.AdjustWarehouseStock(ctx, a.WarehouseID, pid, a.Qty); err != nil {
						log.Printf("[service] WARN: failed to restore warehouse stock wh=%s product=%s: %v", a.WarehouseID, pid, err)
					}
				}
			}
		}
		o.StockApplied = false
	}

	// voiding a credit sale removes the uncollected debt from the account
	if o.IsCredit && o.RemainingCents > 0 {
		if _, err := s.repo.AdjustClientBalance(ctx, o.ClientID, -o.RemainingCents); err != nil {
			return domain.Order{}, fmt.Errorf("cancel order: %w", err)
		}
	}

	o.Status = domain.OrderStatusCancelled
	updated, err := s.repo.UpdateSale(ctx, o, o.Version)
	if err != nil {
		return domain.Order{}, fmt.Errorf("cancel order: %w", err)
	}

	s.broadcast(ctx, "orders")
	return *updated, nil
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.CashRegister, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.CashRegister{}, fmt.Errorf("operator identity required")
	}
	if req.OpeningCents < 0 {
		return domain.CashRegister{}, fmt.Errorf("%w: opening amount must not be negative", store.ErrInvalidInput)
	}

	register := domain.CashRegister{
		ID:           xid.New("reg"),
		Operator:     actor.Username,
		OpeningCents: req.OpeningCents,
		Status:       domain.RegisterStatusOpen,
		OpenedAt:     time.Now().UTC(),
	}
	created, err := s.repo.CreateRegister(ctx, register)
	if err != nil {
		return domain.CashRegister{}, fmt.Errorf("open register: %w", err)
	}

	s.broadcast(ctx, "registers")
	return *created, nil
}

func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.CashRegister, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.CashRegister{}, fmt.Errorf("operator identity required")
	}

	register, err := s.repo.GetOpenRegisterByOperator(ctx, actor.Username)
	if err != nil {
		return domain.CashRegister{}, fmt.Errorf("close register: %w", err)
	}

	now := time.Now().UTC()
	register.Status = domain.RegisterStatusClosed
	register.ClosingCents = req.ClosingCents
	register.ClosedAt = &now

	updated, err := s.repo.UpdateRegister(ctx, *register)
	if err != nil {
		return domain.CashRegister{}, fmt.Errorf("close register: %w", err)
	}

	s.broadcast(ctx, "registers")
	return *updated, nil
}

func (s *Service) ActiveRegister(ctx context.Context) (domain.CashRegister, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.CashRegister{}, fmt.Errorf("operator identity required")
	}
	register, err := s.repo.GetOpenRegisterByOperator(ctx, actor.Username)
	if err != nil {
		return domain.CashRegister{}, err
	}
	return *register, nil
}

// accumulateRegisterTotals rolls collected tender into the operator's open
// register. Missing or failed register updates never fail the settlement.
func (s *Service) accumulateRegisterTotals(ctx context.Context, operator string, cash, card, transfer int64) {
	if cash == 0 && card == 0 && transfer == 0 {
		return
	}
	register, err := s.repo.GetOpenRegisterByOperator(ctx, operator)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[service] WARN: failed to load open register operator=%s: %v", operator, err)
		}
		return
	}
	register.CashTotalCents += cash
	register.CardTotalCents += card
	register.TransferTotalCents += transfer
	register.SalesTotalCents += cash + card + transfer
	if _, err := s.repo.UpdateRegister(ctx, *register); err != nil {
		log.Printf("[service] WARN: failed to update register totals id=%s: %v", register.ID, err)
	}
}

// AcquireLock takes or refreshes the advisory edit lock on an order. The lock
// is a hint for the terminals; the version check on save is what actually
// protects against concurrent edits.
func (s *Service) AcquireLock(ctx context.Context, orderID string, session string) (domain.OrderLock, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.OrderLock{}, fmt.Errorf("operator identity required")
	}
	if orderID == "" || session == "" {
		return domain.OrderLock{}, fmt.Errorf("%w: order id and session required", store.ErrInvalidInput)
	}

	now := time.Now().UTC()
	if _, err := s.repo.DeleteExpiredLocks(ctx, now); err != nil {
		log.Printf("[service] WARN: failed to sweep expired locks: %v", err)
	}

	existing, err := s.repo.GetOrderLock(ctx, orderID)
	if err == nil && existing.ExpiresAt.After(now) {
		if existing.Holder != actor.Username || existing.Session != session {
			return domain.OrderLock{}, fmt.Errorf("%w: held by %s", store.ErrLockConflict, existing.Holder)
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.OrderLock{}, fmt.Errorf("acquire lock: %w", err)
	}

	lock := domain.OrderLock{
		OrderID:    orderID,
		Holder:     actor.Username,
		Session:    session,
		AcquiredAt: now,
		ExpiresAt:  now.Add(s.lockTTL),
	}
	if err := s.repo.UpsertOrderLock(ctx, lock); err != nil {
		return domain.OrderLock{}, fmt.Errorf("acquire lock: %w", err)
	}
	return lock, nil
}

// ReleaseLock drops the caller's lock. Releasing a lock held by someone else
// or no lock at all is not an error.
func (s *Service) ReleaseLock(ctx context.Context, orderID string, session string) {
	actor, _ := ActorFromContext(ctx)
	existing, err := s.repo.GetOrderLock(ctx, orderID)
	if err != nil {
		return
	}
	if existing.Holder != actor.Username || existing.Session != session {
		return
	}
	if err := s.repo.DeleteOrderLock(ctx, orderID); err != nil {
		log.Printf("[service] WARN: failed to release lock order=%s: %v", orderID, err)
	}
}

func (s *Service) SweepExpiredLocks(ctx context.Context) (int, error) {
	return s.repo.DeleteExpiredLocks(ctx, time.Now().UTC())
}

func (s *Service) CreateVoucher(ctx context.Context, req domain.VoucherCreateRequest) (domain.Voucher, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Voucher{}, fmt.Errorf("admin role required")
	}
	if strings.TrimSpace(req.Code) == "" || req.AvailableCents < 1 {
		return domain.Voucher{}, fmt.Errorf("%w: voucher needs a code and a positive balance", store.ErrInvalidInput)
	}

	voucher := domain.Voucher{
		ID:             xid.New("vch"),
		Code:           strings.ToUpper(strings.TrimSpace(req.Code)),
		AvailableCents: req.AvailableCents,
		Status:         domain.VoucherStatusActive,
		IssuedTo:       req.IssuedTo,
		CreatedAt:      time.Now().UTC(),
	}
	created, err := s.repo.CreateVoucher(ctx, voucher)
	if err != nil {
		return domain.Voucher{}, fmt.Errorf("create voucher: %w", err)
	}
	return *created, nil
}

func (s *Service) ListVouchers(ctx context.Context, status string) ([]domain.Voucher, error) {
	return s.repo.ListVouchers(ctx, status)
}

func (s *Service) recordMovement(ctx context.Context, m domain.InventoryMovement) {
	if err := s.repo.CreateInventoryMovement(ctx, m); err != nil {
		log.Printf("[service] WARN: failed to record inventory movement product=%s: %v", m.ProductID, err)
	}
}

func (s *Service) broadcast(ctx context.Context, kind string) {
	if err := s.broadcaster.Publish(ctx, kind); err != nil {
		log.Printf("[service] WARN: failed to broadcast %s change: %v", kind, err)
	}
}

// validateStock checks requested quantities against the product snapshot and
// names every product that fails. When deltas is non-nil only the additional
// quantity over what the sale already holds is checked.
func validateStock(items []domain.OrderItem, products map[string]domain.Product, deltas map[string]int) error {
	qtys := quantitiesByProduct(items)
	failed := make([]string, 0)
	for _, pid := range sortedKeys(qtys) {
		p, ok := products[pid]
		if !ok {
			failed = append(failed, pid)
			continue
		}
		needed := qtys[pid]
		if deltas != nil {
			needed = deltas[pid]
		}
		if needed > p.Stock {
			failed = append(failed, p.Name)
		}
	}
	if len(failed) > 0 {
		return &store.InsufficientStockError{Products: failed}
	}
	return nil
}

func quantitiesByProduct(items []domain.OrderItem) map[string]int {
	qtys := make(map[string]int, len(items))
	for _, it := range items {
		qtys[it.ProductID] += it.Qty
	}
	return qtys
}

func recomputeTotals(o domain.Order) domain.Order {
	var subtotal int64
	for i := range o.Items {
		o.Items[i].TotalCents = int64(o.Items[i].Qty) * o.Items[i].UnitPriceCents
		subtotal += o.Items[i].TotalCents
	}
	o.SubtotalCents = subtotal
	if o.DiscountCents < 0 {
		o.DiscountCents = 0
	}
	if o.DiscountCents > subtotal {
		o.DiscountCents = subtotal
	}
	o.TotalCents = subtotal - o.DiscountCents
	return o
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
