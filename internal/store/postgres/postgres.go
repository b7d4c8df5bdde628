package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"ventapos/backend/internal/domain"
	"ventapos/backend/internal/store"
	"ventapos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, line, subline, unit, stock,
			price1_cents, price2_cents, price3_cents, price4_cents, price5_cents,
			active, tara_applies
		FROM products
		WHERE active = true
		ORDER BY line, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Line, &p.Subline, &p.Unit, &p.Stock,
			&p.Price1Cents, &p.Price2Cents, &p.Price3Cents, &p.Price4Cents, &p.Price5Cents,
			&p.Active, &p.TaraApplies); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, line, subline, unit, stock,
			price1_cents, price2_cents, price3_cents, price4_cents, price5_cents,
			active, tara_applies
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Line, &p.Subline, &p.Unit, &p.Stock,
		&p.Price1Cents, &p.Price2Cents, &p.Price3Cents, &p.Price4Cents, &p.Price5Cents,
		&p.Active, &p.TaraApplies)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, line, subline, unit, stock,
			price1_cents, price2_cents, price3_cents, price4_cents, price5_cents,
			active, tara_applies
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Line, &p.Subline, &p.Unit, &p.Stock,
			&p.Price1Cents, &p.Price2Cents, &p.Price3Cents, &p.Price4Cents, &p.Price5Cents,
			&p.Active, &p.TaraApplies); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// AdjustProductStock applies a signed delta under a row lock and reports the
// stock before and after. Stock never goes below zero.
func (s *Store) AdjustProductStock(ctx context.Context, id string, delta int) (int, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var prev int
	err = tx.QueryRowContext(ctx, `
		SELECT stock
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&prev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, store.ErrNotFound
		}
		return 0, 0, err
	}

	next := prev + delta
	if next < 0 {
		next = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, id, next)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return prev, next, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, tax_id, credit_limit_cents, balance_cents, default_tier, zone
		FROM clients
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.TaxID, &c.CreditLimitCents, &c.BalanceCents, &c.DefaultTier, &c.Zone); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var c domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tax_id, credit_limit_cents, balance_cents, default_tier, zone
		FROM clients
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.TaxID, &c.CreditLimitCents, &c.BalanceCents, &c.DefaultTier, &c.Zone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// AdjustClientBalance applies a signed delta to the client's running debt.
// Balances never go below zero.
func (s *Store) AdjustClientBalance(ctx context.Context, id string, deltaCents int64) (*domain.Client, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var c domain.Client
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, tax_id, credit_limit_cents, balance_cents, default_tier, zone
		FROM clients
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&c.ID, &c.Name, &c.TaxID, &c.CreditLimitCents, &c.BalanceCents, &c.DefaultTier, &c.Zone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	c.BalanceCents += deltaCents
	if c.BalanceCents < 0 {
		c.BalanceCents = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE clients
		SET balance_cents = $2, updated_at = now()
		WHERE id = $1
	`, id, c.BalanceCents)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateSale(ctx context.Context, o domain.Order) (*domain.Order, error) {
	if o.ID == "" || len(o.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Version < 1 {
		o.Version = 1
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// persisted_status keeps the legacy reporting vocabulary alongside the
	// canonical status so old report queries keep working.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, client_id, client_name, sale_date, subtotal_cents, discount_cents,
			total_cents, status, persisted_status, is_credit, is_invoice, is_quote,
			is_external, amount_paid_cents, remaining_cents, stock_applied,
			created_by, created_at, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, o.ID, o.ClientID, o.ClientName, o.Date, o.SubtotalCents, o.DiscountCents,
		o.TotalCents, o.Status, domain.PersistedStatus(o.Status), o.IsCredit, o.IsInvoice, o.IsQuote,
		o.IsExternal, o.AmountPaidCents, o.RemainingCents, o.StockApplied,
		o.CreatedBy, o.CreatedAt, o.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	if err := insertSaleItems(ctx, tx, o.ID, o.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := o
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, client_id, client_name, sale_date, subtotal_cents, discount_cents,
			total_cents, status, is_credit, is_invoice, is_quote, is_external,
			amount_paid_cents, remaining_cents, stock_applied, created_by, created_at, version
		FROM sales
		WHERE id = $1
	`, id).Scan(&o.ID, &o.ClientID, &o.ClientName, &o.Date, &o.SubtotalCents, &o.DiscountCents,
		&o.TotalCents, &o.Status, &o.IsCredit, &o.IsInvoice, &o.IsQuote, &o.IsExternal,
		&o.AmountPaidCents, &o.RemainingCents, &o.StockApplied, &o.CreatedBy, &o.CreatedAt, &o.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.Date = o.Date.UTC()
	o.CreatedAt = o.CreatedAt.UTC()

	items, err := s.ListSaleItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items

	payments, err := s.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Payments = payments

	return &o, nil
}

// UpdateSale writes the order header only when the stored version still
// matches the caller's expectation, bumping the version on success.
func (s *Store) UpdateSale(ctx context.Context, o domain.Order, expectedVersion int) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET client_id = $2, client_name = $3, sale_date = $4, subtotal_cents = $5,
			discount_cents = $6, total_cents = $7, status = $8, persisted_status = $9,
			is_credit = $10, is_invoice = $11, is_quote = $12, is_external = $13,
			amount_paid_cents = $14, remaining_cents = $15, stock_applied = $16,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $17
	`, o.ID, o.ClientID, o.ClientName, o.Date, o.SubtotalCents,
		o.DiscountCents, o.TotalCents, o.Status, domain.PersistedStatus(o.Status),
		o.IsCredit, o.IsInvoice, o.IsQuote, o.IsExternal,
		o.AmountPaidCents, o.RemainingCents, o.StockApplied,
		expectedVersion)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrVersionConflict
	}

	updated := o
	updated.Version = expectedVersion + 1
	return &updated, nil
}

func (s *Store) ReplaceSaleItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	if err := insertSaleItems(ctx, tx, orderID, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListSaleItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_code, product_name, qty, tier,
			unit_price_cents, total_cents, custom_price, tara
		FROM sale_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		var taraRaw []byte
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductCode, &item.ProductName,
			&item.Qty, &item.Tier, &item.UnitPriceCents, &item.TotalCents, &item.CustomPrice, &taraRaw); err != nil {
			return nil, err
		}
		if len(taraRaw) > 0 {
			var tara domain.TaraSelection
			if err := json.Unmarshal(taraRaw, &tara); err == nil {
				item.Tara = &tara
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertSaleItems(ctx context.Context, tx *sql.Tx, orderID string, items []domain.OrderItem) error {
	for position, item := range items {
		var taraJSON any
		if item.Tara != nil {
			raw, err := json.Marshal(item.Tara)
			if err != nil {
				return err
			}
			taraJSON = raw
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				order_id, id, position, product_id, product_code, product_name,
				qty, tier, unit_price_cents, total_cents, custom_price, tara
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, orderID, item.ID, position, item.ProductID, item.ProductCode, item.ProductName,
			item.Qty, item.Tier, item.UnitPriceCents, item.TotalCents, item.CustomPrice, taraJSON)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p domain.Payment) (*domain.Payment, error) {
	if p.OrderID == "" || p.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if p.ID == "" {
		p.ID = xid.New("pay")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, method, amount_cents, reference, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.OrderID, p.Method, p.AmountCents, nullIfEmpty(p.Reference), p.CreatedBy, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := p
	return &created, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, method, amount_cents, COALESCE(reference, ''), created_by, created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.AmountCents, &p.Reference, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreateRegister(ctx context.Context, r domain.CashRegister) (*domain.CashRegister, error) {
	if r.Operator == "" || r.OpeningCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if r.ID == "" {
		r.ID = xid.New("reg")
	}
	if r.OpenedAt.IsZero() {
		r.OpenedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = domain.RegisterStatusOpen
	}

	// the partial unique index on (operator) WHERE status = 'open' enforces
	// one open register per operator
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_registers (
			id, operator, opening_cents, sales_total_cents, cash_total_cents,
			card_total_cents, transfer_total_cents, status, opened_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, r.ID, r.Operator, r.OpeningCents, r.SalesTotalCents, r.CashTotalCents,
		r.CardTotalCents, r.TransferTotalCents, r.Status, r.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := r
	return &created, nil
}

func (s *Store) GetOpenRegisterByOperator(ctx context.Context, operator string) (*domain.CashRegister, error) {
	var r domain.CashRegister
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, operator, opening_cents, sales_total_cents, cash_total_cents,
			card_total_cents, transfer_total_cents, status, opened_at, COALESCE(closing_cents, 0), closed_at
		FROM cash_registers
		WHERE operator = $1 AND status = $2
		ORDER BY opened_at DESC
		LIMIT 1
	`, operator, domain.RegisterStatusOpen).Scan(&r.ID, &r.Operator, &r.OpeningCents,
		&r.SalesTotalCents, &r.CashTotalCents, &r.CardTotalCents, &r.TransferTotalCents,
		&r.Status, &r.OpenedAt, &r.ClosingCents, &closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	r.OpenedAt = r.OpenedAt.UTC()
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		r.ClosedAt = &t
	}
	return &r, nil
}

func (s *Store) UpdateRegister(ctx context.Context, r domain.CashRegister) (*domain.CashRegister, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cash_registers
		SET sales_total_cents = $2, cash_total_cents = $3, card_total_cents = $4,
			transfer_total_cents = $5, status = $6, closing_cents = $7, closed_at = $8
		WHERE id = $1
	`, r.ID, r.SalesTotalCents, r.CashTotalCents, r.CardTotalCents,
		r.TransferTotalCents, r.Status, r.ClosingCents, nullTime(r.ClosedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := r
	return &updated, nil
}

func (s *Store) AdjustWarehouseStock(ctx context.Context, warehouseID string, productID string, delta int) error {
	if warehouseID == "" || productID == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warehouse_stocks (warehouse_id, product_id, qty, updated_at)
		VALUES ($1,$2,GREATEST($3, 0),now())
		ON CONFLICT (warehouse_id, product_id)
		DO UPDATE SET qty = GREATEST(warehouse_stocks.qty + $3, 0), updated_at = now()
	`, warehouseID, productID, delta)
	return err
}

func (s *Store) ListWarehouseStock(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT warehouse_id, product_id, qty
		FROM warehouse_stocks
		WHERE ($1 = '' OR warehouse_id = $1)
		ORDER BY warehouse_id, product_id
	`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks := make([]domain.WarehouseStock, 0, 64)
	for rows.Next() {
		var ws domain.WarehouseStock
		if err := rows.Scan(&ws.WarehouseID, &ws.ProductID, &ws.Qty); err != nil {
			return nil, err
		}
		stocks = append(stocks, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stocks, nil
}

func (s *Store) ReplaceDistribution(ctx context.Context, orderID string, dist domain.Distribution) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_distributions WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for productID, allocations := range dist {
		for _, alloc := range allocations {
			if alloc.Qty < 1 {
				continue
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sale_distributions (order_id, product_id, warehouse_id, qty)
				VALUES ($1,$2,$3,$4)
			`, orderID, productID, alloc.WarehouseID, alloc.Qty)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *Store) GetDistribution(ctx context.Context, orderID string) (domain.Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, warehouse_id, qty
		FROM sale_distributions
		WHERE order_id = $1
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dist := make(domain.Distribution)
	for rows.Next() {
		var productID string
		var alloc domain.WarehouseAllocation
		if err := rows.Scan(&productID, &alloc.WarehouseID, &alloc.Qty); err != nil {
			return nil, err
		}
		dist[productID] = append(dist[productID], alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dist, nil
}

func (s *Store) CreateInventoryMovement(ctx context.Context, m domain.InventoryMovement) error {
	if m.ProductID == "" || m.Qty < 1 {
		return store.ErrInvalidInput
	}
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, type, qty, prev_stock, new_stock, reference, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.ProductID, m.Type, m.Qty, m.PrevStock, m.NewStock, nullIfEmpty(m.Reference), m.CreatedBy, m.CreatedAt)
	return err
}

func (s *Store) ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, qty, prev_stock, new_stock, COALESCE(reference, ''), created_by, created_at
		FROM inventory_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, limit)
	for rows.Next() {
		var m domain.InventoryMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Qty, &m.PrevStock, &m.NewStock, &m.Reference, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) GetOrderLock(ctx context.Context, orderID string) (*domain.OrderLock, error) {
	var lock domain.OrderLock
	err := s.db.QueryRowContext(ctx, `
		SELECT order_id, holder, session, acquired_at, expires_at
		FROM order_locks
		WHERE order_id = $1
	`, orderID).Scan(&lock.OrderID, &lock.Holder, &lock.Session, &lock.AcquiredAt, &lock.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lock.AcquiredAt = lock.AcquiredAt.UTC()
	lock.ExpiresAt = lock.ExpiresAt.UTC()
	return &lock, nil
}

func (s *Store) UpsertOrderLock(ctx context.Context, lock domain.OrderLock) error {
	if lock.OrderID == "" || lock.Holder == "" {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_locks (order_id, holder, session, acquired_at, expires_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id)
		DO UPDATE SET holder = EXCLUDED.holder, session = EXCLUDED.session,
			acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
	`, lock.OrderID, lock.Holder, lock.Session, lock.AcquiredAt, lock.ExpiresAt)
	return err
}

func (s *Store) DeleteOrderLock(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM order_locks WHERE order_id = $1`, orderID)
	return err
}

func (s *Store) DeleteExpiredLocks(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM order_locks WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) CreateVoucher(ctx context.Context, v domain.Voucher) (*domain.Voucher, error) {
	if v.Code == "" || v.AvailableCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if v.ID == "" {
		v.ID = xid.New("vch")
	}
	if v.Status == "" {
		v.Status = domain.VoucherStatusActive
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vouchers (id, code, available_cents, status, issued_to, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, v.ID, v.Code, v.AvailableCents, v.Status, nullIfEmpty(v.IssuedTo), v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := v
	return &created, nil
}

func (s *Store) GetVoucher(ctx context.Context, id string) (*domain.Voucher, error) {
	var v domain.Voucher
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, available_cents, status, COALESCE(issued_to, ''), created_at
		FROM vouchers
		WHERE id = $1 OR code = $1
	`, id).Scan(&v.ID, &v.Code, &v.AvailableCents, &v.Status, &v.IssuedTo, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) UpdateVoucher(ctx context.Context, v domain.Voucher) (*domain.Voucher, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vouchers
		SET available_cents = $2, status = $3
		WHERE id = $1
	`, v.ID, v.AvailableCents, v.Status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := v
	return &updated, nil
}

func (s *Store) ListVouchers(ctx context.Context, status string) ([]domain.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, available_cents, status, COALESCE(issued_to, ''), created_at
		FROM vouchers
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vouchers := make([]domain.Voucher, 0, 16)
	for rows.Next() {
		var v domain.Voucher
		if err := rows.Scan(&v.ID, &v.Code, &v.AvailableCents, &v.Status, &v.IssuedTo, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
