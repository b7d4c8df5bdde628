package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ventapos/backend/internal/domain"
	"ventapos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	clients         map[string]domain.Client
	salesByID       map[string]*domain.Order
	itemsByOrder    map[string][]domain.OrderItem
	paymentsByOrder map[string][]domain.Payment
	registersByID   map[string]domain.CashRegister
	warehouseStock  map[string]map[string]int
	distByOrder     map[string]domain.Distribution
	movements       []domain.InventoryMovement
	locksByOrder    map[string]domain.OrderLock
	vouchersByID    map[string]domain.Voucher
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; unset
// variables fall back to hardcoded dev defaults with a warning. The memory
// store is never used when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "prod-arroz", Code: "ARZ-25", Name: "Arroz 25kg", Line: "Granel", Unit: "saco", Stock: 80, Price1Cents: 95000, Price2Cents: 99000, Active: true, TaraApplies: true},
		{ID: "prod-azucar", Code: "AZU-50", Name: "Azucar 50kg", Line: "Granel", Unit: "saco", Stock: 60, Price1Cents: 142000, Active: true, TaraApplies: true},
		{ID: "prod-aceite", Code: "ACE-1L", Name: "Aceite 1L", Line: "Abarrotes", Unit: "pieza", Stock: 240, Price1Cents: 3900, Price3Cents: 4300, Active: true},
		{ID: "prod-harina", Code: "HAR-44", Name: "Harina 44kg", Line: "Granel", Unit: "saco", Stock: 45, Price1Cents: 87000, Active: true, TaraApplies: true},
		{ID: "prod-frijol", Code: "FRI-25", Name: "Frijol 25kg", Line: "Granel", Unit: "saco", Stock: 30, Price1Cents: 118000, Active: true, TaraApplies: true},
		{ID: "prod-sal", Code: "SAL-1K", Name: "Sal 1kg", Line: "Abarrotes", Unit: "pieza", Stock: 500, Price1Cents: 1200, Active: true},
		{ID: "prod-cafe", Code: "CAF-500", Name: "Cafe 500g", Line: "Abarrotes", Unit: "pieza", Stock: 120, Price1Cents: 8900, Active: true},
		{ID: "prod-detergente", Code: "DET-5K", Name: "Detergente 5kg", Line: "Limpieza", Unit: "cubeta", Stock: 70, Price1Cents: 21500, Active: true},
	}

	clients := []domain.Client{
		{ID: "cli-mostrador", Name: "Mostrador", DefaultTier: 1},
		{ID: "cli-bodega-norte", Name: "Bodega Norte", TaxID: "BNO900101AAA", CreditLimitCents: 5000000, DefaultTier: 3, Zone: "norte"},
		{ID: "cli-abarrotes-diaz", Name: "Abarrotes Diaz", TaxID: "ADI850505BBB", CreditLimitCents: 1500000, BalanceCents: 200000, DefaultTier: 2, Zone: "centro"},
		{ID: "cli-comedor-luz", Name: "Comedor Luz", CreditLimitCents: 800000, DefaultTier: 2, Zone: "sur"},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	clientMap := make(map[string]domain.Client, len(clients))
	for _, c := range clients {
		clientMap[c.ID] = c
	}

	now := time.Now().UTC()
	vouchers := map[string]domain.Voucher{
		"vch-seed-1": {ID: "vch-seed-1", Code: "VALE-0001", AvailableCents: 50000, Status: domain.VoucherStatusActive, IssuedTo: "cli-abarrotes-diaz", CreatedAt: now},
	}

	return &Store{
		products:        productMap,
		clients:         clientMap,
		salesByID:       make(map[string]*domain.Order),
		itemsByOrder:    make(map[string][]domain.OrderItem),
		paymentsByOrder: make(map[string][]domain.Payment),
		registersByID:   make(map[string]domain.CashRegister),
		warehouseStock:  map[string]map[string]int{"wh-principal": {}},
		distByOrder:     make(map[string]domain.Distribution),
		movements:       make([]domain.InventoryMovement, 0, 128),
		locksByOrder:    make(map[string]domain.OrderLock),
		vouchersByID:    vouchers,
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Line == b.Line {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Line, b.Line)
	})

	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) AdjustProductStock(_ context.Context, id string, delta int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return 0, 0, store.ErrNotFound
	}
	prev := p.Stock
	next := prev + delta
	if next < 0 {
		next = 0
	}
	p.Stock = next
	s.products[id] = p
	return prev, next, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})
	return clients, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (s *Store) AdjustClientBalance(_ context.Context, id string, deltaCents int64) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.BalanceCents += deltaCents
	if c.BalanceCents < 0 {
		c.BalanceCents = 0
	}
	s.clients[id] = c
	cp := c
	return &cp, nil
}

func (s *Store) CreateSale(_ context.Context, o domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" || len(o.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.salesByID[o.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	items := cloneItems(o.Items)
	s.itemsByOrder[o.ID] = items
	header := o
	header.Items = nil
	header.Payments = nil
	s.salesByID[o.ID] = &header

	created := header
	created.Items = cloneItems(items)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	cp.Items = cloneItems(s.itemsByOrder[id])
	cp.Payments = clonePayments(s.paymentsByOrder[id])
	return &cp, nil
}

func (s *Store) UpdateSale(_ context.Context, o domain.Order, expectedVersion int) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[o.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	header := o
	header.Items = nil
	header.Payments = nil
	header.Version = expectedVersion + 1
	s.salesByID[o.ID] = &header

	cp := header
	cp.Items = cloneItems(s.itemsByOrder[o.ID])
	return &cp, nil
}

func (s *Store) ReplaceSaleItems(_ context.Context, orderID string, items []domain.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salesByID[orderID]; !ok {
		return store.ErrNotFound
	}
	s.itemsByOrder[orderID] = cloneItems(items)
	return nil
}

func (s *Store) ListSaleItems(_ context.Context, orderID string) ([]domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.salesByID[orderID]; !ok {
		return nil, store.ErrNotFound
	}
	return cloneItems(s.itemsByOrder[orderID]), nil
}

func (s *Store) CreatePayment(_ context.Context, p domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" || p.OrderID == "" || p.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.salesByID[p.OrderID]; !ok {
		return nil, store.ErrNotFound
	}
	s.paymentsByOrder[p.OrderID] = append(s.paymentsByOrder[p.OrderID], p)
	created := p
	return &created, nil
}

func (s *Store) ListPayments(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clonePayments(s.paymentsByOrder[orderID]), nil
}

func (s *Store) CreateRegister(_ context.Context, r domain.CashRegister) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" || r.Operator == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.registersByID {
		if existing.Operator == r.Operator && existing.Status == domain.RegisterStatusOpen {
			return nil, store.ErrInvalidInput
		}
	}
	s.registersByID[r.ID] = r
	created := r
	return &created, nil
}

func (s *Store) GetOpenRegisterByOperator(_ context.Context, operator string) (*domain.CashRegister, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.registersByID {
		if r.Operator == operator && r.Status == domain.RegisterStatusOpen {
			cp := r
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateRegister(_ context.Context, r domain.CashRegister) (*domain.CashRegister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registersByID[r.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.registersByID[r.ID] = r
	cp := r
	return &cp, nil
}

func (s *Store) AdjustWarehouseStock(_ context.Context, warehouseID string, productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warehouseID == "" || productID == "" {
		return store.ErrInvalidInput
	}
	wh, ok := s.warehouseStock[warehouseID]
	if !ok {
		wh = make(map[string]int)
		s.warehouseStock[warehouseID] = wh
	}
	next := wh[productID] + delta
	if next < 0 {
		next = 0
	}
	wh[productID] = next
	return nil
}

func (s *Store) ListWarehouseStock(_ context.Context, warehouseID string) ([]domain.WarehouseStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WarehouseStock, 0)
	for whID, stocks := range s.warehouseStock {
		if warehouseID != "" && whID != warehouseID {
			continue
		}
		for pid, qty := range stocks {
			out = append(out, domain.WarehouseStock{WarehouseID: whID, ProductID: pid, Qty: qty})
		}
	}
	slices.SortFunc(out, func(a, b domain.WarehouseStock) int {
		if a.WarehouseID == b.WarehouseID {
			return cmpString(a.ProductID, b.ProductID)
		}
		return cmpString(a.WarehouseID, b.WarehouseID)
	})
	return out, nil
}

func (s *Store) ReplaceDistribution(_ context.Context, orderID string, dist domain.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if orderID == "" {
		return store.ErrInvalidInput
	}
	s.distByOrder[orderID] = cloneDistribution(dist)
	return nil
}

func (s *Store) GetDistribution(_ context.Context, orderID string) (domain.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dist, ok := s.distByOrder[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDistribution(dist), nil
}

func (s *Store) CreateInventoryMovement(_ context.Context, m domain.InventoryMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" || m.ProductID == "" {
		return store.ErrInvalidInput
	}
	s.movements = append(s.movements, m)
	return nil
}

func (s *Store) ListInventoryMovements(_ context.Context, productID string, limit int) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryMovement, 0, limit)
	for i := len(s.movements) - 1; i >= 0; i-- {
		if productID != "" && s.movements[i].ProductID != productID {
			continue
		}
		out = append(out, s.movements[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetOrderLock(_ context.Context, orderID string) (*domain.OrderLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lock, ok := s.locksByOrder[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := lock
	return &cp, nil
}

func (s *Store) UpsertOrderLock(_ context.Context, lock domain.OrderLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock.OrderID == "" || lock.Holder == "" {
		return store.ErrInvalidInput
	}
	s.locksByOrder[lock.OrderID] = lock
	return nil
}

func (s *Store) DeleteOrderLock(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locksByOrder, orderID)
	return nil
}

func (s *Store) DeleteExpiredLocks(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, lock := range s.locksByOrder {
		if !lock.ExpiresAt.After(now) {
			delete(s.locksByOrder, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) CreateVoucher(_ context.Context, v domain.Voucher) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" || v.AvailableCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.vouchersByID[v.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	s.vouchersByID[v.ID] = v
	created := v
	return &created, nil
}

func (s *Store) GetVoucher(_ context.Context, id string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vouchersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := v
	return &cp, nil
}

func (s *Store) UpdateVoucher(_ context.Context, v domain.Voucher) (*domain.Voucher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vouchersByID[v.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.vouchersByID[v.ID] = v
	cp := v
	return &cp, nil
}

func (s *Store) ListVouchers(_ context.Context, status string) ([]domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Voucher, 0, len(s.vouchersByID))
	for _, v := range s.vouchersByID {
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Voucher) int {
		return cmpString(a.Code, b.Code)
	})
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	if password == "" {
		return store.ErrInvalidInput
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func cloneItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Tara != nil {
			tara := *out[i].Tara
			out[i].Tara = &tara
		}
	}
	return out
}

func clonePayments(payments []domain.Payment) []domain.Payment {
	out := make([]domain.Payment, len(payments))
	copy(out, payments)
	return out
}

func cloneDistribution(dist domain.Distribution) domain.Distribution {
	out := make(domain.Distribution, len(dist))
	for pid, allocs := range dist {
		cp := make([]domain.WarehouseAllocation, len(allocs))
		copy(cp, allocs)
		out[pid] = cp
	}
	return out
}

func cmpString(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
