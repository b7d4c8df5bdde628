package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ventapos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLockConflict      = errors.New("order locked by another session")
	ErrVersionConflict   = errors.New("order modified by another session")
)

// InsufficientStockError names every product that failed validation so the
// terminal can show them all in one prompt.
type InsufficientStockError struct {
	Products []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %s", strings.Join(e.Products, ", "))
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	AdjustProductStock(ctx context.Context, id string, delta int) (prev int, next int, err error)

	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	AdjustClientBalance(ctx context.Context, id string, deltaCents int64) (*domain.Client, error)

	CreateSale(ctx context.Context, o domain.Order) (*domain.Order, error)
	GetSale(ctx context.Context, id string) (*domain.Order, error)
	UpdateSale(ctx context.Context, o domain.Order, expectedVersion int) (*domain.Order, error)
	ReplaceSaleItems(ctx context.Context, orderID string, items []domain.OrderItem) error
	ListSaleItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)

	CreatePayment(ctx context.Context, p domain.Payment) (*domain.Payment, error)
	ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error)

	CreateRegister(ctx context.Context, r domain.CashRegister) (*domain.CashRegister, error)
	GetOpenRegisterByOperator(ctx context.Context, operator string) (*domain.CashRegister, error)
	UpdateRegister(ctx context.Context, r domain.CashRegister) (*domain.CashRegister, error)

	AdjustWarehouseStock(ctx context.Context, warehouseID string, productID string, delta int) error
	ListWarehouseStock(ctx context.Context, warehouseID string) ([]domain.WarehouseStock, error)
	ReplaceDistribution(ctx context.Context, orderID string, dist domain.Distribution) error
	GetDistribution(ctx context.Context, orderID string) (domain.Distribution, error)

	CreateInventoryMovement(ctx context.Context, m domain.InventoryMovement) error
	ListInventoryMovements(ctx context.Context, productID string, limit int) ([]domain.InventoryMovement, error)

	GetOrderLock(ctx context.Context, orderID string) (*domain.OrderLock, error)
	UpsertOrderLock(ctx context.Context, lock domain.OrderLock) error
	DeleteOrderLock(ctx context.Context, orderID string) error
	DeleteExpiredLocks(ctx context.Context, now time.Time) (int, error)

	CreateVoucher(ctx context.Context, v domain.Voucher) (*domain.Voucher, error)
	GetVoucher(ctx context.Context, id string) (*domain.Voucher, error)
	UpdateVoucher(ctx context.Context, v domain.Voucher) (*domain.Voucher, error)
	ListVouchers(ctx context.Context, status string) ([]domain.Voucher, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
