package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tienda/pos/internal/domain"
)

var (
	// ErrNotFound means the referenced product name or id does not exist
	// at operation time.
	ErrNotFound = errors.New("not found")
	// ErrValidation means malformed user input: non-numeric or negative
	// price/cost, empty required field, negative stock set.
	ErrValidation = errors.New("invalid input")
	// ErrEmptyCart means finalize was attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
)

type Repository interface {
	UpsertProduct(ctx context.Context, rec domain.ProductRecord) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	FindProducts(ctx context.Context, filter string, category string) ([]domain.Product, error)
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)

	AdjustStock(ctx context.Context, name string, delta int) (int, error)
	SetStock(ctx context.Context, name string, qty int) (int, error)

	// FinalizeSale writes one ledger row per line and decrements matching
	// product stock, floored at zero, as a single atomic unit. A line whose
	// product no longer exists still gets its ledger row; the stock step is
	// skipped for it. On error nothing is committed.
	FinalizeSale(ctx context.Context, lines []domain.SaleLine, at time.Time) ([]domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	SumTotalForDay(ctx context.Context, day string) (decimal.Decimal, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
