package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog row. Stock is a pointer because databases created
// before the stock column existed carry NULL there; callers treat nil as
// "unknown" rather than zero.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Cost      decimal.Decimal `json:"cost"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Stock     *int            `json:"stock"`
}

// ProductUpsertRequest carries the catalog entry/edit form fields. Cost and
// SalePrice arrive as raw strings so validation happens server-side.
type ProductUpsertRequest struct {
	ID        int64  `json:"id,omitempty"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Cost      string `json:"cost"`
	SalePrice string `json:"sale_price"`
	Stock     *int   `json:"stock,omitempty"`
}

// ProductRecord is the validated form of ProductUpsertRequest handed to the
// repository.
type ProductRecord struct {
	ID        int64
	Name      string
	Category  string
	Cost      decimal.Decimal
	SalePrice decimal.Decimal
	Stock     *int
}

// Sale is one immutable ledger row. Product carries the name, not a foreign
// key, so the row survives later deletion or rename of the product.
type Sale struct {
	ID       int64           `json:"id"`
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
	Date     string          `json:"date"`
}

// SaleLine is a pending ledger row derived from one cart entry.
type SaleLine struct {
	Product   string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l SaleLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CartAddRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity,omitempty"`
}

type CartItemRequest struct {
	Name string `json:"name"`
}

type CartLineView struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartSummary struct {
	CartID string          `json:"cart_id"`
	Lines  []CartLineView  `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

type FinalizeResponse struct {
	Sales []Sale          `json:"sales"`
	Total decimal.Decimal `json:"total"`
}

type StockAdjustRequest struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

type StockSetRequest struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

type StockResponse struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

type DailyTotal struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
}

type ExportResponse struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// DefaultCategories seeds the UI category selector. The set is extensible:
// the catalog accepts any non-empty category and search reflects whatever
// the database actually holds.
var DefaultCategories = []string{
	"Verduras y Frutas",
	"Lácteos y Huevos",
	"Carnes y Embutidos",
	"Aseo",
	"Gaseosa",
	"Licores",
	"Granos",
	"Otros",
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// SaleDateLayout is the ledger timestamp format. Daily aggregation matches
// on the leading date segment, so legacy date-only rows still count.
const SaleDateLayout = "2006-01-02 15:04:05"

const DayLayout = "2006-01-02"
