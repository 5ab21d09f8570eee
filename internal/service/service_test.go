package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tienda/pos/internal/domain"
	"tienda/pos/internal/export"
	"tienda/pos/internal/store"
	"tienda/pos/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	exportPath := filepath.Join(t.TempDir(), "reporte_ventas.csv")
	return New(memory.NewSeeded(), nil, 0, exportPath)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func TestFinalizeSaleWritesLedgerDecrementsStockAndClearsCart(t *testing.T) {
	svc := newTestService(t)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 2); err != nil {
		t.Fatalf("add Pan failed: %v", err)
	}
	if _, err := svc.AddToCart(ctx, cartID, "Leche", 1); err != nil {
		t.Fatalf("add Leche failed: %v", err)
	}

	resp, err := svc.FinalizeSale(ctx, cartID)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if len(resp.Sales) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(resp.Sales))
	}
	if !resp.Total.Equal(decimal.NewFromInt(5500)) {
		t.Fatalf("expected total 5500, got %s", resp.Total)
	}

	totals := map[string]decimal.Decimal{}
	for _, sale := range resp.Sales {
		totals[sale.Product] = sale.Total
	}
	if !totals["Pan"].Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("expected Pan total 2000, got %s", totals["Pan"])
	}
	if !totals["Leche"].Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("expected Leche total 3500, got %s", totals["Leche"])
	}

	products, err := svc.FindProducts(ctx, "", "")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	stocks := map[string]int{}
	for _, p := range products {
		if p.Stock != nil {
			stocks[p.Name] = *p.Stock
		}
	}
	if stocks["Pan"] != 18 || stocks["Leche"] != 19 {
		t.Fatalf("expected Pan 18 and Leche 19, got %v", stocks)
	}

	summary, err := svc.CartSummary(cartID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(summary.Lines) != 0 || !summary.Total.IsZero() {
		t.Fatalf("expected cart cleared after finalize, got %+v", summary)
	}
}

// failingRepo fails every sale write, standing in for a storage fault.
type failingRepo struct {
	*memory.Store
}

func (failingRepo) FinalizeSale(_ context.Context, _ []domain.SaleLine, _ time.Time) ([]domain.Sale, error) {
	return nil, errors.New("disk I/O error")
}

func TestFinalizeFailureLeavesCartIntact(t *testing.T) {
	exportPath := filepath.Join(t.TempDir(), "reporte_ventas.csv")
	svc := New(failingRepo{memory.NewSeeded()}, nil, 0, exportPath)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 2); err != nil {
		t.Fatalf("add Pan failed: %v", err)
	}
	if _, err := svc.AddToCart(ctx, cartID, "Leche", 1); err != nil {
		t.Fatalf("add Leche failed: %v", err)
	}

	if _, err := svc.FinalizeSale(ctx, cartID); err == nil {
		t.Fatal("expected finalize to surface the storage error")
	}

	summary, err := svc.CartSummary(cartID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if len(summary.Lines) != 2 {
		t.Fatalf("expected both lines kept for retry, got %+v", summary.Lines)
	}
	if !summary.Total.Equal(decimal.NewFromInt(5500)) {
		t.Fatalf("expected total 5500 kept for retry, got %s", summary.Total)
	}
}

func TestFinalizeEmptyCart(t *testing.T) {
	svc := newTestService(t)

	cartID := svc.OpenCart().CartID
	if _, err := svc.FinalizeSale(cashierCtx(), cartID); !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestFinalizeUnknownCart(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.FinalizeSale(cashierCtx(), "no-such-session"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// A product deleted between cart-add and finalize still produces its ledger
// row; only the stock decrement is skipped.
func TestFinalizeAfterProductDeleted(t *testing.T) {
	svc := newTestService(t)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	products, err := svc.FindProducts(ctx, "Pan", "")
	if err != nil || len(products) != 1 {
		t.Fatalf("expected to find Pan: %v %v", products, err)
	}
	if err := svc.DeleteProduct(adminCtx(), products[0].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	resp, err := svc.FinalizeSale(ctx, cartID)
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if len(resp.Sales) != 1 || resp.Sales[0].Product != "Pan" {
		t.Fatalf("expected ledger row for Pan, got %v", resp.Sales)
	}
}

func TestCartPriceSnapshotSurvivesCatalogChange(t *testing.T) {
	svc := newTestService(t)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if _, err := svc.UpsertProduct(adminCtx(), domain.ProductUpsertRequest{
		Name: "Pan", Category: "Granos", Cost: "600", SalePrice: "1500",
	}); err != nil {
		t.Fatalf("reprice failed: %v", err)
	}

	summary, err := svc.CartSummary(cartID)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !summary.Total.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected snapshotted price 1000, got %s", summary.Total)
	}
}

func TestCloseCartVoidsSession(t *testing.T) {
	svc := newTestService(t)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := svc.CloseCart(cartID); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := svc.CartSummary(cartID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected closed session to be gone, got %v", err)
	}
	if err := svc.CloseCart(cartID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound closing twice, got %v", err)
	}

	// Nothing abandoned in the cart reached the ledger.
	sales, err := svc.ListSales(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected empty ledger, got %d rows", len(sales))
	}
}

func TestUpsertProductValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := adminCtx()

	cases := []struct {
		name string
		req  domain.ProductUpsertRequest
	}{
		{"blank name", domain.ProductUpsertRequest{Name: "  ", Cost: "1", SalePrice: "2"}},
		{"bad price", domain.ProductUpsertRequest{Name: "Azúcar", Cost: "1", SalePrice: "abc"}},
		{"negative cost", domain.ProductUpsertRequest{Name: "Azúcar", Cost: "-1", SalePrice: "2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.UpsertProduct(ctx, tc.req); !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUpsertProductDefaultsCategory(t *testing.T) {
	svc := newTestService(t)

	saved, err := svc.UpsertProduct(adminCtx(), domain.ProductUpsertRequest{
		Name: "Azúcar", Cost: "1500", SalePrice: "2200",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if saved.Category != "Otros" {
		t.Fatalf("expected default category Otros, got %q", saved.Category)
	}
}

func TestUpsertProductRequiresAdmin(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpsertProduct(cashierCtx(), domain.ProductUpsertRequest{
		Name: "Azúcar", Cost: "1", SalePrice: "2",
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin role error, got %v", err)
	}
}

func TestAdjustStockFloorsAtZero(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.AdjustStock(cashierCtx(), domain.StockAdjustRequest{Name: "Pan", Delta: -100})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if resp.Stock != 0 {
		t.Fatalf("expected floor at 0, got %d", resp.Stock)
	}
}

func TestSetStockRequiresAdmin(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.SetStock(cashierCtx(), domain.StockSetRequest{Name: "Pan", Qty: 5}); err == nil {
		t.Fatal("expected admin role error")
	}
	resp, err := svc.SetStock(adminCtx(), domain.StockSetRequest{Name: "Pan", Qty: 5})
	if err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if resp.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", resp.Stock)
	}
}

func TestDailyTotalWithoutSalesIsZero(t *testing.T) {
	svc := newTestService(t)

	total, err := svc.DailyTotal(cashierCtx(), "1999-01-01")
	if err != nil {
		t.Fatalf("daily total failed: %v", err)
	}
	if !total.Total.IsZero() {
		t.Fatalf("expected zero total, got %s", total.Total)
	}

	if _, err := svc.DailyTotal(cashierCtx(), "01/02/1999"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for bad date, got %v", err)
	}
}

func TestExportSalesWritesEveryLedgerRow(t *testing.T) {
	svc := newTestService(t)
	ctx := cashierCtx()

	cartID := svc.OpenCart().CartID
	if _, err := svc.AddToCart(ctx, cartID, "Pan", 2); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.AddToCart(ctx, cartID, "Café", 1); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := svc.FinalizeSale(ctx, cartID); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if _, err := svc.ExportSales(cashierCtx()); err == nil {
		t.Fatal("expected admin role error for cashier export")
	}

	resp, err := svc.ExportSales(adminCtx())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if resp.Rows != 2 {
		t.Fatalf("expected 2 exported rows, got %d", resp.Rows)
	}

	rows, err := export.ReadSales(resp.Path)
	if err != nil {
		t.Fatalf("read export failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows in file, got %d", len(rows))
	}
}
