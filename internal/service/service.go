package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"tienda/pos/internal/cache"
	"tienda/pos/internal/cart"
	"tienda/pos/internal/domain"
	"tienda/pos/internal/export"
	"tienda/pos/internal/money"
	"tienda/pos/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	carts        *cart.Registry
	catalogCache cache.CatalogCache
	cacheTTL     time.Duration
	exportPath   string
}

func New(repo store.Repository, catalogCache cache.CatalogCache, cacheTTL time.Duration, exportPath string) *Service {
	if catalogCache == nil {
		catalogCache = cache.NoopCatalogCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Second
	}
	if exportPath == "" {
		exportPath = "reporte_ventas.csv"
	}

	return &Service{
		repo:         repo,
		carts:        cart.NewRegistry(),
		catalogCache: catalogCache,
		cacheTTL:     cacheTTL,
		exportPath:   exportPath,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

// ---- catalog ----

func (s *Service) Categories() []string {
	return domain.DefaultCategories
}

// FindProducts serves the search-as-you-type filter and the inventory view.
// Results are cached for one refresh tick; a hit can therefore be stale by
// at most that interval, which the periodic refresh tolerates.
func (s *Service) FindProducts(ctx context.Context, filter string, category string) ([]domain.Product, error) {
	filter = strings.TrimSpace(filter)
	category = strings.TrimSpace(category)

	key := "catalog:" + filter + "|" + category
	if cached, ok, err := s.catalogCache.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache get failed: %v", err)
	}

	products, err := s.repo.FindProducts(ctx, filter, category)
	if err != nil {
		return nil, err
	}
	if err := s.catalogCache.Set(ctx, key, products, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: catalog cache set failed: %v", err)
	}
	return products, nil
}

func (s *Service) UpsertProduct(ctx context.Context, req domain.ProductUpsertRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("name is required: %w", store.ErrValidation)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = "Otros"
	}

	cost, err := money.ParseAmount("cost", req.Cost)
	if err != nil {
		return domain.Product{}, err
	}
	salePrice, err := money.ParseAmount("sale_price", req.SalePrice)
	if err != nil {
		return domain.Product{}, err
	}
	if req.Stock != nil && *req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}

	saved, err := s.repo.UpsertProduct(ctx, domain.ProductRecord{
		ID:        req.ID,
		Name:      name,
		Category:  category,
		Cost:      cost,
		SalePrice: salePrice,
		Stock:     req.Stock,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if id <= 0 {
		return fmt.Errorf("product id is required: %w", store.ErrValidation)
	}
	return s.repo.DeleteProduct(ctx, id)
}

// ---- cart sessions ----

func (s *Service) OpenCart() domain.CartSummary {
	id := s.carts.Open()
	return domain.CartSummary{CartID: id, Lines: []domain.CartLineView{}}
}

func (s *Service) cartByID(id string) (*cart.Cart, error) {
	c, ok := s.carts.Get(id)
	if !ok {
		return nil, fmt.Errorf("cart session %q: %w", id, store.ErrNotFound)
	}
	return c, nil
}

func (s *Service) CartSummary(cartID string) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	return summarize(cartID, c), nil
}

// AddToCart snapshots the product's current sale price into the cart. The
// snapshot governs the eventual sale even if the catalog price changes
// while the cart stays open.
func (s *Service) AddToCart(ctx context.Context, cartID string, name string, qty int) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return domain.CartSummary{}, fmt.Errorf("product name is required: %w", store.ErrValidation)
	}

	product, err := s.repo.GetProductByName(ctx, name)
	if err != nil {
		return domain.CartSummary{}, err
	}

	c.Add(product.Name, product.SalePrice, qty)
	return summarize(cartID, c), nil
}

func (s *Service) IncrementItem(cartID string, name string) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	if !c.Increment(name) {
		return domain.CartSummary{}, fmt.Errorf("product %q not in cart: %w", name, store.ErrNotFound)
	}
	return summarize(cartID, c), nil
}

func (s *Service) DecrementItem(cartID string, name string) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	if !c.Decrement(name) {
		return domain.CartSummary{}, fmt.Errorf("product %q not in cart: %w", name, store.ErrNotFound)
	}
	return summarize(cartID, c), nil
}

func (s *Service) RemoveItem(cartID string, name string) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	c.Remove(name)
	return summarize(cartID, c), nil
}

func (s *Service) ClearCart(cartID string) (domain.CartSummary, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.CartSummary{}, err
	}
	c.Clear()
	return summarize(cartID, c), nil
}

// CloseCart voids the session entirely. Anything still in the cart is
// discarded; nothing reaches the ledger.
func (s *Service) CloseCart(cartID string) error {
	if _, err := s.cartByID(cartID); err != nil {
		return err
	}
	s.carts.Close(cartID)
	return nil
}

func summarize(cartID string, c *cart.Cart) domain.CartSummary {
	lines := c.Lines()
	views := make([]domain.CartLineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, domain.CartLineView{
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
		})
	}
	return domain.CartSummary{CartID: cartID, Lines: views, Total: c.Total()}
}

// ---- sale finalize ----

// FinalizeSale converts the cart into ledger rows and stock decrements. The
// cart is cleared only after the repository commits, so a storage failure
// leaves it intact for retry.
func (s *Service) FinalizeSale(ctx context.Context, cartID string) (domain.FinalizeResponse, error) {
	c, err := s.cartByID(cartID)
	if err != nil {
		return domain.FinalizeResponse{}, err
	}

	lines := c.Lines()
	if len(lines) == 0 {
		return domain.FinalizeResponse{}, store.ErrEmptyCart
	}

	saleLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		saleLines = append(saleLines, domain.SaleLine{
			Product:   line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	sales, err := s.repo.FinalizeSale(ctx, saleLines, time.Now())
	if err != nil {
		return domain.FinalizeResponse{}, err
	}
	c.Clear()

	resp := domain.FinalizeResponse{Sales: sales}
	for _, sale := range sales {
		resp.Total = resp.Total.Add(sale.Total)
	}
	return resp, nil
}

// ---- inventory ----

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.StockResponse{}, fmt.Errorf("product name is required: %w", store.ErrValidation)
	}
	stock, err := s.repo.AdjustStock(ctx, name, req.Delta)
	if err != nil {
		return domain.StockResponse{}, err
	}
	return domain.StockResponse{Name: name, Stock: stock}, nil
}

func (s *Service) SetStock(ctx context.Context, req domain.StockSetRequest) (domain.StockResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockResponse{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.StockResponse{}, fmt.Errorf("product name is required: %w", store.ErrValidation)
	}
	if req.Qty < 0 {
		return domain.StockResponse{}, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}
	stock, err := s.repo.SetStock(ctx, name, req.Qty)
	if err != nil {
		return domain.StockResponse{}, err
	}
	return domain.StockResponse{Name: name, Stock: stock}, nil
}

// ---- ledger reporting ----

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// DailyTotal aggregates the ledger for one calendar day; an empty date means
// today. A day with no sales totals exactly zero.
func (s *Service) DailyTotal(ctx context.Context, date string) (domain.DailyTotal, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().Format(domain.DayLayout)
	} else if _, err := time.Parse(domain.DayLayout, date); err != nil {
		return domain.DailyTotal{}, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrValidation)
	}

	total, err := s.repo.SumTotalForDay(ctx, date)
	if err != nil {
		return domain.DailyTotal{}, err
	}
	return domain.DailyTotal{Date: date, Total: total}, nil
}

func (s *Service) ExportSales(ctx context.Context) (domain.ExportResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ExportResponse{}, err
	}

	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.ExportResponse{}, err
	}
	if err := export.WriteSales(s.exportPath, sales); err != nil {
		return domain.ExportResponse{}, fmt.Errorf("write export: %w", err)
	}

	log.Printf("[service] exported %d ledger rows to %s", len(sales), s.exportPath)
	return domain.ExportResponse{Path: s.exportPath, Rows: len(sales)}, nil
}
