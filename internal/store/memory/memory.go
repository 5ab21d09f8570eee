// Package memory is an in-memory Repository used by tests and by the server
// when no database path is configured.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tienda/pos/internal/domain"
	"tienda/pos/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	nextProductID   int64
	nextSaleID      int64
	productsByID    map[int64]*domain.Product
	sales           []domain.Sale
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		nextProductID:   1,
		nextSaleID:      1,
		productsByID:    make(map[int64]*domain.Product),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with the starter catalog, matching
// what a fresh database file gets.
func NewSeeded() *Store {
	s := New()
	stock := func(n int) *int { return &n }
	seed := []domain.Product{
		{Name: "Pan", Category: "Granos", Cost: decimal.NewFromInt(600), SalePrice: decimal.NewFromInt(1000), Stock: stock(20)},
		{Name: "Leche", Category: "Lácteos y Huevos", Cost: decimal.NewFromInt(2500), SalePrice: decimal.NewFromInt(3500), Stock: stock(20)},
		{Name: "Huevos", Category: "Lácteos y Huevos", Cost: decimal.NewFromInt(9000), SalePrice: decimal.NewFromInt(12000), Stock: stock(20)},
		{Name: "Café", Category: "Otros", Cost: decimal.NewFromInt(6000), SalePrice: decimal.NewFromInt(8000), Stock: stock(20)},
	}
	for i := range seed {
		p := seed[i]
		p.ID = s.nextProductID
		s.nextProductID++
		s.productsByID[p.ID] = &p
	}
	return s
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
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
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
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

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) UpsertProduct(_ context.Context, rec domain.ProductRecord) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID != 0 {
		existing, ok := s.productsByID[rec.ID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if other := s.findByNameLocked(rec.Name); other != nil && other.ID != rec.ID {
			return nil, fmt.Errorf("name %q already in use: %w", rec.Name, store.ErrValidation)
		}
		existing.Name = rec.Name
		existing.Category = rec.Category
		existing.Cost = rec.Cost
		existing.SalePrice = rec.SalePrice
		if rec.Stock != nil {
			stock := *rec.Stock
			existing.Stock = &stock
		}
		updated := *existing
		return &updated, nil
	}

	// Insert path: a name collision falls back to update-by-name, mirroring
	// the unique-constraint recovery in the SQL store.
	if existing := s.findByNameLocked(rec.Name); existing != nil {
		existing.Category = rec.Category
		existing.Cost = rec.Cost
		existing.SalePrice = rec.SalePrice
		if rec.Stock != nil {
			stock := *rec.Stock
			existing.Stock = &stock
		}
		updated := *existing
		return &updated, nil
	}

	created := domain.Product{
		ID:        s.nextProductID,
		Name:      rec.Name,
		Category:  rec.Category,
		Cost:      rec.Cost,
		SalePrice: rec.SalePrice,
	}
	if rec.Stock != nil {
		stock := *rec.Stock
		created.Stock = &stock
	}
	s.nextProductID++
	s.productsByID[created.ID] = &created
	result := created
	return &result, nil
}

func (s *Store) findByNameLocked(name string) *domain.Product {
	for _, p := range s.productsByID {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.productsByID, id)
	return nil
}

func (s *Store) FindProducts(_ context.Context, filter string, category string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(filter))
	out := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if category != "" && p.Category != category {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Category), needle) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.findByNameLocked(name)
	if p == nil {
		return nil, store.ErrNotFound
	}
	found := *p
	return &found, nil
}

func (s *Store) AdjustStock(_ context.Context, name string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findByNameLocked(name)
	if p == nil {
		return 0, store.ErrNotFound
	}
	current := 0
	if p.Stock != nil {
		current = *p.Stock
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	p.Stock = &next
	return next, nil
}

func (s *Store) SetStock(_ context.Context, name string, qty int) (int, error) {
	if qty < 0 {
		return 0, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findByNameLocked(name)
	if p == nil {
		return 0, store.ErrNotFound
	}
	stock := qty
	p.Stock = &stock
	return qty, nil
}

func (s *Store) FinalizeSale(_ context.Context, lines []domain.SaleLine, at time.Time) ([]domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	date := at.Format(domain.SaleDateLayout)
	sales := make([]domain.Sale, 0, len(lines))
	for _, line := range lines {
		sale := domain.Sale{
			ID:       s.nextSaleID,
			Product:  line.Product,
			Quantity: line.Quantity,
			Total:    line.Total(),
			Date:     date,
		}
		s.nextSaleID++
		s.sales = append(s.sales, sale)
		sales = append(sales, sale)

		// Product gone since cart-add: ledger row stands, stock step skipped.
		if p := s.findByNameLocked(line.Product); p != nil {
			current := 0
			if p.Stock != nil {
				current = *p.Stock
			}
			next := current - line.Quantity
			if next < 0 {
				next = 0
			}
			p.Stock = &next
		}
	}
	return sales, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, len(s.sales))
	copy(out, s.sales)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) SumTotalForDay(_ context.Context, day string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, sale := range s.sales {
		if strings.HasPrefix(sale.Date, day) {
			total = total.Add(sale.Total)
		}
	}
	return total, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("username %q already exists: %w", user.Username, store.ErrValidation)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
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
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
