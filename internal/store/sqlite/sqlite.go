// Package sqlite persists the catalog and the sales ledger in a single
// local database file, compatible with databases created by older versions
// of the application.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"tienda/pos/internal/domain"
	"tienda/pos/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// One connection: the store is single-process and SQLite allows a single
	// writer anyway, so this avoids SQLITE_BUSY churn entirely.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate brings any pre-existing schema up to the current shape. All steps
// are additive and idempotent: tables are created if absent and missing
// columns are probed for before being added, so a database file written by
// an older release opens unchanged.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS productos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nombre TEXT UNIQUE NOT NULL,
			precio REAL NOT NULL DEFAULT 0,
			costo REAL NOT NULL DEFAULT 0,
			categoria TEXT NOT NULL DEFAULT 'Otros',
			precio_venta REAL,
			stock INTEGER
		)
	`); err != nil {
		return err
	}

	cols, err := s.tableColumns(ctx, "productos")
	if err != nil {
		return err
	}
	additions := []struct {
		name string
		ddl  string
	}{
		{"costo", `ALTER TABLE productos ADD COLUMN costo REAL NOT NULL DEFAULT 0`},
		{"categoria", `ALTER TABLE productos ADD COLUMN categoria TEXT NOT NULL DEFAULT 'Otros'`},
		{"precio_venta", `ALTER TABLE productos ADD COLUMN precio_venta REAL`},
		{"stock", `ALTER TABLE productos ADD COLUMN stock INTEGER`},
	}
	for _, add := range additions {
		if cols[add.name] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, add.ddl); err != nil {
			return err
		}
	}

	// Oldest databases declared nombre without UNIQUE; the upsert fallback
	// depends on the constraint existing.
	if _, err := s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_productos_nombre ON productos(nombre)
	`); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ventas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			producto TEXT NOT NULL,
			cantidad INTEGER NOT NULL,
			total REAL NOT NULL,
			fecha TEXT NOT NULL
		)
	`); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS usuarios (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// seed inserts the starter catalog into an empty database, like the very
// first release of the application did.
func (s *Store) seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM productos`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []struct {
		name     string
		category string
		cost     float64
		price    float64
		stock    int
	}{
		{"Pan", "Granos", 600, 1000, 20},
		{"Leche", "Lácteos y Huevos", 2500, 3500, 20},
		{"Huevos", "Lácteos y Huevos", 9000, 12000, 20},
		{"Café", "Otros", 6000, 8000, 20},
	}
	for _, p := range seed {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO productos (nombre, categoria, costo, precio, precio_venta, stock)
			VALUES (?,?,?,?,?,?)
		`, p.name, p.category, p.cost, p.price, p.price, p.stock)
		if err != nil {
			return err
		}
	}
	return nil
}

// productColumns selects the display price as COALESCE(precio_venta, precio)
// so rows written by any schema generation resolve to one price.
const productColumns = `id, nombre, categoria, COALESCE(costo, 0), COALESCE(precio_venta, precio), stock`

func scanProduct(scan func(dest ...any) error) (*domain.Product, error) {
	var (
		p     domain.Product
		cost  float64
		price float64
		stock sql.NullInt64
	)
	if err := scan(&p.ID, &p.Name, &p.Category, &cost, &price, &stock); err != nil {
		return nil, err
	}
	p.Cost = decimal.NewFromFloat(cost)
	p.SalePrice = decimal.NewFromFloat(price)
	if stock.Valid {
		v := int(stock.Int64)
		p.Stock = &v
	}
	return &p, nil
}

func (s *Store) UpsertProduct(ctx context.Context, rec domain.ProductRecord) (*domain.Product, error) {
	cost := rec.Cost.InexactFloat64()
	price := rec.SalePrice.InexactFloat64()
	var stock any
	if rec.Stock != nil {
		stock = *rec.Stock
	}

	if rec.ID != 0 {
		// Both price columns get the same value so either read path stays
		// consistent; a nil stock leaves the stored quantity untouched.
		res, err := s.db.ExecContext(ctx, `
			UPDATE productos
			SET nombre = ?, categoria = ?, costo = ?, precio = ?, precio_venta = ?,
			    stock = COALESCE(?, stock)
			WHERE id = ?
		`, rec.Name, rec.Category, cost, price, price, stock, rec.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("name %q already in use: %w", rec.Name, store.ErrValidation)
			}
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
		return s.getByID(ctx, rec.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO productos (nombre, categoria, costo, precio, precio_venta, stock)
		VALUES (?,?,?,?,?,?)
	`, rec.Name, rec.Category, cost, price, price, stock)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		// Name already taken: recover by updating that row in place.
		_, err = s.db.ExecContext(ctx, `
			UPDATE productos
			SET categoria = ?, costo = ?, precio = ?, precio_venta = ?,
			    stock = COALESCE(?, stock)
			WHERE nombre = ?
		`, rec.Category, cost, price, price, stock, rec.Name)
		if err != nil {
			return nil, err
		}
	}

	return s.GetProductByName(ctx, rec.Name)
}

func (s *Store) getByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM productos WHERE id = ?`, id)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	// Deleting an id that does not exist is a no-op, not an error.
	_, err := s.db.ExecContext(ctx, `DELETE FROM productos WHERE id = ?`, id)
	return err
}

func (s *Store) FindProducts(ctx context.Context, filter string, category string) ([]domain.Product, error) {
	like := "%" + filter + "%"
	query := `SELECT ` + productColumns + ` FROM productos WHERE (nombre LIKE ? OR categoria LIKE ?)`
	args := []any{like, like}
	if category != "" {
		query += ` AND categoria = ?`
		args = append(args, category)
	}
	query += ` ORDER BY nombre ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM productos WHERE nombre = ?`, name)
	p, err := scanProduct(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

func (s *Store) AdjustStock(ctx context.Context, name string, delta int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE productos SET stock = MAX(COALESCE(stock, 0) + ?, 0) WHERE nombre = ?
	`, delta, name)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, store.ErrNotFound
	}
	return s.currentStock(ctx, name)
}

func (s *Store) SetStock(ctx context.Context, name string, qty int) (int, error) {
	if qty < 0 {
		return 0, fmt.Errorf("stock must not be negative: %w", store.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE productos SET stock = ? WHERE nombre = ?`, qty, name)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, store.ErrNotFound
	}
	return qty, nil
}

func (s *Store) currentStock(ctx context.Context, name string) (int, error) {
	var stock int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(stock, 0) FROM productos WHERE nombre = ?
	`, name).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return stock, err
}

// FinalizeSale writes the ledger rows and the stock decrements in one
// transaction. The decrement recomputes from the stored quantity, never from
// a value read earlier, and a missing product only skips its stock step.
func (s *Store) FinalizeSale(ctx context.Context, lines []domain.SaleLine, at time.Time) ([]domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	date := at.Format(domain.SaleDateLayout)
	sales := make([]domain.Sale, 0, len(lines))
	for _, line := range lines {
		total := line.Total()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ventas (producto, cantidad, total, fecha) VALUES (?,?,?,?)
		`, line.Product, line.Quantity, total.InexactFloat64(), date)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		sales = append(sales, domain.Sale{
			ID:       id,
			Product:  line.Product,
			Quantity: line.Quantity,
			Total:    total,
			Date:     date,
		})

		if _, err := tx.ExecContext(ctx, `
			UPDATE productos SET stock = MAX(COALESCE(stock, 0) - ?, 0) WHERE nombre = ?
		`, line.Quantity, line.Product); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, producto, cantidad, total, fecha
		FROM ventas
		ORDER BY fecha DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		var (
			sale  domain.Sale
			total float64
		)
		if err := rows.Scan(&sale.ID, &sale.Product, &sale.Quantity, &total, &sale.Date); err != nil {
			return nil, err
		}
		sale.Total = decimal.NewFromFloat(total)
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) SumTotalForDay(ctx context.Context, day string) (decimal.Decimal, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total), 0) FROM ventas WHERE substr(fecha, 1, 10) = ?
	`, day).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(total), nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usuarios (username, password, role, active, created_at)
		VALUES (?,?,?,?,?)
	`, user.Username, user.Password, user.Role, boolToInt(user.Active), user.CreatedAt.Format(time.RFC3339))
	if isUniqueViolation(err) {
		return fmt.Errorf("username %q already exists: %w", user.Username, store.ErrValidation)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM usuarios ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var (
			u       domain.UserAccount
			active  int
			created string
		)
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &active, &created); err != nil {
			return nil, err
		}
		u.Active = active != 0
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			u.CreatedAt = t
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usuarios SET password = ? WHERE username = ?
	`, password, username)
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
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
