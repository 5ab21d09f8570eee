// Package cart holds the in-memory, per-session sale aggregation. A Cart is
// owned by exactly one session; the Registry hands out and tracks instances.
package cart

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Line is one cart entry. UnitPrice is the catalog price captured when the
// product was added; later catalog edits do not touch an open cart.
type Line struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Cart struct {
	mu    sync.Mutex
	lines map[string]*Line
}

func New() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

// Add merges qty into an existing entry for name, or inserts a new entry
// with the given price snapshot. qty below 1 defaults to 1.
func (c *Cart) Add(name string, unitPrice decimal.Decimal, qty int) {
	if qty < 1 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if line, ok := c.lines[name]; ok {
		line.Quantity += qty
		return
	}
	c.lines[name] = &Line{Name: name, UnitPrice: unitPrice, Quantity: qty}
}

// Increment adds one to the entry for name. Returns false when the name is
// not in the cart.
func (c *Cart) Increment(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, ok := c.lines[name]
	if !ok {
		return false
	}
	line.Quantity++
	return true
}

// Decrement subtracts one from the entry for name, removing it entirely when
// the quantity would drop to zero or below. Returns false when the name is
// not in the cart.
func (c *Cart) Decrement(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, ok := c.lines[name]
	if !ok {
		return false
	}
	line.Quantity--
	if line.Quantity <= 0 {
		delete(c.lines, name)
	}
	return true
}

func (c *Cart) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lines, name)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]*Line)
}

func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}

// Total is the sum of quantity times unit price over all entries, exactly
// zero for an empty cart.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Lines returns a snapshot of the entries ordered by name.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, 0, len(c.lines))
	for _, line := range c.lines {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
