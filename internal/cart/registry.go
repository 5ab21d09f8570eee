package cart

import (
	"sync"

	"github.com/google/uuid"
)

// Registry owns the live carts, one per UI session.
type Registry struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[string]*Cart)}
}

// Open creates a fresh cart and returns its session id.
func (r *Registry) Open() string {
	id := uuid.NewString()
	r.mu.Lock()
	r.carts[id] = New()
	r.mu.Unlock()
	return id
}

// Get returns the cart for id, or false when the session is unknown.
func (r *Registry) Get(id string) (*Cart, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[id]
	return c, ok
}

// Close voids the session. The cart itself is simply dropped; nothing about
// an abandoned cart is persisted.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	delete(r.carts, id)
	r.mu.Unlock()
}
