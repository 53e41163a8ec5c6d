package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/wearline/storefront/core/product"
)

type State int

const (
	Uninitialized State = iota
	Syncing
	Ready
)

// Store is the server side of a cart session: the request/response API
// backing the authoritative cart record.
type Store interface {
	Fetch(ctx context.Context) ([]Item, error)
	Add(ctx context.Context, item ItemNew) error
	Update(ctx context.Context, item ItemNew) error
	Remove(ctx context.Context, productID string) error
}

// Catalog resolves product ids to display data for cart entries.
type Catalog interface {
	Product(ctx context.Context, id string) (product.Product, error)
}

// ViewItem is a cart entry enriched with denormalized product fields.
type ViewItem struct {
	Product  product.Product
	Quantity int
}

// Session mirrors one user's cart record for the duration of a sign-in.
// It is not authoritative: mutations apply locally first, then hit the
// store, and any store failure triggers a re-fetch of the record so the
// local view never silently diverges. A Session is safe for concurrent use
// and is passed explicitly to whoever needs cart access.
type Session struct {
	store   Store
	catalog Catalog

	mu      sync.Mutex
	state   State
	visible bool
	items   []ViewItem
}

func NewSession(store Store, catalog Catalog) *Session {
	return &Session{
		store:   store,
		catalog: catalog,
	}
}

// Init hydrates the session from the cart record. It runs once per
// session: calls after a successful init are no-ops.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		return nil
	}

	s.state = Syncing
	if err := s.refresh(ctx); err != nil {
		s.state = Uninitialized
		return fmt.Errorf("initializing cart session: %w", err)
	}

	s.state = Ready
	return nil
}

// AddItem puts quantity units of a product in the cart. An entry for the
// same product is merged by summing quantities.
func (s *Session) AddItem(ctx context.Context, prd product.Product, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}

	merged := false
	for i := range s.items {
		if s.items[i].Product.ID == prd.ID {
			s.items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, ViewItem{Product: prd, Quantity: quantity})
	}

	if err := s.store.Add(ctx, ItemNew{ProductID: prd.ID, Quantity: quantity}); err != nil {
		return s.reconcile(ctx, err)
	}

	return nil
}

// RemoveItem drops the entry matching the product id.
func (s *Session) RemoveItem(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, it := range s.items {
		if it.Product.ID != productID {
			kept = append(kept, it)
		}
	}
	s.items = kept

	if err := s.store.Remove(ctx, productID); err != nil {
		return s.reconcile(ctx, err)
	}

	return nil
}

// IncreaseQuantity bumps the entry's quantity by one. Once the quantity
// reaches the product's availability it is a no-op.
func (s *Session) IncreaseQuantity(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.find(productID)
	if it == nil || it.Quantity >= it.Product.Available {
		return nil
	}

	it.Quantity++

	if err := s.store.Update(ctx, ItemNew{ProductID: productID, Quantity: it.Quantity}); err != nil {
		return s.reconcile(ctx, err)
	}

	return nil
}

// DecreaseQuantity lowers the entry's quantity by one. At quantity 1 it is
// a no-op: removal is a separate explicit action.
func (s *Session) DecreaseQuantity(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.find(productID)
	if it == nil || it.Quantity <= 1 {
		return nil
	}

	it.Quantity--

	if err := s.store.Update(ctx, ItemNew{ProductID: productID, Quantity: it.Quantity}); err != nil {
		return s.reconcile(ctx, err)
	}

	return nil
}

func (s *Session) Items() []ViewItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]ViewItem, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open and Close toggle cart visibility; the flag is independent of the
// cart's content state.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = true
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = false
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Session) find(productID string) *ViewItem {
	for i := range s.items {
		if s.items[i].Product.ID == productID {
			return &s.items[i]
		}
	}
	return nil
}

// reconcile replaces the optimistic local state with the authoritative
// record after a failed store call. The original failure is returned; the
// re-fetch is reported only if it fails too. Callers must hold the lock.
func (s *Session) reconcile(ctx context.Context, cause error) error {
	if err := s.refresh(ctx); err != nil {
		return fmt.Errorf("reconciling cart after %q: %w", cause, err)
	}
	return cause
}

func (s *Session) refresh(ctx context.Context) error {
	raw, err := s.store.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching cart record: %w", err)
	}

	items := make([]ViewItem, 0, len(raw))
	for _, it := range raw {
		prd, err := s.catalog.Product(ctx, it.ProductID)
		if err != nil {
			return fmt.Errorf("resolving product[%s]: %w", it.ProductID, err)
		}
		items = append(items, ViewItem{Product: prd, Quantity: it.Quantity})
	}

	s.items = items
	return nil
}
