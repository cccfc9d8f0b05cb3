package purchasing

import (
	"fmt"
	"sync"
)

// Platform identifies the distribution channel the process is running on.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWindows Platform = "windows"
)

// ProductKind determines what happens to a product after a successful purchase.
type ProductKind string

const (
	Consumable    ProductKind = "consumable"
	NonConsumable ProductKind = "non_consumable"
	Subscription  ProductKind = "subscription"
)

// ProductStatus is the live purchase status of a catalog product.
type ProductStatus string

const (
	StatusNone      ProductStatus = "none"      // not available for purchase
	StatusReady     ProductStatus = "ready"     // available for purchase
	StatusPending   ProductStatus = "pending"   // purchase awaiting store resolution
	StatusPurchased ProductStatus = "purchased" // owned (non-consumable / subscription)
)

// Price carries the store-supplied price data. The value is kept as the store
// delivers it, no money arithmetic is performed on it.
type Price struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

// ProductDef declares a purchasable product for catalog construction.
// StoreIDs optionally overrides the store-facing identifier per platform,
// otherwise the application id is used as-is.
type ProductDef struct {
	ID       string              `json:"id"`
	Kind     ProductKind         `json:"kind"`
	StoreIDs map[Platform]string `json:"store_ids,omitempty"`
}

// StoreIDResolver maps a product definition to its store-facing identifier for
// a platform. It must be a pure function: the result is fixed at catalog build
// and never re-resolved during a session.
type StoreIDResolver func(Platform, ProductDef) string

// DefaultStoreIDResolver uses the per-platform override when declared and
// falls back to the application id.
func DefaultStoreIDResolver(platform Platform, def ProductDef) string {
	if id, ok := def.StoreIDs[platform]; ok && id != "" {
		return id
	}
	return def.ID
}

// Product is a purchasable catalog item. Identity fields are immutable after
// construction; price and status are mutated only by the orchestrator in
// response to store sync or transaction resolution.
type Product struct {
	id      string
	kind    ProductKind
	storeID string

	mu     sync.RWMutex
	price  Price
	status ProductStatus
}

func (p *Product) ID() string        { return p.id }
func (p *Product) Kind() ProductKind { return p.kind }
func (p *Product) StoreID() string   { return p.storeID }

func (p *Product) Price() Price {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price
}

func (p *Product) Status() ProductStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Product) setPrice(price Price) {
	p.mu.Lock()
	p.price = price
	p.mu.Unlock()
}

func (p *Product) setStatus(status ProductStatus) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

// Catalog is the fixed set of purchasable products for a session. The product
// set is immutable after construction; only per-product price and status move.
type Catalog struct {
	products  []*Product
	byID      map[string]*Product
	byStoreID map[string]*Product
}

// NewCatalog builds a catalog for the given platform, resolving each product's
// store id exactly once. Duplicate application ids or resolved store ids are
// construction errors.
func NewCatalog(platform Platform, resolver StoreIDResolver, defs []ProductDef) (*Catalog, error) {
	if resolver == nil {
		resolver = DefaultStoreIDResolver
	}

	c := &Catalog{
		byID:      make(map[string]*Product, len(defs)),
		byStoreID: make(map[string]*Product, len(defs)),
	}

	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("product with empty id")
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate product id %q", def.ID)
		}

		storeID := resolver(platform, def)
		if storeID == "" {
			return nil, fmt.Errorf("product %q resolved to empty store id", def.ID)
		}
		if other, exists := c.byStoreID[storeID]; exists {
			return nil, fmt.Errorf("products %q and %q resolve to the same store id %q", other.id, def.ID, storeID)
		}

		p := &Product{
			id:      def.ID,
			kind:    def.Kind,
			storeID: storeID,
			status:  StatusNone,
		}
		c.products = append(c.products, p)
		c.byID[def.ID] = p
		c.byStoreID[storeID] = p
	}

	return c, nil
}

// Resolve looks a product up by application id.
func (c *Catalog) Resolve(id string) (*Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ResolveByStoreID looks a product up by its store-facing identifier.
func (c *Catalog) ResolveByStoreID(storeID string) (*Product, bool) {
	p, ok := c.byStoreID[storeID]
	return p, ok
}

// Products returns the catalog products in declaration order. The slice is a
// copy; product status reflects the current, possibly stale, state.
func (c *Catalog) Products() []*Product {
	out := make([]*Product, len(c.products))
	copy(out, c.products)
	return out
}

// SyncFromStore applies store metadata to the matching product. Price is set
// unconditionally. Status precedence: unavailable wins over everything, then a
// deferred receipt marks the product pending, a settled receipt marks it
// purchased, otherwise the product is ready for purchase.
func (c *Catalog) SyncFromStore(meta ProductMetadata) bool {
	p, ok := c.byStoreID[meta.StoreID]
	if !ok {
		return false
	}

	p.setPrice(Price{
		Value:    meta.LocalizedPrice,
		Currency: meta.CurrencyCode,
		Display:  meta.DisplayPrice,
	})

	switch {
	case !meta.AvailableToPurchase:
		p.setStatus(StatusNone)
	case meta.HasReceipt && meta.ReceiptDeferred:
		p.setStatus(StatusPending)
	case meta.HasReceipt:
		p.setStatus(StatusPurchased)
	default:
		p.setStatus(StatusReady)
	}

	return true
}
