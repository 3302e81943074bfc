package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one (user, product, quantity) row.
// At most one line exists per (user, product); the store's unique index guards it.
type CartLine struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_items_user_product"`
	ProductID string    `json:"product_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_items_user_product"`
	Quantity  int       `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the row name the storefront's data service uses.
func (CartLine) TableName() string {
	return "cart_items"
}

// CartEntry pairs a line with the product it resolved to at refresh time.
type CartEntry struct {
	Line      CartLine        `json:"line"`
	Product   Product         `json:"product"`
	Available bool            `json:"available"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CartView is the derived presentation of one user's cart. It is rebuilt from
// scratch on every refresh and never patched in place.
type CartView struct {
	UserID      string          `json:"user_id"`
	Entries     []CartEntry     `json:"entries"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	RefreshedAt time.Time       `json:"refreshed_at"`
}

// NewCartView derives totals from resolved lines. Lines whose product is inactive
// stay in the view, flagged unavailable, and count towards ItemCount but not Total.
func NewCartView(userID string, lines []CartLine, products map[string]Product) CartView {
	view := CartView{
		UserID:      userID,
		Entries:     make([]CartEntry, 0, len(lines)),
		Total:       decimal.Zero,
		RefreshedAt: time.Now(),
	}
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		entry := CartEntry{
			Line:      line,
			Product:   product,
			Available: product.IsActive,
			Subtotal:  subtotal,
		}
		view.Entries = append(view.Entries, entry)
		view.ItemCount += line.Quantity
		if entry.Available {
			view.Total = view.Total.Add(subtotal)
		}
	}
	view.Total = view.Total.Round(2)
	return view
}

// Empty reports whether the view holds no lines at all.
func (v CartView) Empty() bool {
	return len(v.Entries) == 0
}

// AvailableEntries returns the entries whose product is currently active.
func (v CartView) AvailableEntries() []CartEntry {
	available := make([]CartEntry, 0, len(v.Entries))
	for _, entry := range v.Entries {
		if entry.Available {
			available = append(available, entry)
		}
	}
	return available
}

// Find returns the entry for productID, if present.
func (v CartView) Find(productID string) (CartEntry, bool) {
	for _, entry := range v.Entries {
		if entry.Line.ProductID == productID {
			return entry, true
		}
	}
	return CartEntry{}, false
}
